package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/wasmfetch/fetch"
	"github.com/kbukum/wasmfetch/host"
	"github.com/kbukum/wasmfetch/httpclient/sse"
	"github.com/kbukum/wasmfetch/logger"
	"github.com/kbukum/wasmfetch/resilience"
)

// Client sends requests through an http.RoundTripper, normally a
// *fetch.Transport, and adds auth, status classification and the
// resilience policies from Config. The transport never retries; the client
// does when Config.Retry is set.
type Client struct {
	httpClient *http.Client
	config     Config
	log        *logger.Logger
	cb         *resilience.CircuitBreaker
	rl         *resilience.RateLimiter
	bh         *resilience.Bulkhead
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client over transport.
func New(cfg Config, transport http.RoundTripper, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, NewValidationError("no transport")
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			// The host follows redirects itself; a 3xx seen here was
			// asked for.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config: cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.WithComponent("httpclient").WithFields(logger.Fields("client", cfg.Name))
	}

	if cfg.CircuitBreaker != nil {
		cbCfg := *cfg.CircuitBreaker
		cbCfg.IsFailure = IsRetryable
		cbCfg.OnStateChange = func(name string, from, to resilience.State) {
			c.log.Warn("circuit state changed", logger.Fields("breaker", name, "from", from.String(), "to", to.String()))
		}
		c.cb = resilience.NewCircuitBreaker(cbCfg)
	}
	if cfg.RateLimiter != nil {
		c.rl = resilience.NewRateLimiter(*cfg.RateLimiter)
	}
	if cfg.Bulkhead != nil {
		c.bh = resilience.NewBulkhead(*cfg.Bulkhead)
	}
	return c, nil
}

// NewForHost creates a client over a fetch transport for rt.
func NewForHost(cfg Config, rt host.Runtime, fetchOpts []fetch.Option, opts ...Option) (*Client, error) {
	return New(cfg, fetch.NewTransport(rt, fetchOpts...), opts...)
}

// Do sends req and reads the whole body. For a 4xx/5xx status the
// response is returned together with the classified error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.config.Retry == nil {
		return c.doOnce(ctx, req)
	}
	// A reader body is consumed by the first attempt.
	if r, ok := req.Body.(io.Reader); ok {
		data, err := io.ReadAll(r)
		if rc, ok := r.(io.Closer); ok {
			_ = rc.Close()
		}
		if err != nil {
			return nil, &Error{Code: ErrCodeValidation, Message: "read request body: " + err.Error(), Err: err}
		}
		req.Body = data
	}
	retry := *c.config.Retry
	retry.RetryIf = IsRetryable
	retry.Delay = retryDelay
	retry.OnRetry = c.logRetry(req)
	return resilience.Retry(ctx, retry, func() (*Response, error) {
		return c.doOnce(ctx, req)
	})
}

// DoStream sends req with streaming body delivery. A text/event-stream
// response is exposed as SSE. Error statuses are read, classified and
// returned as errors. Streams are not retried. The caller must Close the
// result.
func (c *Client) DoStream(ctx context.Context, req Request) (*StreamResponse, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}
	release := func() {}
	if c.bh != nil {
		r, err := c.bh.Acquire(ctx)
		if err != nil {
			return nil, classifyError(ctx, err)
		}
		release = r
	}

	ctx = fetch.WithStreamingResponse(ctx, true)
	resp, err := c.send(ctx, req)
	if err != nil {
		release()
		return nil, err
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		release()
		return nil, ClassifyStatusCode(resp.StatusCode, resp.Header, body)
	}

	out := &StreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		release:    release,
	}
	if isEventStream(resp.Header.Get("Content-Type")) {
		out.SSE = sse.NewReader(resp.Body)
	} else {
		out.Body = resp.Body
	}
	return out, nil
}

// Unwrap returns the underlying *http.Client.
func (c *Client) Unwrap() *http.Client {
	return c.httpClient
}

// Name returns the configured client name.
func (c *Client) Name() string {
	return c.config.Name
}

// CircuitState returns the breaker state, or closed without a breaker.
func (c *Client) CircuitState() resilience.State {
	if c.cb == nil {
		return resilience.StateClosed
	}
	return c.cb.State()
}

func (c *Client) logRetry(req Request) func(int, error, time.Duration) {
	return func(attempt int, err error, backoff time.Duration) {
		c.log.Debug("retrying request", logger.Fields(
			logger.FieldMethod, req.Method,
			"path", req.Path,
			"attempt", attempt,
			"backoff", backoff.String(),
			logger.FieldError, err.Error(),
		))
	}
}

// admit applies the rate limiter.
func (c *Client) admit(ctx context.Context) error {
	if c.rl == nil {
		return nil
	}
	if err := c.rl.Wait(ctx); err != nil {
		return classifyError(ctx, err)
	}
	return nil
}

// doOnce runs one buffered attempt through the rate limiter, bulkhead and
// circuit breaker.
func (c *Client) doOnce(ctx context.Context, req Request) (*Response, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	attempt := func() (*Response, error) {
		if c.bh == nil {
			return c.executeRequest(ctx, req)
		}
		var resp *Response
		err := c.bh.Execute(ctx, func() error {
			var err error
			resp, err = c.executeRequest(ctx, req)
			return err
		})
		return resp, err
	}

	var resp *Response
	var err error
	if c.cb != nil {
		resp, err = resilience.Call(c.cb, attempt)
	} else {
		resp, err = attempt()
	}
	if err != nil {
		return resp, classifyError(ctx, err)
	}
	return resp, nil
}

// executeRequest sends one request and reads its body within the timeout.
func (c *Client) executeRequest(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if resp.Request != nil {
		result.URL = resp.Request.URL.String()
		if fr, ok := fetch.ResponseFromContext(resp.Request.Context()); ok {
			result.Redirected = fr.Redirected
			if fr.URL != "" {
				result.URL = fr.URL
			}
		}
	}

	if classErr := ClassifyStatusCode(resp.StatusCode, resp.Header, body); classErr != nil {
		return result, classErr
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	c.log.Debug("sending request", logger.Fields(logger.FieldMethod, httpReq.Method, logger.FieldURL, httpReq.URL.String()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	return resp, nil
}

// buildRequest constructs an *http.Request from the client config and request.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := req.Path
	if c.config.BaseURL != "" && !strings.HasPrefix(req.Path, "http://") && !strings.HasPrefix(req.Path, "https://") {
		url = strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("encode body: %v", err))
	}

	if len(req.FetchOptions) > 0 {
		ctx = fetch.WithFetchOptions(ctx, req.FetchOptions)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("create request: %v", err))
	}

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" && contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	auth := c.config.Auth
	if req.Auth != nil {
		auth = req.Auth
	}
	auth.apply(httpReq)

	return httpReq, nil
}

// encodeBody converts a body value into an io.Reader and content type.
func encodeBody(body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch v := body.(type) {
	case io.Reader:
		return v, "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case string:
		return strings.NewReader(v), "text/plain; charset=utf-8", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}
