package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/wasmfetch/component"
	"github.com/kbukum/wasmfetch/fetch"
	"github.com/kbukum/wasmfetch/host"
	"github.com/kbukum/wasmfetch/httpclient"
	"github.com/kbukum/wasmfetch/httpclient/sse"
	"github.com/kbukum/wasmfetch/logger"
	"github.com/kbukum/wasmfetch/resilience"
)

// options tune the demo run.
type options struct {
	// slowTimeout bounds the /slow step, which must time out.
	slowTimeout  time.Duration
	retryBackoff time.Duration
}

func defaultOptions() options {
	return options{slowTimeout: 500 * time.Millisecond, retryBackoff: 100 * time.Millisecond}
}

type step struct {
	name string
	run  func(ctx context.Context, c *httpclient.Client) (string, error)
}

// runDemo starts a fetch transport and a client over rt, runs every step
// against the fixture server at baseURL and reports all failures.
func runDemo(ctx context.Context, rt host.Runtime, baseURL string, log *logger.Logger, opts options) error {
	registry := component.NewRegistry()
	fc := fetch.NewComponent(rt, fetch.Config{}, fetch.WithLogger(log.WithComponent("fetch")))
	hc := httpclient.NewComponent(httpclient.Config{
		Name:    "fixtures",
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
		Retry: &resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: opts.retryBackoff,
			MaxBackoff:     time.Second,
		},
		CircuitBreaker: &resilience.CircuitBreakerConfig{MaxFailures: 5, Timeout: 10 * time.Second},
	}, func() http.RoundTripper { return fc.Transport() }, httpclient.WithLogger(log.WithComponent("httpclient")))

	for _, c := range []component.Component{fc, hc} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	if err := registry.StartAll(ctx); err != nil {
		return err
	}
	defer func() { _ = registry.StopAll(context.Background()) }()

	var errs []error
	for _, s := range steps(opts) {
		start := time.Now()
		detail, err := s.run(ctx, hc.Client())
		fields := logger.Fields("step", s.name, logger.FieldDuration, time.Since(start).Milliseconds())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			log.Error("step failed", logger.Fields(logger.FieldError, err.Error()), fields)
			continue
		}
		fields["result"] = detail
		log.Info("step passed", fields)
	}

	log.Info("demo finished", logger.Fields(
		"health", string(component.Overall(registry.HealthAll(ctx))),
		"failed", len(errs),
	))
	return errors.Join(errs...)
}

func steps(opts options) []step {
	return []step{
		{"echo", echoStep},
		{"chunks", chunksStep},
		{"events", eventsStep},
		{"redirect", redirectStep},
		{"slow", func(ctx context.Context, c *httpclient.Client) (string, error) {
			return slowStep(ctx, c, opts.slowTimeout)
		}},
		{"status", statusStep},
	}
}

// echoed is the part of the /echo reply the demo checks.
type echoed struct {
	Headers   map[string][]string `json:"headers"`
	Body      string              `json:"body"`
	RequestID string              `json:"request_id"`
}

func echoStep(ctx context.Context, c *httpclient.Client) (string, error) {
	resp, err := httpclient.Post[echoed](c, ctx, "/echo", map[string]string{"hello": "wasm"},
		httpclient.WithHeader("X-Demo", "1"),
		httpclient.WithFetchOption("cache", "no-store"),
	)
	if err != nil {
		return "", err
	}
	if got := resp.Data.Headers["X-Demo"]; len(got) != 1 || got[0] != "1" {
		return "", fmt.Errorf("X-Demo echoed as %q", got)
	}
	if resp.Data.Body != `{"hello":"wasm"}` {
		return "", fmt.Errorf("body echoed as %q", resp.Data.Body)
	}
	return "request id " + resp.Data.RequestID, nil
}

func chunksStep(ctx context.Context, c *httpclient.Client) (string, error) {
	stream, err := c.DoStream(ctx, httpclient.Request{Path: "/chunks?n=5&size=1024&delay=50ms"})
	if err != nil {
		return "", err
	}
	defer stream.Close()
	if stream.Body == nil {
		return "", errors.New("expected a raw body")
	}

	buf := make([]byte, 512)
	var reads, total int
	for {
		n, err := stream.Body.Read(buf)
		total += n
		if n > 0 {
			reads++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if total != 5*1024 {
		return "", fmt.Errorf("read %d bytes, want %d", total, 5*1024)
	}
	return fmt.Sprintf("%d bytes in %d reads", total, reads), nil
}

func eventsStep(ctx context.Context, c *httpclient.Client) (string, error) {
	stream, err := c.DoStream(ctx, httpclient.Request{Path: "/events?n=3&interval=100ms"})
	if err != nil {
		return "", err
	}
	defer stream.Close()
	if stream.SSE == nil {
		return "", errors.New("expected an event stream")
	}

	var ids []string
	for ev, err := range sse.All(stream.SSE) {
		if err != nil {
			return "", err
		}
		ids = append(ids, ev.ID)
	}
	if len(ids) != 3 {
		return "", fmt.Errorf("got %d events", len(ids))
	}
	return "ids " + strings.Join(ids, ","), nil
}

func redirectStep(ctx context.Context, c *httpclient.Client) (string, error) {
	resp, err := c.Do(ctx, httpclient.Request{Path: "/redirect?to=/echo&hops=2"})
	if err != nil {
		return "", err
	}
	if !resp.Redirected || !strings.HasSuffix(resp.URL, "/echo") {
		return "", fmt.Errorf("redirected=%t url=%s", resp.Redirected, resp.URL)
	}
	if method := resp.JSONPath("method").String(); method != http.MethodGet {
		return "", fmt.Errorf("landed as %s", method)
	}
	return "landed on " + resp.URL, nil
}

func slowStep(ctx context.Context, c *httpclient.Client, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.Do(ctx, httpclient.Request{Path: "/slow?delay=5s"})
	if !httpclient.IsTimeout(err) {
		return "", fmt.Errorf("expected a timeout, got %v", err)
	}
	return "timed out after " + timeout.String(), nil
}

func statusStep(ctx context.Context, c *httpclient.Client) (string, error) {
	resp, err := c.Do(ctx, httpclient.Request{Path: "/status/503"})
	if !httpclient.IsServerError(err) || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		return "", fmt.Errorf("expected a 503 server error, got %v", err)
	}
	return "gave up with " + err.Error(), nil
}
