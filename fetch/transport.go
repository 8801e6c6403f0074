package fetch

import (
	"context"
	"errors"
	"io"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/wasmfetch/host"
	"github.com/kbukum/wasmfetch/logger"
	"github.com/kbukum/wasmfetch/observability"
)

// Capabilities of the fetch transport.
const (
	SupportsAutomaticDecompression = false
	SupportsProxy                  = false
	SupportsRedirectConfiguration  = true
)

// RedirectPolicy is the redirect mode sent to the host.
type RedirectPolicy int32

const (
	// RedirectUnset leaves the host default in place.
	RedirectUnset RedirectPolicy = iota
	// RedirectFollow follows redirects.
	RedirectFollow
	// RedirectManual stops at the first redirect and yields an
	// "opaqueredirect" response.
	RedirectManual
)

// String returns the host redirect mode, or "" when unset.
func (p RedirectPolicy) String() string {
	switch p {
	case RedirectFollow:
		return "follow"
	case RedirectManual:
		return "manual"
	default:
		return ""
	}
}

// Transport is an http.RoundTripper that performs requests through a host
// fetch primitive.
type Transport struct {
	rt       host.Runtime
	log      *logger.Logger
	tracer   trace.Tracer
	prop     propagation.TextMapPropagator
	metrics  *observability.FetchMetrics
	redirect atomic.Int32

	// streamingDefault applies when the request context does not choose.
	streamingDefault bool
	fetchOptions     map[string]any
	beforeSend       func(*http.Request)

	supportsStreaming func() bool
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(l *logger.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tr trace.Tracer) Option {
	return func(t *Transport) { t.tracer = tr }
}

// WithPropagator sets the propagator that writes trace context onto
// outgoing requests. The global propagator is used otherwise.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(t *Transport) { t.prop = p }
}

// WithMetrics records request metrics on m.
func WithMetrics(m *observability.FetchMetrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithBeforeSend registers a hook that observes, and may modify, every
// request before anything else happens. It may receive a nil request.
func WithBeforeSend(fn func(*http.Request)) Option {
	return func(t *Transport) { t.beforeSend = fn }
}

// WithRedirect sets the initial redirect policy.
func WithRedirect(p RedirectPolicy) Option {
	return func(t *Transport) { t.redirect.Store(int32(p)) }
}

// WithStreamingDefault selects streaming delivery for requests whose
// context does not say otherwise.
func WithStreamingDefault(enabled bool) Option {
	return func(t *Transport) { t.streamingDefault = enabled }
}

// WithDefaultFetchOptions sets raw host options applied to every request.
// Options from the request context override them key by key.
func WithDefaultFetchOptions(opts map[string]any) Option {
	return func(t *Transport) { t.fetchOptions = maps.Clone(opts) }
}

// NewTransport returns a transport over rt.
func NewTransport(rt host.Runtime, opts ...Option) *Transport {
	t := &Transport{rt: rt}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.WithComponent("fetch")
	}
	if t.tracer == nil {
		t.tracer = observability.Tracer(tracerName)
	}
	t.supportsStreaming = sync.OnceValue(rt.SupportsStreaming)
	return t
}

const tracerName = "github.com/kbukum/wasmfetch/fetch"

// SetAllowAutoRedirect chooses between following redirects and stopping at
// them. Until it is called the host default applies.
func (t *Transport) SetAllowAutoRedirect(allow bool) {
	if allow {
		t.redirect.Store(int32(RedirectFollow))
	} else {
		t.redirect.Store(int32(RedirectManual))
	}
}

// AllowAutoRedirect reports whether redirects are followed.
func (t *Transport) AllowAutoRedirect() bool {
	return t.RedirectPolicy() != RedirectManual
}

// RedirectPolicy returns the current redirect policy.
func (t *Transport) RedirectPolicy() RedirectPolicy {
	return RedirectPolicy(t.redirect.Load())
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		if t.beforeSend != nil {
			t.beforeSend(nil)
		}
		return nil, newInvalidRequestError("nil request")
	}
	resp, err := t.Send(req.Context(), req)
	if err != nil {
		return nil, err
	}
	return resp.HTTP(), nil
}

// Send performs req through the host and returns as soon as the response
// head is available. The caller must Close resp.Content.
func (t *Transport) Send(ctx context.Context, req *http.Request) (resp *Response, err error) {
	if t.beforeSend != nil {
		t.beforeSend(req)
	}
	if req == nil {
		return nil, newInvalidRequestError("nil request")
	}
	if req.URL == nil {
		closeBody(req)
		return nil, newInvalidRequestError("request has no URL")
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	ctx, span := t.tracer.Start(ctx, "fetch "+method, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	if t.metrics != nil {
		t.metrics.RecordStart(ctx, method)
	}
	defer func() {
		t.finish(ctx, span, method, resp, err, time.Since(start))
	}()

	opts := &host.Options{
		Method: method,
		Extra:  t.extraOptions(ctx),
	}
	if mode := t.RedirectPolicy(); mode != RedirectUnset {
		opts.Redirect = mode.String()
	}

	opts.Body, err = requestBody(req)
	if err != nil {
		t.log.Warn("fetch request body unreadable", logger.Fields("url", req.URL.String(), logger.FieldError, err.Error()))
		return nil, translate(err, ctx)
	}

	headers, err := t.rt.NewHeaders()
	if err != nil {
		return nil, translate(err, ctx)
	}
	if err = appendHeaders(headers, req.Header); err == nil {
		if hb, ok := req.Body.(interface{ Header() http.Header }); ok {
			err = appendHeaders(headers, hb.Header())
		}
	}
	if err == nil {
		err = appendHeaders(headers, t.traceHeaders(ctx, req.Header))
	}
	if err != nil {
		headers.Release()
		return nil, translate(err, ctx)
	}
	opts.Headers = headers

	session, err := newAbortSession(ctx, t.rt, t.log)
	if err != nil {
		headers.Release()
		return nil, translate(err, ctx)
	}
	opts.Signal = session.signal()

	url := req.URL.String()
	t.log.Debug("fetch dispatch", logger.Fields("method", method, "url", url, "session", session.id))

	pending, err := t.rt.Fetch(url, opts)
	headers.Release()
	if err != nil {
		session.dispose()
		return nil, translate(err, ctx)
	}
	hr, err := await(ctx, pending)
	if err != nil {
		session.dispose()
		return nil, translate(err, ctx)
	}

	wrapper := newFetchResponse(hr, session)
	content := &Content{Header: make(http.Header), ctx: ctx}
	resp = &Response{
		StatusCode: wrapper.status(),
		Reason:     wrapper.statusText(),
		OK:         wrapper.ok(),
		Redirected: wrapper.redirected(),
		Type:       wrapper.kind(),
		URL:        wrapper.url(),
		Header:     make(http.Header),
		Content:    content,
		Request:    req,
	}
	bodyUsed := wrapper.bodyUsed()

	if resp.Type == OpaqueRedirectReason {
		resp.Reason = OpaqueRedirectReason
	} else if err = copyHeaders(hr.Headers(), resp.Header, content.Header); err != nil {
		wrapper.dispose()
		return nil, translate(err, ctx)
	}

	// The body is attached last: once it is, the abort callback may dispose
	// the wrapper at any time.
	content.streaming = t.supportsStreaming() && t.streamingRequested(ctx)
	if content.streaming {
		sb := newStreamBody(wrapper, t.log.WithFields(logger.Fields("session", session.id)), t.observer(ctx, "streaming"))
		content.body = sb
		session.attach(sb)
	} else {
		content.body = newBufferedBody(wrapper, t.observer(ctx, "buffered"))
	}

	t.log.Debug("fetch response", logger.Fields(
		"session", session.id,
		"status", resp.StatusCode,
		"type", resp.Type,
		"streaming", content.streaming,
		"body_used", bodyUsed,
	))
	return resp, nil
}

// traceHeaders returns the propagation headers for ctx that the request
// does not already carry.
func (t *Transport) traceHeaders(ctx context.Context, have http.Header) http.Header {
	p := t.prop
	if p == nil {
		p = otel.GetTextMapPropagator()
	}
	carrier := propagation.HeaderCarrier{}
	p.Inject(ctx, carrier)
	for name := range carrier {
		if _, ok := have[name]; ok {
			delete(carrier, name)
		}
	}
	return http.Header(carrier)
}

func (t *Transport) extraOptions(ctx context.Context) map[string]any {
	perRequest := FetchOptions(ctx)
	if len(t.fetchOptions) == 0 && len(perRequest) == 0 {
		return nil
	}
	out := maps.Clone(t.fetchOptions)
	if out == nil {
		out = make(map[string]any, len(perRequest))
	}
	maps.Copy(out, perRequest)
	return out
}

func (t *Transport) streamingRequested(ctx context.Context) bool {
	if enabled, ok := StreamingResponse(ctx); ok {
		return enabled
	}
	return t.streamingDefault
}

func (t *Transport) observer(ctx context.Context, mode string) func(int) {
	if t.metrics == nil {
		return nil
	}
	return func(n int) { t.metrics.RecordBodyBytes(ctx, mode, n) }
}

func (t *Transport) finish(ctx context.Context, span trace.Span, method string, resp *Response, err error, d time.Duration) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if t.metrics != nil {
			code := "unknown"
			var fe *Error
			if errors.As(err, &fe) {
				code = fe.Code.String()
			}
			t.metrics.RecordError(ctx, method, code)
			t.metrics.RecordEnd(ctx, method, 0, d)
		}
		return
	}
	span.SetAttributes(
		attribute.Int(observability.AttrStatusCode, resp.StatusCode),
		attribute.String(observability.AttrResponseType, resp.Type),
		attribute.Bool(observability.AttrStreaming, resp.Content.Streaming()),
	)
	if t.metrics != nil {
		t.metrics.RecordEnd(ctx, method, resp.StatusCode, d)
	}
}

// requestBody reads the request body into the form the host takes. The
// request body is always closed.
// closeBody closes a body Send rejects before reading it.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

func requestBody(req *http.Request) (any, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	if sc, ok := req.Body.(*StringContent); ok {
		return sc.String(), nil
	}
	return io.ReadAll(req.Body)
}
