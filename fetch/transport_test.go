package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/wasmfetch/host"
	"github.com/kbukum/wasmfetch/host/testutil"
)

func TestSend_HeaderSplit(t *testing.T) {
	rt := testutil.New(respond(&testutil.Response{
		Status:     200,
		StatusText: "OK",
		Header: [][2]string{
			{"X-Test", "a"},
			{"Content-Type", "text/plain"},
			{"Bad Name", "kept"},
		},
		Chunks: [][]byte{[]byte("hello")},
	}))
	tr := NewTransport(rt)

	resp, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/a", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer resp.Content.Close()

	if got := resp.Header.Get("X-Test"); got != "a" {
		t.Errorf("response X-Test = %q, want a", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "" {
		t.Errorf("Content-Type must not be on the response set, got %q", got)
	}
	if got := resp.Content.Header.Get("Content-Type"); got != "text/plain" {
		t.Errorf("content Content-Type = %q, want text/plain", got)
	}
	if got := resp.Content.Header["Bad Name"]; len(got) != 1 || got[0] != "kept" {
		t.Errorf("invalid header name dropped: %v", resp.Content.Header)
	}

	// 3 entries plus the terminal result, each released before the next.
	assertReleased(t, rt, testutil.KindEntry, 4)
	assertReleased(t, rt, testutil.KindIterator, 1)
	if n := rt.Count("entry.leaked"); n != 0 {
		t.Errorf("%d entries not released before the next Next()", n)
	}
	// request headers + response headers
	assertReleased(t, rt, testutil.KindHeaders, 2)
	assertNoDoubleRelease(t, rt)
}

func TestSend_OpaqueRedirect(t *testing.T) {
	rt := testutil.New(respond(&testutil.Response{
		Status:   0,
		Type:     "opaqueredirect",
		NullBody: true,
		Header:   [][2]string{{"Location", "/elsewhere"}},
	}))
	tr := NewTransport(rt)
	tr.SetAllowAutoRedirect(false)

	resp, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/r", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer resp.Content.Close()

	if resp.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", resp.StatusCode)
	}
	if resp.Reason != OpaqueRedirectReason {
		t.Errorf("Reason = %q, want %q", resp.Reason, OpaqueRedirectReason)
	}
	if n := rt.Count("entries"); n != 0 {
		t.Errorf("header iterator requested %d time(s)", n)
	}
	if len(resp.Header) != 0 || len(resp.Content.Header) != 0 {
		t.Errorf("expected no headers, got %v / %v", resp.Header, resp.Content.Header)
	}
	if got := rt.LastRequest().Redirect; got != "manual" {
		t.Errorf("redirect = %q, want manual", got)
	}
	if got := resp.HTTP().Status; got != "0 opaqueredirect" {
		t.Errorf("Status = %q", got)
	}
}

func TestSend_RedirectTriState(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Transport)
		want    string
		wantSet bool
		allow   bool
	}{
		{"untouched", func(*Transport) {}, "", false, true},
		{"follow", func(tr *Transport) { tr.SetAllowAutoRedirect(true) }, "follow", true, true},
		{"manual", func(tr *Transport) { tr.SetAllowAutoRedirect(false) }, "manual", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := testutil.New(nil)
			tr := NewTransport(rt)
			tt.setup(tr)

			resp, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/", nil))
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			resp.Content.Close()

			got := rt.LastRequest()
			if got.Redirect != tt.want || got.RedirectSet != tt.wantSet {
				t.Errorf("redirect = %q (set=%v), want %q (set=%v)", got.Redirect, got.RedirectSet, tt.want, tt.wantSet)
			}
			if tr.AllowAutoRedirect() != tt.allow {
				t.Errorf("AllowAutoRedirect = %v, want %v", tr.AllowAutoRedirect(), tt.allow)
			}
		})
	}
}

func TestSend_Options(t *testing.T) {
	rt := testutil.New(nil)
	tr := NewTransport(rt, WithDefaultFetchOptions(map[string]any{
		"cache": "no-store",
		"mode":  "same-origin",
	}))

	ctx := WithFetchOptions(context.Background(), map[string]any{
		"mode":   "cors",
		"method": "PUT",
	})
	req := newRequest(t, "", "https://example.test/o", nil)
	resp, err := tr.Send(ctx, req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp.Content.Close()

	got := rt.LastRequest()
	if got.Method != http.MethodGet {
		t.Errorf("method = %q, want GET", got.Method)
	}
	if got.Extra["mode"] != "cors" {
		t.Errorf("per-request option should win, mode = %v", got.Extra["mode"])
	}
	if got.Extra["cache"] != "no-store" {
		t.Errorf("default option missing, cache = %v", got.Extra["cache"])
	}
	if got.URL != "https://example.test/o" {
		t.Errorf("url = %q", got.URL)
	}
	if got.Signal == nil {
		t.Error("abort signal not attached")
	}
}

func TestSend_Body(t *testing.T) {
	t.Run("string content", func(t *testing.T) {
		rt := testutil.New(nil)
		tr := NewTransport(rt)
		req := newRequest(t, http.MethodPost, "https://example.test/s", NewStringContent("hello", ""))
		req.Header.Set("X-B", "2")
		req.Header.Set("X-A", "1")

		resp, err := tr.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		resp.Content.Close()

		got := rt.LastRequest()
		if s, ok := got.Body.(string); !ok || s != "hello" {
			t.Errorf("body = %#v, want string hello", got.Body)
		}
		want := [][2]string{
			{"X-A", "1"},
			{"X-B", "2"},
			{"Content-Type", "text/plain; charset=utf-8"},
		}
		if len(got.Header) != len(want) {
			t.Fatalf("headers = %v, want %v", got.Header, want)
		}
		for i := range want {
			if got.Header[i] != want[i] {
				t.Errorf("header[%d] = %v, want %v", i, got.Header[i], want[i])
			}
		}
	})

	t.Run("bytes", func(t *testing.T) {
		rt := testutil.New(nil)
		tr := NewTransport(rt)
		req := newRequest(t, http.MethodPost, "https://example.test/b", bytes.NewReader([]byte{1, 2, 3}))

		resp, err := tr.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		resp.Content.Close()

		b, ok := rt.LastRequest().Body.([]byte)
		if !ok || !bytes.Equal(b, []byte{1, 2, 3}) {
			t.Errorf("body = %#v, want []byte{1,2,3}", rt.LastRequest().Body)
		}
	})

	t.Run("no body", func(t *testing.T) {
		rt := testutil.New(nil)
		tr := NewTransport(rt)
		resp, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/", nil))
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		resp.Content.Close()
		if rt.LastRequest().Body != nil {
			t.Errorf("body = %#v, want nil", rt.LastRequest().Body)
		}
	})

	t.Run("unreadable", func(t *testing.T) {
		rt := testutil.New(nil)
		tr := NewTransport(rt)
		req := newRequest(t, http.MethodPost, "https://example.test/", io.NopCloser(errReader{}))
		_, err := tr.Send(context.Background(), req)
		if !IsRequestFailed(err) {
			t.Fatalf("expected request failure, got %v", err)
		}
		if n := rt.Count("fetch"); n != 0 {
			t.Errorf("fetch issued %d time(s)", n)
		}
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestSend_BeforeSend(t *testing.T) {
	rt := testutil.New(nil)
	var seen []*http.Request
	tr := NewTransport(rt, WithBeforeSend(func(r *http.Request) {
		seen = append(seen, r)
		if r != nil {
			r.Header.Set("X-Hook", "yes")
		}
	}))

	resp, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp.Content.Close()
	if len(rt.LastRequest().Header) != 1 || rt.LastRequest().Header[0] != [2]string{"X-Hook", "yes"} {
		t.Errorf("hook mutation not sent: %v", rt.LastRequest().Header)
	}

	_, err = tr.Send(context.Background(), nil)
	if !IsInvalidRequest(err) {
		t.Errorf("expected invalid request, got %v", err)
	}
	if len(seen) != 2 || seen[1] != nil {
		t.Errorf("hook should run before validation, saw %v", seen)
	}
}

type closeTracker struct {
	io.Reader
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return nil
}

func TestSend_RejectedRequestClosesBody(t *testing.T) {
	rt := testutil.New(nil)
	body := &closeTracker{Reader: strings.NewReader("payload")}
	req := &http.Request{Method: http.MethodPost, Header: make(http.Header), Body: body}

	_, err := NewTransport(rt).RoundTrip(req)
	if !IsInvalidRequest(err) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if body.closed != 1 {
		t.Errorf("body closed %d time(s), want 1", body.closed)
	}
	if n := rt.Count("fetch"); n != 0 {
		t.Errorf("host fetch calls = %d, want 0", n)
	}
}

func TestSend_HostFailure(t *testing.T) {
	rt := testutil.New(func(*testutil.Request) (*testutil.Response, error) {
		return nil, &host.Error{Name: "TypeError", Message: "Failed to fetch"}
	})
	tr := NewTransport(rt)

	_, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/", nil))
	if !IsRequestFailed(err) {
		t.Fatalf("expected request failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "Failed to fetch") {
		t.Errorf("host message lost: %v", err)
	}
	var he *host.Error
	if !errors.As(err, &he) {
		t.Error("host error should be reachable with errors.As")
	}
	assertReleased(t, rt, testutil.KindController, 1)
	assertReleased(t, rt, testutil.KindHeaders, 1)
	assertNoDoubleRelease(t, rt)
}

func TestSend_HostAbort(t *testing.T) {
	rt := testutil.New(func(*testutil.Request) (*testutil.Response, error) {
		return nil, host.NewAbortError()
	})
	tr := NewTransport(rt)

	_, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/", nil))
	if !IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("cancellation should match context.Canceled")
	}
}

func TestSend_CancelWhilePending(t *testing.T) {
	rt := testutil.New(nil)
	rt.Hold = make(chan struct{})
	tr := NewTransport(rt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitUntil(func() bool { return rt.Count("fetch") == 1 })
		cancel()
	}()

	_, err := tr.Send(ctx, newRequest(t, http.MethodGet, "https://example.test/", nil))
	if !IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	eventually(t, "controller release", func() bool {
		return rt.Released(testutil.KindController) == 1
	})
	if n := rt.Count("abort"); n != 1 {
		t.Errorf("expected 1 abort, got %d", n)
	}
	assertNoDoubleRelease(t, rt)
}

func TestSend_DeadlineIsTimeout(t *testing.T) {
	rt := testutil.New(nil)
	rt.Hold = make(chan struct{})
	tr := NewTransport(rt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := tr.Send(ctx, newRequest(t, http.MethodGet, "https://example.test/", nil))

	var fe *Error
	if !errors.As(err, &fe) || fe.Code != ErrCodeCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if !fe.Timeout() {
		t.Error("deadline cancellation should report Timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("should match context.DeadlineExceeded")
	}
}

func TestSend_LateCompletionReleased(t *testing.T) {
	rt := testutil.New(nil)
	rt.Hold = make(chan struct{})
	rt.IgnoreAbort = true
	tr := NewTransport(rt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitUntil(func() bool { return rt.Count("fetch") == 1 })
		cancel()
	}()
	_, err := tr.Send(ctx, newRequest(t, http.MethodGet, "https://example.test/", nil))
	if !IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	rt.Hold <- struct{}{}
	eventually(t, "late response release", func() bool {
		return rt.Released(testutil.KindResponse) == 1
	})
	assertNoDoubleRelease(t, rt)
}

func TestSend_HeaderIterationFailure(t *testing.T) {
	rt := testutil.New(respond(&testutil.Response{
		Status:       200,
		Header:       [][2]string{{"A", "1"}, {"B", "2"}},
		HeaderFailAt: 1,
	}))
	tr := NewTransport(rt)

	_, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/", nil))
	if !IsRequestFailed(err) {
		t.Fatalf("expected request failure, got %v", err)
	}
	assertReleased(t, rt, testutil.KindIterator, 1)
	assertReleased(t, rt, testutil.KindResponse, 1)
	assertReleased(t, rt, testutil.KindController, 1)
	assertNoDoubleRelease(t, rt)
}

func TestRoundTrip(t *testing.T) {
	rt := testutil.New(respond(&testutil.Response{
		Status:     201,
		StatusText: "Created",
		Header: [][2]string{
			{"X-Test", "a"},
			{"Content-Type", "application/json"},
			{"Content-Length", "11"},
		},
		Chunks: [][]byte{[]byte(`{"id":"42"}`)},
	}))
	client := &http.Client{Transport: NewTransport(rt)}

	resp, err := client.Get("https://example.test/items")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated || resp.Status != "201 Created" {
		t.Errorf("status = %d %q", resp.StatusCode, resp.Status)
	}
	if resp.Header.Get("X-Test") != "a" || resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("merged headers = %v", resp.Header)
	}
	if resp.ContentLength != 11 {
		t.Errorf("ContentLength = %d, want 11", resp.ContentLength)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"id":"42"}` {
		t.Errorf("body = %q", body)
	}

	split, ok := ResponseFromContext(resp.Request.Context())
	if !ok {
		t.Fatal("split response missing from request context")
	}
	if split.Header.Get("Content-Type") != "" || split.Content.Header.Get("Content-Type") != "application/json" {
		t.Errorf("split headers = %v / %v", split.Header, split.Content.Header)
	}
}

func TestRoundTrip_ContentLength(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		header [][2]string
		want   int64
	}{
		{"plain", "basic", [][2]string{{"Content-Length", "12"}}, 12},
		{"encoded", "basic", [][2]string{{"Content-Encoding", "gzip"}, {"Content-Length", "3"}}, -1},
		{"cross-origin hides encoding", "cors", [][2]string{{"Content-Length", "3"}}, -1},
		{"missing", "basic", nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := testutil.New(respond(&testutil.Response{
				Status: 200,
				Type:   tt.kind,
				Header: tt.header,
				Chunks: [][]byte{[]byte("decoded body")},
			}))
			resp, err := NewTransport(rt).RoundTrip(newRequest(t, http.MethodGet, "https://example.test/", nil))
			if err != nil {
				t.Fatalf("RoundTrip: %v", err)
			}
			defer resp.Body.Close()
			if resp.ContentLength != tt.want {
				t.Errorf("ContentLength = %d, want %d", resp.ContentLength, tt.want)
			}
		})
	}
}

func TestStreamingProbeCached(t *testing.T) {
	rt := testutil.New(nil)
	rt.Streaming = true
	tr := NewTransport(rt)
	ctx := WithStreamingResponse(context.Background(), true)

	for i := 0; i < 3; i++ {
		resp, err := tr.Send(ctx, newRequest(t, http.MethodGet, "https://example.test/", nil))
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if !resp.Content.Streaming() {
			t.Error("expected streaming content")
		}
		resp.Content.Close()
	}
	if n := rt.Probes(); n != 1 {
		t.Errorf("capability probed %d times, want 1", n)
	}
}

func TestStreamingSelection(t *testing.T) {
	tests := []struct {
		name     string
		host     bool
		def      bool
		ctxSet   bool
		ctxValue bool
		want     bool
	}{
		{"host unsupported", false, true, true, true, false},
		{"not requested", true, false, false, false, false},
		{"requested", true, false, true, true, true},
		{"transport default", true, true, false, false, true},
		{"request opts out", true, true, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := testutil.New(nil)
			rt.Streaming = tt.host
			tr := NewTransport(rt, WithStreamingDefault(tt.def))
			ctx := context.Background()
			if tt.ctxSet {
				ctx = WithStreamingResponse(ctx, tt.ctxValue)
			}
			resp, err := tr.Send(ctx, newRequest(t, http.MethodGet, "https://example.test/", nil))
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			defer resp.Content.Close()
			if resp.Content.Streaming() != tt.want {
				t.Errorf("Streaming() = %v, want %v", resp.Content.Streaming(), tt.want)
			}
		})
	}
}

func TestUnsupportedSettings(t *testing.T) {
	tr := NewTransport(testutil.New(nil))
	setters := map[string]func() error{
		"SetProxy":                    func() error { return tr.SetProxy(http.ProxyFromEnvironment) },
		"SetUseProxy":                 func() error { return tr.SetUseProxy(false) },
		"SetDefaultProxyCredentials":  func() error { return tr.SetDefaultProxyCredentials(nil) },
		"SetCookieJar":                func() error { return tr.SetCookieJar(nil) },
		"SetUseCookies":               func() error { return tr.SetUseCookies(false) },
		"SetCredentials":              func() error { return tr.SetCredentials(nil) },
		"SetPreAuthenticate":          func() error { return tr.SetPreAuthenticate(false) },
		"SetAutomaticDecompression":   func() error { return tr.SetAutomaticDecompression(false) },
		"SetMaxAutomaticRedirections": func() error { return tr.SetMaxAutomaticRedirections(5) },
		"SetMaxConnectionsPerHost":    func() error { return tr.SetMaxConnectionsPerHost(2) },
		"SetMaxResponseHeaderBytes":   func() error { return tr.SetMaxResponseHeaderBytes(1 << 20) },
	}
	for name, set := range setters {
		t.Run(name, func(t *testing.T) {
			if err := set(); !IsUnsupported(err) {
				t.Errorf("expected unsupported error, got %v", err)
			}
		})
	}
	if SupportsProxy || SupportsAutomaticDecompression || !SupportsRedirectConfiguration {
		t.Error("unexpected capability constants")
	}
}

func TestSend_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	rt := testutil.New(respond(&testutil.Response{Status: 404, StatusText: "Not Found"}))
	tr := NewTransport(rt,
		WithTracer(tp.Tracer("test")),
		WithPropagator(propagation.TraceContext{}),
	)

	resp, err := tr.Send(context.Background(), newRequest(t, http.MethodGet, "https://example.test/missing", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp.Content.Close()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "fetch GET" {
		t.Errorf("span name = %q", span.Name())
	}

	var traceparent string
	for _, h := range rt.LastRequest().Header {
		if h[0] == "Traceparent" {
			traceparent = h[1]
		}
	}
	if !strings.Contains(traceparent, span.SpanContext().TraceID().String()) {
		t.Errorf("traceparent = %q, want trace %s", traceparent, span.SpanContext().TraceID())
	}

	// A caller-supplied header wins over the injected one.
	req := newRequest(t, http.MethodGet, "https://example.test/", nil)
	req.Header.Set("Traceparent", "caller")
	resp, err = tr.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp.Content.Close()
	n := 0
	for _, h := range rt.LastRequest().Header {
		if h[0] == "Traceparent" {
			n++
			if h[1] != "caller" {
				t.Errorf("traceparent overwritten: %q", h[1])
			}
		}
	}
	if n != 1 {
		t.Errorf("traceparent sent %d times", n)
	}
}
