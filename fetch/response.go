package fetch

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/kbukum/wasmfetch/host"
)

// OpaqueRedirectReason is the Reason of a response whose type is
// "opaqueredirect": a redirect met in manual mode, with status 0, no headers
// and a null body.
const OpaqueRedirectReason = "opaqueredirect"

// fetchResponse owns a host response and its abort session.
type fetchResponse struct {
	h       host.Response
	session *abortSession
	once    sync.Once
}

func newFetchResponse(h host.Response, session *abortSession) *fetchResponse {
	return &fetchResponse{h: h, session: session}
}

func (r *fetchResponse) ok() bool           { return r.h.OK() }
func (r *fetchResponse) redirected() bool   { return r.h.Redirected() }
func (r *fetchResponse) status() int        { return r.h.Status() }
func (r *fetchResponse) statusText() string { return r.h.StatusText() }
func (r *fetchResponse) kind() string       { return r.h.Type() }
func (r *fetchResponse) url() string        { return r.h.URL() }
func (r *fetchResponse) bodyUsed() bool     { return r.h.BodyUsed() }

// bodyReader acquires a reader for the body stream. A nil reader means the
// body is null.
func (r *fetchResponse) bodyReader() (host.Reader, error) {
	stream, err := r.h.Body()
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, nil
	}
	defer stream.Release()
	return stream.GetReader()
}

func (r *fetchResponse) arrayBuffer() (host.Promise[host.Buffer], error) {
	return r.h.ArrayBuffer()
}

// dispose releases the abort session, then the host response. Only the
// first call has any effect.
func (r *fetchResponse) dispose() {
	r.once.Do(func() {
		r.session.dispose()
		r.h.Release()
	})
}

// Response is the result of Transport.Send. Headers the response header set
// rejects are kept on Content.Header instead.
type Response struct {
	// StatusCode is the HTTP status (0 for opaque responses).
	StatusCode int
	// Reason is the status text, or OpaqueRedirectReason.
	Reason string
	// OK reports a 2xx status.
	OK bool
	// Redirected reports whether the host followed a redirect.
	Redirected bool
	// Type is the host response type ("basic", "cors", "opaqueredirect", ...).
	Type string
	// URL is the final response URL.
	URL string
	// Header holds the response headers.
	Header http.Header
	// Content is the response body with its content headers.
	Content *Content
	// Request is the request that was sent.
	Request *http.Request
}

// HTTP converts r into a standard *http.Response whose header map merges
// both header sets and whose request context carries r.
func (r *Response) HTTP() *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for k, vs := range r.Content.Header {
		header[k] = append(header[k], vs...)
	}

	// Cross-origin responses hide Content-Encoding, so their length is
	// never trusted.
	length := int64(-1)
	if r.Type != "cors" && r.Content.Header.Get("Content-Encoding") == "" {
		if n, err := strconv.ParseInt(r.Content.Header.Get("Content-Length"), 10, 64); err == nil && n >= 0 {
			length = n
		}
	}

	req := r.Request
	if req != nil {
		req = req.WithContext(withResponse(req.Context(), r))
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.StatusCode, r.Reason),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          r.Content,
		ContentLength: length,
		Request:       req,
	}
}
