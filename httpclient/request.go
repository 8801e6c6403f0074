package httpclient

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/kbukum/wasmfetch/httpclient/sse"
)

// Request describes an outbound request.
type Request struct {
	// Method defaults to GET.
	Method string
	// Path is appended to the client's BaseURL. Can be a full URL.
	Path string
	// Headers are merged over the client defaults.
	Headers map[string]string
	Query   map[string]string
	// Body accepts io.Reader, []byte, string, or any value that is
	// JSON-encoded.
	Body any
	// Auth overrides the client-level auth for this request.
	Auth *AuthConfig
	// FetchOptions are raw host fetch options for this request only,
	// e.g. {"cache": "no-store"}.
	FetchOptions map[string]any
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Redirected reports whether the host followed a redirect.
	Redirected bool
	// URL is the final response URL.
	URL string
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// JSONPath looks up a value in a JSON body, e.g. "headers.X-Test.0".
// The result does not exist if the body is not JSON or has no such path.
func (r *Response) JSONPath(path string) gjson.Result {
	if !gjson.ValidBytes(r.Body) {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// StreamResponse is a response whose body is read as it arrives.
type StreamResponse struct {
	StatusCode int
	Header     http.Header
	// SSE is set for text/event-stream responses.
	SSE sse.Reader
	// Body is set for every other content type.
	Body io.ReadCloser

	release func()
}

// Close releases the body and the client's in-flight slot. It is safe to
// call more than once.
func (r *StreamResponse) Close() error {
	var err error
	switch {
	case r.SSE != nil:
		err = r.SSE.Close()
	case r.Body != nil:
		err = r.Body.Close()
	}
	if r.release != nil {
		r.release()
	}
	return err
}
