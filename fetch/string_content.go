package fetch

import (
	"mime"
	"net/http"
	"strings"
)

// StringContent is a text request body. The transport hands it to the host
// as a string instead of a byte view.
type StringContent struct {
	s      string
	r      *strings.Reader
	header http.Header
}

// NewStringContent returns a text body with the given media type
// ("text/plain" when empty) and a UTF-8 charset.
func NewStringContent(s, mediaType string) *StringContent {
	if mediaType == "" {
		mediaType = "text/plain"
	}
	h := make(http.Header)
	h.Set("Content-Type", mime.FormatMediaType(mediaType, map[string]string{"charset": "utf-8"}))
	return &StringContent{s: s, r: strings.NewReader(s), header: h}
}

func (c *StringContent) String() string { return c.s }

// Header returns the body's content headers.
func (c *StringContent) Header() http.Header { return c.header }

// Len returns the body length in bytes.
func (c *StringContent) Len() int { return len(c.s) }

func (c *StringContent) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *StringContent) Close() error { return nil }
