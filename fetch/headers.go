package fetch

import (
	"net/http"
	"net/textproto"
	"sort"

	"golang.org/x/net/http/httpguts"

	"github.com/kbukum/wasmfetch/host"
)

// contentHeaders describe the body rather than the message and are kept on
// Content.Header.
var contentHeaders = map[string]struct{}{
	"Allow":               {},
	"Content-Disposition": {},
	"Content-Encoding":    {},
	"Content-Language":    {},
	"Content-Length":      {},
	"Content-Location":    {},
	"Content-Md5":         {},
	"Content-Range":       {},
	"Content-Type":        {},
	"Expires":             {},
	"Last-Modified":       {},
}

// IsContentHeader reports whether name belongs to the body's header set.
func IsContentHeader(name string) bool {
	_, ok := contentHeaders[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// acceptsResponseHeader reports whether the response header set takes the
// entry.
func acceptsResponseHeader(name, value string) bool {
	return httpguts.ValidHeaderFieldName(name) &&
		httpguts.ValidHeaderFieldValue(value) &&
		!IsContentHeader(name)
}

// addHeader stores an entry on the response set, or on the content set if
// the response set rejects it. No entry is dropped.
func addHeader(resp, content http.Header, name, value string) {
	switch {
	case acceptsResponseHeader(name, value):
		resp.Add(name, value)
	case httpguts.ValidHeaderFieldName(name):
		content.Add(name, value)
	default:
		content[name] = append(content[name], value)
	}
}

// copyHeaders walks the host headers in order. Each entry is released before
// the next is requested; the iterator is released on every path.
func copyHeaders(src host.Headers, resp, content http.Header) error {
	if src == nil {
		return nil
	}
	defer src.Release()

	it, err := src.Entries()
	if err != nil {
		return err
	}
	defer it.Release()

	for {
		entry, err := it.Next()
		if err != nil {
			return err
		}
		if entry.Done() {
			entry.Release()
			return nil
		}
		name, value, err := entry.Entry()
		entry.Release()
		if err != nil {
			return err
		}
		addHeader(resp, content, name, value)
	}
}

// appendHeaders appends every value of h to dst, names in sorted order.
func appendHeaders(dst host.Headers, h http.Header) error {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range h[name] {
			if err := dst.Append(name, v); err != nil {
				return err
			}
		}
	}
	return nil
}
