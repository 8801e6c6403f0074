package fetch

import (
	"net/http"
	"net/url"
)

// The host owns cookies, proxies, credentials, decompression and
// connection management. The setters below exist so that code written
// against a configurable client fails loudly instead of being ignored.

// SetProxy always fails: the host does not expose proxy settings.
func (t *Transport) SetProxy(func(*http.Request) (*url.URL, error)) error {
	return newUnsupportedError("proxy")
}

// SetUseProxy always fails.
func (t *Transport) SetUseProxy(bool) error {
	return newUnsupportedError("use proxy")
}

// SetDefaultProxyCredentials always fails.
func (t *Transport) SetDefaultProxyCredentials(*url.Userinfo) error {
	return newUnsupportedError("default proxy credentials")
}

// SetCookieJar always fails: cookies are managed by the host.
func (t *Transport) SetCookieJar(http.CookieJar) error {
	return newUnsupportedError("cookie jar")
}

// SetUseCookies always fails.
func (t *Transport) SetUseCookies(bool) error {
	return newUnsupportedError("use cookies")
}

// SetCredentials always fails. Use the "credentials" fetch option instead.
func (t *Transport) SetCredentials(*url.Userinfo) error {
	return newUnsupportedError("credentials")
}

// SetPreAuthenticate always fails.
func (t *Transport) SetPreAuthenticate(bool) error {
	return newUnsupportedError("pre-authenticate")
}

// SetAutomaticDecompression always fails: the host decompresses bodies on
// its own.
func (t *Transport) SetAutomaticDecompression(bool) error {
	return newUnsupportedError("automatic decompression")
}

// SetMaxAutomaticRedirections always fails.
func (t *Transport) SetMaxAutomaticRedirections(int) error {
	return newUnsupportedError("max automatic redirections")
}

// SetMaxConnectionsPerHost always fails.
func (t *Transport) SetMaxConnectionsPerHost(int) error {
	return newUnsupportedError("max connections per host")
}

// SetMaxResponseHeaderBytes always fails.
func (t *Transport) SetMaxResponseHeaderBytes(int64) error {
	return newUnsupportedError("max response header bytes")
}
