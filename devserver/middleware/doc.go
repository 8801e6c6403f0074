// Package middleware provides the gin middleware of the fixture server:
// panic recovery, request ids, CORS, request logging, tracing, metrics,
// rate limiting and body size limits.
package middleware
