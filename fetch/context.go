package fetch

import "context"

type contextKey int

const (
	streamingKey contextKey = iota
	fetchOptionsKey
	responseKey
)

// WithStreamingResponse enables or disables streaming body delivery for
// requests sent with ctx. Streaming is only used when the host supports it.
func WithStreamingResponse(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, streamingKey, enabled)
}

// StreamingResponse reports the streaming choice stored in ctx, if any.
func StreamingResponse(ctx context.Context) (enabled, ok bool) {
	enabled, ok = ctx.Value(streamingKey).(bool)
	return enabled, ok
}

// WithFetchOptions passes raw host fetch options (e.g. "mode", "cache",
// "credentials", "integrity") through to the host. Method, redirect, body,
// headers and signal are always set by the transport and override them.
func WithFetchOptions(ctx context.Context, opts map[string]any) context.Context {
	return context.WithValue(ctx, fetchOptionsKey, opts)
}

// FetchOptions returns the raw options stored in ctx.
func FetchOptions(ctx context.Context) map[string]any {
	opts, _ := ctx.Value(fetchOptionsKey).(map[string]any)
	return opts
}

// ResponseFromContext returns the Response behind an *http.Response
// produced by Transport.RoundTrip, given its request's context. It gives
// access to the separate content header set and to ReadContext.
func ResponseFromContext(ctx context.Context) (*Response, bool) {
	r, ok := ctx.Value(responseKey).(*Response)
	return r, ok
}

func withResponse(ctx context.Context, r *Response) context.Context {
	return context.WithValue(ctx, responseKey, r)
}
