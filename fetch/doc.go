// Package fetch implements an http.RoundTripper on top of a host's
// promise-based fetch primitive (see package host).
//
// Each request owns an abort session: a context derived from the caller's,
// a host AbortController created before the fetch is issued, and a callback
// that aborts the controller when the context ends. The response wrapper
// owns the host response and the session and releases both exactly once.
//
// Bodies are delivered in one of two modes:
//
//   - buffered (default): the first read fetches the whole body with a
//     single arrayBuffer call, caches it and releases the host response.
//   - streaming: reads pull one chunk at a time from the body's reader and
//     keep at most one chunk in memory. Streaming is used only when the
//     host supports it and the request asks for it.
//
// # Basic Usage
//
//	rt, err := jshost.New()
//	if err != nil {
//	    return err
//	}
//	client := &http.Client{Transport: fetch.NewTransport(rt)}
//	resp, err := client.Get("/api/items")
//
// # Streaming
//
//	ctx := fetch.WithStreamingResponse(ctx, true)
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "/events", nil)
//	resp, err := transport.Send(ctx, req)
//	defer resp.Content.Close()
//	n, err := resp.Content.ReadContext(ctx, buf)
//
// # Errors
//
// Host failures are mapped onto *Error. Cancellations (caller context or
// host abort) carry ErrCodeCanceled and match context.Canceled or
// context.DeadlineExceeded through errors.Is; every other host failure
// carries ErrCodeRequestFailed. No retries happen here.
package fetch
