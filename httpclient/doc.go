// Package httpclient is a caller-side client over the fetch transport. It
// adds base URLs, default headers, auth, typed JSON helpers, status
// classification and the resilience policies (retry, circuit breaker,
// rate limiting, bulkhead) that the transport does not apply.
//
//	tr := fetch.NewTransport(jshost.New())
//	client, err := httpclient.New(httpclient.Config{
//		BaseURL: "http://localhost:8080",
//		Retry:   httpclient.DefaultRetryConfig(),
//	}, tr)
//
//	resp, err := client.Do(ctx, httpclient.Request{Path: "/echo"})
//	agent := resp.JSONPath("headers.User-Agent.0").String()
//
// Streaming responses are requested with DoStream; text/event-stream
// bodies come back as an sse.Reader:
//
//	stream, err := client.DoStream(ctx, httpclient.Request{Path: "/events?n=3"})
//	defer stream.Close()
//	for ev, err := range sse.All(stream.SSE) { ... }
package httpclient
