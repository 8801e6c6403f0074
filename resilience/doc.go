// Package resilience holds the recovery policies the fetch client applies
// around a transport: retry with backoff, a circuit breaker, a bulkhead
// bounding in-flight requests and a token bucket rate limiter.
//
// The transport itself never retries. Callers compose these around it:
//
//	resp, err := resilience.Retry(ctx, cfg, func() (*httpclient.Response, error) {
//		return resilience.Call(cb, func() (*httpclient.Response, error) {
//			return client.Send(ctx, req)
//		})
//	})
package resilience
