// Package devserver is a fixture HTTP server for exercising the fetch
// transport from a browser or a wasm runtime.
//
// Fixtures:
//
//	ANY /echo                          request echoed as JSON
//	GET /status/:code?retry_after=     the given status, error body for 4xx/5xx
//	GET /chunks?n=&size=&delay=        n flushed chunks of size bytes
//	GET /redirect?to=&status=&hops=    redirect chain ending at a local path
//	GET /slow?delay=                   answers after delay
//	GET /events?n=&interval=&retry=    text/event-stream of "tick" events
//	GET /health                        component health
//
// Every other GET is served from Config.StaticDir when set, which is how
// the wasm bundle and wasm_exec.js are delivered.
//
// CORS is permissive by default and exposes the fixture headers, so
// cross-origin pages can read them through fetch.
package devserver
