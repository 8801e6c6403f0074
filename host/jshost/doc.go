// Package jshost binds host.Runtime to the fetch API of a JavaScript
// environment through syscall/js.
//
// On targets other than js/wasm, New reports ErrUnavailable.
//
// Promises returned by the runtime settle on the JS event loop, so they
// must not be awaited from inside a js.Func callback; await them from a
// goroutine, as net/http does on js/wasm.
package jshost

import "errors"

// ErrUnavailable is returned when no fetch primitive can be found.
var ErrUnavailable = errors.New("jshost: fetch is not available in this environment")
