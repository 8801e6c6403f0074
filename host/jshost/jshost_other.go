//go:build !(js && wasm)

package jshost

import "github.com/kbukum/wasmfetch/host"

// Runtime is unavailable outside js/wasm.
type Runtime struct{}

var _ host.Runtime = (*Runtime)(nil)

// New always fails with ErrUnavailable.
func New() (*Runtime, error) {
	return nil, ErrUnavailable
}

func (*Runtime) Fetch(string, *host.Options) (host.Promise[host.Response], error) {
	return nil, ErrUnavailable
}

func (*Runtime) NewAbortController() (host.AbortController, error) {
	return nil, ErrUnavailable
}

func (*Runtime) NewHeaders() (host.Headers, error) {
	return nil, ErrUnavailable
}

func (*Runtime) SupportsStreaming() bool { return false }
