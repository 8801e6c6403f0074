// Package version reports the build version of the wasmfetch tools.
//
//	go build -ldflags "-X github.com/kbukum/wasmfetch/version.Version=v0.3.0" ./cmd/devserver
package version
