//go:build js && wasm

// Command fetchdemo runs the fetch transport against the devserver
// fixtures from a browser.

package main

import (
	"context"
	"os"
	"syscall/js"

	"github.com/kbukum/wasmfetch/host/jshost"
	"github.com/kbukum/wasmfetch/logger"
)

func main() {
	log := logger.NewDefault("fetchdemo")
	rt, err := jshost.New()
	if err != nil {
		log.Error("no fetch host", logger.Fields(logger.FieldError, err.Error()))
		os.Exit(1)
	}
	origin := js.Global().Get("location").Get("origin").String()

	if err := runDemo(context.Background(), rt, origin, log, defaultOptions()); err != nil {
		os.Exit(1)
	}
}
