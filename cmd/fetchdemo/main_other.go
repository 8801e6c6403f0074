//go:build !(js && wasm)

// Command fetchdemo runs the fetch transport against the devserver
// fixtures from a browser. Build it with GOOS=js GOARCH=wasm and serve the
// output with "devserver serve --static".
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "fetchdemo must be built with GOOS=js GOARCH=wasm")
	os.Exit(2)
}
