// Command devserver runs the fixture server used to exercise the fetch
// transport from a browser.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
