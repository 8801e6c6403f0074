package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/wasmfetch/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "devserver",
		Short: "Fixture HTTP server for the wasm fetch transport",
		Long: `devserver serves echo, chunked, redirect, slow and event-stream
fixtures with permissive CORS, plus a static directory holding the wasm
bundle, so the fetch transport can be exercised end to end in a browser.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
