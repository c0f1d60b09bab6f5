// cmd/loom/main.go
//
// This is the entry point for the Loom CLI.
//
// Flow:
// 1. Resolve the project directory (where the user ran `loom` from)
// 2. Make sure the .loom folder exists
// 3. Dispatch to the requested subcommand (run, refine, validate, runs)

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
