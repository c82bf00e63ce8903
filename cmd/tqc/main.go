// Command tqc compiles table query options into SQL offline.
//
// Usage:
//
//	tqc [--config tqc.yaml] [--schema schema.yaml] <command>
//
// Commands:
//   - compile: print the SQL an options bag compiles to for a table
//   - parse: show how filter strings are read
//   - encode / decode: build and inspect base64 (optionally zstd) filter payloads
//   - token: issue a bearer token for the HTTP API
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
