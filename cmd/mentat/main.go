// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Command mentat is the CLI entry point: a thin wrapper exposing the
// transactor and query algebrizer as transact/query/schema subcommands
// plus an interactive repl, the way the teacher's cmd/ package wraps
// rego/topdown evaluation.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
