// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// edgebus is the operator CLI. It joins the bus as a short-lived
// service to probe the broker, send heartbeats and push_data, read
// liveness snapshots, reset failed instances and run raw device
// exchanges.
package main

import (
	"fmt"
	"os"

	"github.com/edgebus/edgebus/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 1 && args[0] == "--version" {
		version.Print(os.Stdout, "edgebus")
		return nil
	}
	return root(os.Stdout, dialZMQ).Execute(args)
}
