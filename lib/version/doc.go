// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for edgebus
// binaries.
//
// Three package-level variables are injected at build time via
// -ldflags -X: [GitCommit], [BuildTime] and [Version]. They default to
// "unknown" / "0.1.0-dev" in development builds and test runs.
//
// [Info] formats them for --version output; [Full] adds the Go
// version and platform.
package version
