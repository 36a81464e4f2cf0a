// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketDir creates a temporary directory suitable for Unix domain
// sockets. t.TempDir() may exceed the 108-byte sun_path limit, so the
// directory is created directly in /tmp. It is removed when the test
// completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "edgebus-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// IPCEndpoint returns a fresh ipc:// endpoint inside a SocketDir.
func IPCEndpoint(t *testing.T) string {
	t.Helper()
	return "ipc://" + filepath.Join(SocketDir(t), "bus.sock")
}

// InprocEndpoint returns an inproc:// endpoint unique within the test
// binary.
func InprocEndpoint(prefix string) string {
	return "inproc://" + UniqueID(prefix)
}
