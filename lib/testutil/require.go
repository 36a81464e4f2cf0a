// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// Fataler is the part of *testing.T the Require helpers use.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch. Service loops, Call
// goroutines and broker runs report through channels; this bounds the
// wait so a lost envelope fails the test instead of hanging it.
//
//	err := testutil.RequireReceive(t, loopDone, 5*time.Second, "loop exit")
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, context ...any) T {
	t.Helper()
	expired := time.After(timeout)
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed before a value arrived", describe(context))
		}
		return value
	case <-expired:
		t.Fatalf("%s: nothing received within %v", describe(context), timeout)
	}
	panic("unreachable")
}

// RequireSend delivers value on ch within timeout.
func RequireSend[T any](t Fataler, ch chan<- T, value T, timeout time.Duration, context ...any) {
	t.Helper()
	expired := time.After(timeout)
	select {
	case ch <- value:
	case <-expired:
		t.Fatalf("%s: send blocked for %v", describe(context), timeout)
	}
}

// RequireClosed waits for a readiness or shutdown channel such as
// HTTPServer.Ready. A value on ch counts as well.
//
//	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "metrics endpoint")
func RequireClosed(t Fataler, ch <-chan struct{}, timeout time.Duration, context ...any) {
	t.Helper()
	expired := time.After(timeout)
	select {
	case <-ch:
	case <-expired:
		t.Fatalf("%s: channel still open after %v", describe(context), timeout)
	}
}

// describe renders the optional context of a Require call: nothing, a
// single value, or a format string with its arguments.
func describe(context []any) string {
	switch {
	case len(context) == 0:
		return "wait failed"
	case len(context) == 1:
		return fmt.Sprint(context[0])
	}
	if format, ok := context[0].(string); ok {
		return fmt.Sprintf(format, context[1:]...)
	}
	return fmt.Sprint(context...)
}
