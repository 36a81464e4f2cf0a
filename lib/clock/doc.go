// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Every control loop in the bus (liveness sweeps, restart cooldowns,
// uplink schedules, heartbeat cadence) reads time through a Clock so
// that tests can drive the loop deterministically. Production code
// uses Real(); tests use Fake() and call Advance between ticks:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	registry := liveness.NewRegistry(30*time.Second, fake)
//	fake.Advance(31 * time.Second)
//	registry.Sweep()
//
// Goroutines that block on After, Sleep or a Ticker register a pending
// waiter. Tests call WaitForTimers before Advance to avoid racing the
// registration.
package clock
