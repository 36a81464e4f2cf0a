// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package liveness tracks service heartbeats and drives bounded
// automatic recovery.
//
// Each (service, instance) pair has a [Record] moving through
//
//	INIT -> RUNNING -> TIMEOUT -> RESTARTING -> FAILED
//
// A heartbeat moves any record that is not FAILED to RUNNING. A RUNNING
// record whose last heartbeat is older than the timeout becomes
// TIMEOUT on the next sweep. The [Controller] then invokes the
// configured restart action, at most MaxRetry times and never twice
// within Cooldown; a restart that produces no heartbeat within the
// timeout falls back to TIMEOUT so the next tick can retry. A record
// that exhausts its budget, or has no restart action, becomes FAILED,
// and the controller emits a service.failed event for it on every
// tick until an operator resets it.
//
// Sweep, restart attempts and escalation all happen inside
// [Controller.Tick], in that order, so recovery is a deterministic
// function of the injected clock and the record state. The registry is
// owned by the health service's control loop and takes no locks.
package liveness
