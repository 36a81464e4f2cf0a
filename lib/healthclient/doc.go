// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package healthclient sends periodic heartbeats from a service to the
// health service.
//
// A [Reporter] is driven from the owning service's control loop: call
// [Reporter.Tick] on every iteration and it emits a heartbeat event
// when the interval has elapsed. The heartbeat carries the service
// name, instance id, current [Status], uptime in seconds and a Unix
// timestamp.
package healthclient
