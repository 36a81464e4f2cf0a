// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Edgebus packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout pattern so individual tests do not need direct
// time.After calls.
//
// [SocketDir] creates a short temporary directory for ipc:// endpoints,
// whose socket paths are limited to 108 bytes. [IPCEndpoint] and
// [InprocEndpoint] build unique ZeroMQ endpoints from it and from
// [UniqueID].
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
