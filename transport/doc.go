// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries opaque frames between the broker and the
// services of an edge node.
//
// The broker holds a [Router]: one endpoint receiving from every peer,
// each frame tagged with the peer's [Identity], and able to address a
// frame back to any identity it has seen. Each service holds a
// [Dealer]: a single connection to the router.
//
// Both sides send without blocking. A frame that cannot be queued (the
// peer is gone, or its queue is at the high-water mark) fails with
// [ErrPeerUnavailable] and is dropped. Receives take an explicit
// timeout and fail with [ErrTimeout] when nothing arrives, so the
// owning control loop can run its scheduled work.
//
// [ZMQRouter] and [ZMQDealer] use ZeroMQ ROUTER and DEALER sockets and
// are what the binaries run. [Hub] provides an in-process pair for
// tests.
package transport
