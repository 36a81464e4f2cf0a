// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package driver runs raw request/response exchanges with a field
// device on a dedicated worker goroutine.
//
// The service's envelope loop hands jobs to a [Worker] through a
// bounded queue. [Worker.Submit] never blocks: when the queue is full
// it returns [ErrQueueFull] and the caller answers that one request
// with an error. Results come back on [Worker.Results] for the loop to
// turn into responses.
//
// Devices are reached through an [Exchanger]. [TCPExchanger] talks to
// a serial-to-TCP gateway, writing a frame and reading the reply until
// the line goes quiet for the configured silence gap, the way RTU
// framing delimits messages.
package driver
