// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"time"
)

// Identity is the opaque, connection-stable address of a peer as seen
// by a Router.
type Identity string

var (
	// ErrTimeout is returned by Recv when no frame arrived in time.
	ErrTimeout = errors.New("transport: receive timed out")

	// ErrPeerUnavailable is returned by Send when the frame could not
	// be queued for the peer. The frame is dropped.
	ErrPeerUnavailable = errors.New("transport: peer unavailable")

	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("transport: closed")
)

// Router is the broker side: it receives from many peers and can
// address any of them.
type Router interface {
	// Recv waits up to timeout for the next frame. A timeout <= 0
	// polls without waiting.
	Recv(timeout time.Duration) (Identity, []byte, error)

	// Send queues data for identity without blocking.
	Send(identity Identity, data []byte) error

	Close() error
}

// Dealer is the service side: one connection to a Router.
type Dealer interface {
	// Recv waits up to timeout for the next frame. A timeout <= 0
	// polls without waiting.
	Recv(timeout time.Duration) ([]byte, error)

	// Send queues data for the router without blocking.
	Send(data []byte) error

	Close() error
}
