// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Router = (*MemoryRouter)(nil)
	_ Dealer = (*MemoryDealer)(nil)
)

// DefaultQueueSize is the per-endpoint queue depth of a Hub.
const DefaultQueueSize = 256

type memoryFrame struct {
	identity Identity
	data     []byte
}

// Hub is an in-process Router with any number of attached dealers.
// Queues are bounded like ZeroMQ's high-water mark: a full queue makes
// Send fail with ErrPeerUnavailable instead of blocking.
type Hub struct {
	queueSize int
	router    *MemoryRouter

	mu      sync.Mutex
	dealers map[Identity]*MemoryDealer
}

// NewHub creates a hub whose queues hold queueSize frames. A
// non-positive size takes DefaultQueueSize.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	hub := &Hub{
		queueSize: queueSize,
		dealers:   make(map[Identity]*MemoryDealer),
	}
	hub.router = &MemoryRouter{hub: hub, inbox: make(chan memoryFrame, queueSize), done: make(chan struct{})}
	return hub
}

// Router returns the hub's router side.
func (h *Hub) Router() *MemoryRouter { return h.router }

// Dial attaches a dealer with the given identity. Dialing an identity
// that is already attached replaces the earlier dealer, which stops
// receiving.
func (h *Hub) Dial(identity Identity) *MemoryDealer {
	dealer := &MemoryDealer{
		hub:      h,
		identity: identity,
		inbox:    make(chan []byte, h.queueSize),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	previous := h.dealers[identity]
	h.dealers[identity] = dealer
	h.mu.Unlock()
	if previous != nil {
		previous.closeOnce.Do(func() { close(previous.done) })
	}
	return dealer
}

func (h *Hub) dealer(identity Identity) *MemoryDealer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dealers[identity]
}

func (h *Hub) detach(dealer *MemoryDealer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dealers[dealer.identity] == dealer {
		delete(h.dealers, dealer.identity)
	}
}

// MemoryRouter is the router side of a Hub.
type MemoryRouter struct {
	hub       *Hub
	inbox     chan memoryFrame
	done      chan struct{}
	closeOnce sync.Once
}

// Recv returns the next frame sent by any dealer.
func (r *MemoryRouter) Recv(timeout time.Duration) (Identity, []byte, error) {
	frame, err := receive(r.inbox, r.done, timeout)
	if err != nil {
		return "", nil, err
	}
	return frame.identity, frame.data, nil
}

// Send queues data for the dealer attached as identity.
func (r *MemoryRouter) Send(identity Identity, data []byte) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	dealer := r.hub.dealer(identity)
	if dealer == nil {
		return ErrPeerUnavailable
	}
	return offer(dealer.inbox, dealer.done, cloneBytes(data))
}

// Close stops the router. Pending frames are discarded.
func (r *MemoryRouter) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

// MemoryDealer is one peer attached to a Hub.
type MemoryDealer struct {
	hub       *Hub
	identity  Identity
	inbox     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Identity returns the identity the router sees for this dealer.
func (d *MemoryDealer) Identity() Identity { return d.identity }

// Recv returns the next frame sent to this dealer.
func (d *MemoryDealer) Recv(timeout time.Duration) ([]byte, error) {
	return receive(d.inbox, d.done, timeout)
}

// Send queues data for the router.
func (d *MemoryDealer) Send(data []byte) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	router := d.hub.router
	return offer(router.inbox, router.done, memoryFrame{identity: d.identity, data: cloneBytes(data)})
}

// Close detaches the dealer from the hub.
func (d *MemoryDealer) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	d.hub.detach(d)
	return nil
}

func offer[T any](queue chan T, done <-chan struct{}, value T) error {
	select {
	case <-done:
		return ErrPeerUnavailable
	default:
	}
	select {
	case queue <- value:
		return nil
	default:
		return ErrPeerUnavailable
	}
}

func receive[T any](queue chan T, done <-chan struct{}, timeout time.Duration) (T, error) {
	var zero T
	select {
	case value := <-queue:
		return value, nil
	case <-done:
		return zero, ErrClosed
	default:
	}
	if timeout <= 0 {
		return zero, ErrTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value := <-queue:
		return value, nil
	case <-done:
		return zero, ErrClosed
	case <-timer.C:
		return zero, ErrTimeout
	}
}

func cloneBytes(data []byte) []byte {
	return append([]byte(nil), data...)
}
