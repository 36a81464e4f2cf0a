// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pebbe/zmq4"
)

// Compile-time interface checks.
var (
	_ Router = (*ZMQRouter)(nil)
	_ Dealer = (*ZMQDealer)(nil)
)

// SocketOptions tunes the ZeroMQ sockets. Zero values take defaults.
type SocketOptions struct {
	// HighWaterMark bounds the per-peer send and receive queues.
	// Defaults to 1000 frames.
	HighWaterMark int

	// Linger is how long Close waits for queued frames. Defaults to
	// one second.
	Linger time.Duration
}

func (o SocketOptions) withDefaults() SocketOptions {
	if o.HighWaterMark <= 0 {
		o.HighWaterMark = 1000
	}
	if o.Linger <= 0 {
		o.Linger = time.Second
	}
	return o
}

func configureSocket(socket *zmq4.Socket, options SocketOptions) error {
	if err := socket.SetLinger(options.Linger); err != nil {
		return fmt.Errorf("setting linger: %w", err)
	}
	if err := socket.SetRcvhwm(options.HighWaterMark); err != nil {
		return fmt.Errorf("setting receive high water mark: %w", err)
	}
	if err := socket.SetSndhwm(options.HighWaterMark); err != nil {
		return fmt.Errorf("setting send high water mark: %w", err)
	}
	return nil
}

// ZMQRouter is a bound ZeroMQ ROUTER socket. Not safe for concurrent
// use; the broker drives it from its single loop.
type ZMQRouter struct {
	socket *zmq4.Socket
	poller *zmq4.Poller
}

// ListenZMQ binds a ROUTER socket to endpoint (e.g. "tcp://*:5555").
func ListenZMQ(endpoint string, options SocketOptions) (*ZMQRouter, error) {
	options = options.withDefaults()

	socket, err := zmq4.NewSocket(zmq4.ROUTER)
	if err != nil {
		return nil, fmt.Errorf("transport: creating ROUTER socket: %w", err)
	}
	if err := configureSocket(socket, options); err != nil {
		socket.Close()
		return nil, fmt.Errorf("transport: %w", err)
	}
	// Unroutable identities fail with EHOSTUNREACH instead of being
	// silently discarded, so the caller can log the drop.
	if err := socket.SetRouterMandatory(1); err != nil {
		socket.Close()
		return nil, fmt.Errorf("transport: setting router mandatory: %w", err)
	}
	if err := socket.Bind(endpoint); err != nil {
		socket.Close()
		return nil, fmt.Errorf("transport: binding %s: %w", endpoint, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)
	return &ZMQRouter{socket: socket, poller: poller}, nil
}

// Recv returns the next frame and the identity of its sender.
func (r *ZMQRouter) Recv(timeout time.Duration) (Identity, []byte, error) {
	if err := pollIn(r.poller, timeout); err != nil {
		return "", nil, err
	}
	frames, err := r.socket.RecvMessageBytes(zmq4.DONTWAIT)
	if err != nil {
		return "", nil, recvError(err)
	}
	if len(frames) < 2 {
		return "", nil, fmt.Errorf("transport: ROUTER message has %d frames, want identity and body", len(frames))
	}
	// REQ-style peers insert an empty delimiter; the body is always
	// the last frame.
	return Identity(frames[0]), frames[len(frames)-1], nil
}

// Send queues data for identity.
func (r *ZMQRouter) Send(identity Identity, data []byte) error {
	if _, err := r.socket.SendMessageDontwait(string(identity), data); err != nil {
		return sendError(err)
	}
	return nil
}

// Close closes the socket.
func (r *ZMQRouter) Close() error {
	return r.socket.Close()
}

// ZMQDealer is a connected ZeroMQ DEALER socket. Not safe for
// concurrent use.
type ZMQDealer struct {
	socket   *zmq4.Socket
	poller   *zmq4.Poller
	identity Identity
}

// DialZMQ connects a DEALER socket to endpoint. The socket identity is
// name plus a random suffix, so a restarted service appears to the
// broker as a new peer and re-registration supersedes the old route.
func DialZMQ(endpoint, name string, options SocketOptions) (*ZMQDealer, error) {
	options = options.withDefaults()

	socket, err := zmq4.NewSocket(zmq4.DEALER)
	if err != nil {
		return nil, fmt.Errorf("transport: creating DEALER socket: %w", err)
	}
	if err := configureSocket(socket, options); err != nil {
		socket.Close()
		return nil, fmt.Errorf("transport: %w", err)
	}
	identity := Identity(name + "-" + uuid.NewString()[:8])
	if err := socket.SetIdentity(string(identity)); err != nil {
		socket.Close()
		return nil, fmt.Errorf("transport: setting identity: %w", err)
	}
	if err := socket.Connect(endpoint); err != nil {
		socket.Close()
		return nil, fmt.Errorf("transport: connecting %s: %w", endpoint, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)
	return &ZMQDealer{socket: socket, poller: poller, identity: identity}, nil
}

// Identity returns the identity the router sees for this dealer.
func (d *ZMQDealer) Identity() Identity { return d.identity }

// Recv returns the next frame from the router.
func (d *ZMQDealer) Recv(timeout time.Duration) ([]byte, error) {
	if err := pollIn(d.poller, timeout); err != nil {
		return nil, err
	}
	frames, err := d.socket.RecvMessageBytes(zmq4.DONTWAIT)
	if err != nil {
		return nil, recvError(err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("transport: empty DEALER message")
	}
	return frames[len(frames)-1], nil
}

// Send queues data for the router.
func (d *ZMQDealer) Send(data []byte) error {
	if _, err := d.socket.SendBytes(data, zmq4.DONTWAIT); err != nil {
		return sendError(err)
	}
	return nil
}

// Close closes the socket.
func (d *ZMQDealer) Close() error {
	return d.socket.Close()
}

func pollIn(poller *zmq4.Poller, timeout time.Duration) error {
	if timeout < 0 {
		timeout = 0
	}
	polled, err := poller.Poll(timeout)
	if err != nil {
		return fmt.Errorf("transport: poll: %w", err)
	}
	if len(polled) == 0 {
		return ErrTimeout
	}
	return nil
}

func recvError(err error) error {
	if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
		return ErrTimeout
	}
	return fmt.Errorf("transport: receive: %w", err)
}

func sendError(err error) error {
	switch zmq4.AsErrno(err) {
	case zmq4.Errno(syscall.EAGAIN), zmq4.Errno(syscall.EHOSTUNREACH):
		return fmt.Errorf("%w: %v", ErrPeerUnavailable, err)
	}
	return fmt.Errorf("transport: send: %w", err)
}
