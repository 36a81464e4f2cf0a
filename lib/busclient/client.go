// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package busclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/transport"
)

// ErrRegistrationTimeout is returned by Register when the broker did
// not acknowledge any attempt.
var ErrRegistrationTimeout = errors.New("registration not acknowledged")

// Defaults for Config fields left zero.
const (
	DefaultAckTimeout    = 2 * time.Second
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMaxRetryDelay = 10 * time.Second
	DefaultPendingLimit  = 256
)

// Config configures a Client. Dealer and Name are required.
type Config struct {
	Dealer transport.Dealer

	// Name is the service name registered with the broker and used as
	// the source of every envelope the client builds.
	Name string

	// AckTimeout bounds the wait for each registration ACK.
	AckTimeout time.Duration

	// RetryDelay is the pause after the first unacknowledged attempt.
	// It doubles after each further attempt up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// Attempts limits registration attempts. Zero or negative retries
	// until the context ends.
	Attempts int

	// Keepalive re-sends the registration this often, so a restarted
	// broker relearns the route. Zero disables it.
	Keepalive time.Duration

	// PendingLimit caps envelopes held back while waiting for a
	// specific reply. The oldest is dropped past the cap.
	PendingLimit int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Client is a service's connection to the broker. It is not safe for
// concurrent use; each service drives it from its control loop.
type Client struct {
	dealer        transport.Dealer
	name          string
	ackTimeout    time.Duration
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	attempts      int
	keepalive     time.Duration
	pendingLimit  int
	clock         clock.Clock
	logger        *slog.Logger

	// pending holds envelopes received while waiting for something
	// else. Poll returns them before reading the dealer.
	pending []*envelope.Envelope

	lastRegister time.Time
}

// New creates a client. It panics when Dealer or Name is missing.
func New(config Config) *Client {
	if config.Dealer == nil {
		panic("busclient: Dealer is required")
	}
	if config.Name == "" {
		panic("busclient: Name is required")
	}
	c := &Client{
		dealer:        config.Dealer,
		name:          config.Name,
		ackTimeout:    config.AckTimeout,
		retryDelay:    config.RetryDelay,
		maxRetryDelay: config.MaxRetryDelay,
		attempts:      config.Attempts,
		keepalive:     config.Keepalive,
		pendingLimit:  config.PendingLimit,
		clock:         config.Clock,
		logger:        config.Logger,
	}
	if c.ackTimeout <= 0 {
		c.ackTimeout = DefaultAckTimeout
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.maxRetryDelay <= 0 {
		c.maxRetryDelay = DefaultMaxRetryDelay
	}
	if c.pendingLimit <= 0 {
		c.pendingLimit = DefaultPendingLimit
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Name returns the registered service name.
func (c *Client) Name() string { return c.name }

// Register announces the service to the broker and waits for the ACK.
// Unacknowledged attempts are retried with exponential backoff. The
// error wraps ErrRegistrationTimeout when attempts run out, or the
// context error when ctx ends first.
func (c *Client) Register(ctx context.Context) error {
	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		request := envelope.NewRegister(c.name)
		if err := c.Send(request); err != nil {
			c.logger.Warn("register send failed", "attempt", attempt, "error", err)
		} else {
			acked, err := c.awaitAck(ctx, request.ID)
			if err != nil {
				return err
			}
			if acked {
				c.lastRegister = c.clock.Now()
				c.logger.Info("registered with broker", "service", c.name, "attempt", attempt)
				return nil
			}
			c.logger.Warn("register not acknowledged", "attempt", attempt, "timeout", c.ackTimeout)
		}

		if c.attempts > 0 && attempt >= c.attempts {
			return fmt.Errorf("%w: %s after %d attempts", ErrRegistrationTimeout, c.name, attempt)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("registering %s: %w", c.name, ctx.Err())
		case <-c.clock.After(delay):
		}
		delay = min(delay*2, c.maxRetryDelay)
	}
}

func (c *Client) awaitAck(ctx context.Context, registerID string) (bool, error) {
	deadline := c.clock.Now().Add(c.ackTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("registering %s: %w", c.name, err)
		}
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return false, nil
		}
		message, err := c.receive(min(remaining, 100*time.Millisecond))
		if err != nil {
			return false, fmt.Errorf("registering %s: %w", c.name, err)
		}
		if message == nil {
			continue
		}
		if message.IsRegisterAck(registerID) {
			return true, nil
		}
		if !isAnyRegisterAck(message) {
			c.stash(message)
		}
	}
}

// Maintain re-sends the registration when the keepalive interval has
// elapsed. The ACK is consumed by Poll.
func (c *Client) Maintain() {
	if c.keepalive <= 0 {
		return
	}
	now := c.clock.Now()
	if now.Sub(c.lastRegister) < c.keepalive {
		return
	}
	c.lastRegister = now
	if err := c.Send(envelope.NewRegister(c.name)); err != nil {
		c.logger.Warn("keepalive register failed", "error", err)
	}
}

// Send encodes and sends an envelope without blocking.
func (c *Client) Send(message *envelope.Envelope) error {
	data, err := envelope.Encode(message)
	if err != nil {
		return err
	}
	if err := c.dealer.Send(data); err != nil {
		return fmt.Errorf("sending %s to %s: %w", message.Action, message.Destination, err)
	}
	return nil
}

// Emit sends an event from this service.
func (c *Client) Emit(destination, action string, payload map[string]any) error {
	return c.Send(envelope.New(envelope.KindEvent, c.name, destination, action, payload))
}

// Reply answers request with a response from this service.
func (c *Client) Reply(request *envelope.Envelope, payload map[string]any) error {
	return c.Send(request.Reply(c.name, request.Action, payload))
}

// Poll returns the next inbound envelope, waiting up to timeout. It
// returns nil with no error when nothing arrived. Registration ACKs
// and undecodable frames are consumed here and never returned.
func (c *Client) Poll(timeout time.Duration) (*envelope.Envelope, error) {
	if len(c.pending) > 0 {
		message := c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]
		return message, nil
	}
	message, err := c.receive(timeout)
	if err != nil {
		return nil, err
	}
	if message != nil && isAnyRegisterAck(message) {
		return nil, nil
	}
	return message, nil
}

// Call sends a request and waits up to timeout for the correlated
// response. Unrelated envelopes arriving meanwhile are kept for Poll.
// On expiry the error wraps transport.ErrTimeout.
func (c *Client) Call(ctx context.Context, destination, action string, payload map[string]any, timeout time.Duration) (*envelope.Envelope, error) {
	request := envelope.New(envelope.KindRequest, c.name, destination, action, payload)
	if err := c.Send(request); err != nil {
		return nil, err
	}

	deadline := c.clock.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("calling %s %s: %w", destination, action, err)
		}
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return nil, fmt.Errorf("calling %s %s: %w", destination, action, transport.ErrTimeout)
		}
		message, err := c.receive(min(remaining, 100*time.Millisecond))
		if err != nil {
			return nil, fmt.Errorf("calling %s %s: %w", destination, action, err)
		}
		if message == nil {
			continue
		}
		if message.Kind == envelope.KindResponse && message.CorrelationID == request.ID {
			return message, nil
		}
		if !isAnyRegisterAck(message) {
			c.stash(message)
		}
	}
}

// Close closes the underlying dealer.
func (c *Client) Close() error {
	return c.dealer.Close()
}

// receive reads one frame. A timeout or undecodable frame yields a nil
// envelope and nil error; only transport failures are returned.
func (c *Client) receive(timeout time.Duration) (*envelope.Envelope, error) {
	data, err := c.dealer.Recv(timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return nil, nil
		}
		return nil, err
	}
	message, err := envelope.Decode(data)
	if err != nil {
		c.logger.Warn("discarding malformed envelope", "error", err)
		return nil, nil
	}
	return message, nil
}

func (c *Client) stash(message *envelope.Envelope) {
	if len(c.pending) >= c.pendingLimit {
		dropped := c.pending[0]
		c.pending = c.pending[1:]
		c.logger.Warn("pending queue full, dropping envelope",
			"id", dropped.ID,
			"source", dropped.Source,
			"action", dropped.Action,
		)
	}
	c.pending = append(c.pending, message)
}

func isAnyRegisterAck(message *envelope.Envelope) bool {
	return message.Kind == envelope.KindResponse &&
		message.Action == envelope.ActionRegister &&
		message.Source == envelope.BrokerName
}
