// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/transport"
)

var (
	// ErrUnknownDestination reports an envelope addressed to a name no
	// service has registered.
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrNoDestination reports a non-register envelope with an empty
	// destination.
	ErrNoDestination = errors.New("envelope has no destination")
)

// DefaultPollTimeout bounds each receive in Run, so cancellation is
// noticed promptly.
const DefaultPollTimeout = 100 * time.Millisecond

// Config holds the broker's collaborators. Router is required.
type Config struct {
	Router transport.Router

	// Registry defaults to an empty registry.
	Registry *Registry

	// Metrics defaults to unregistered collectors.
	Metrics *Metrics

	// Logger defaults to discarding output.
	Logger *slog.Logger

	// PollTimeout defaults to DefaultPollTimeout.
	PollTimeout time.Duration
}

// Broker relays envelopes between registered services.
type Broker struct {
	router      transport.Router
	registry    *Registry
	metrics     *Metrics
	logger      *slog.Logger
	pollTimeout time.Duration
}

// New creates a broker. It panics when Router is nil.
func New(config Config) *Broker {
	if config.Router == nil {
		panic("broker: Router is required")
	}
	broker := &Broker{
		router:      config.Router,
		registry:    config.Registry,
		metrics:     config.Metrics,
		logger:      config.Logger,
		pollTimeout: config.PollTimeout,
	}
	if broker.registry == nil {
		broker.registry = NewRegistry()
	}
	if broker.metrics == nil {
		broker.metrics = NewMetrics(nil)
	}
	if broker.logger == nil {
		broker.logger = slog.New(slog.DiscardHandler)
	}
	if broker.pollTimeout <= 0 {
		broker.pollTimeout = DefaultPollTimeout
	}
	return broker
}

// Registry returns the broker's registry. Only the goroutine running
// the broker may use it.
func (b *Broker) Registry() *Registry { return b.registry }

// Run receives and handles frames until ctx is cancelled or the router
// is closed. Errors from individual frames are logged, never returned.
func (b *Broker) Run(ctx context.Context) error {
	b.logger.Info("broker running")
	for {
		if ctx.Err() != nil {
			b.logger.Info("broker stopping", "registered", b.registry.Len())
			return nil
		}

		identity, data, err := b.router.Recv(b.pollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			return nil
		default:
			b.logger.Warn("receive failed", "error", err)
			continue
		}

		if err := b.HandleFrame(identity, data); err != nil {
			b.logger.Warn("frame dropped",
				"identity", string(identity),
				"service", b.registry.NameOf(identity),
				"error", err,
			)
		}
	}
}

// HandleFrame applies one inbound frame from identity. The returned
// error describes why the frame was dropped, if it was.
func (b *Broker) HandleFrame(identity transport.Identity, data []byte) error {
	message, err := envelope.Decode(data)
	if err != nil {
		b.metrics.dropped.WithLabelValues(dropMalformed).Inc()
		return err
	}

	if message.Kind == envelope.KindRegister {
		return b.handleRegister(identity, message)
	}

	if message.Destination == "" {
		b.metrics.dropped.WithLabelValues(dropNoDestination).Inc()
		return fmt.Errorf("%w: id=%s from %s", ErrNoDestination, message.ID, message.Source)
	}

	target, ok := b.registry.Lookup(message.Destination)
	if !ok {
		b.metrics.dropped.WithLabelValues(dropUnknownDest).Inc()
		return fmt.Errorf("%w: %q (id=%s from %s)", ErrUnknownDestination, message.Destination, message.ID, message.Source)
	}

	if err := b.router.Send(target, data); err != nil {
		b.metrics.dropped.WithLabelValues(dropPeerUnavailable).Inc()
		return fmt.Errorf("forwarding %s to %s: %w", message.ID, message.Destination, err)
	}
	b.metrics.forwarded.Inc()
	b.logger.Debug("forwarded",
		"id", message.ID,
		"source", message.Source,
		"destination", message.Destination,
		"action", message.Action,
	)
	return nil
}

func (b *Broker) handleRegister(identity transport.Identity, message *envelope.Envelope) error {
	name := message.PayloadString("service_name")
	if name == "" {
		name = message.Source
	}
	if name == "" {
		b.metrics.dropped.WithLabelValues(dropMalformed).Inc()
		return fmt.Errorf("%w: register %s has no service name", envelope.ErrMalformedEnvelope, message.ID)
	}

	previous, replaced := b.registry.Register(name, identity)
	b.metrics.registrations.Inc()
	b.metrics.registered.Set(float64(b.registry.Len()))
	if replaced {
		b.logger.Info("service re-registered",
			"service", name,
			"identity", string(identity),
			"previous_identity", string(previous),
		)
	} else {
		b.logger.Info("service registered", "service", name, "identity", string(identity))
	}

	ack := message.Reply(envelope.BrokerName, envelope.ActionRegister, map[string]any{"status": "ok"})
	data, err := envelope.Encode(ack)
	if err != nil {
		return err
	}
	if err := b.router.Send(identity, data); err != nil {
		b.metrics.dropped.WithLabelValues(dropPeerUnavailable).Inc()
		return fmt.Errorf("acknowledging registration of %s: %w", name, err)
	}
	return nil
}
