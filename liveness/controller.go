// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"log/slog"

	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/envelope"
)

// ActionServiceFailed is the action of escalation events.
const ActionServiceFailed = "service.failed"

// DefaultEscalationTarget receives escalation events when no target is
// configured.
const DefaultEscalationTarget = "platform-gateway"

// Sender delivers envelopes onto the bus.
type Sender interface {
	Send(message *envelope.Envelope) error
}

// ControllerConfig wires a Controller. Registry is required.
type ControllerConfig struct {
	Registry *Registry
	Policies Policies

	// Restarter performs restarts. Nil means no restart action is
	// available and timed-out instances with a policy fail at once.
	Restarter Restarter

	// Sender carries escalation events. Nil disables escalation.
	Sender Sender

	// Source is the service name escalation events are sent from.
	Source string

	// EscalationTarget defaults to DefaultEscalationTarget.
	EscalationTarget string

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// Controller runs the sweep, restart and escalation cycle over a
// Registry.
type Controller struct {
	registry         *Registry
	policies         Policies
	restarter        Restarter
	sender           Sender
	source           string
	escalationTarget string
	clock            clock.Clock
	logger           *slog.Logger
	metrics          *Metrics
}

// NewController creates a controller. It panics without a Registry.
func NewController(config ControllerConfig) *Controller {
	if config.Registry == nil {
		panic("liveness: Registry is required")
	}
	c := &Controller{
		registry:         config.Registry,
		policies:         config.Policies,
		restarter:        config.Restarter,
		sender:           config.Sender,
		source:           config.Source,
		escalationTarget: config.EscalationTarget,
		clock:            config.Clock,
		logger:           config.Logger,
		metrics:          config.Metrics,
	}
	if c.escalationTarget == "" {
		c.escalationTarget = DefaultEscalationTarget
	}
	if c.clock == nil {
		c.clock = config.Registry.clock
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// Registry returns the controlled registry.
func (c *Controller) Registry() *Registry { return c.registry }

// Tick runs one control cycle: sweep, then a restart attempt for every
// TIMEOUT record with a policy, then escalation for every FAILED
// record.
func (c *Controller) Tick() {
	for _, key := range c.registry.Sweep() {
		record, _ := c.registry.Get(key)
		c.logger.Warn("heartbeat timeout",
			"service", key.Service,
			"instance_id", key.Instance,
			"last_seen", record.LastSeen,
			"retry_count", record.RetryCount,
		)
	}

	records := c.registry.sorted()
	for _, record := range records {
		if record.State != StateTimeout {
			continue
		}
		policy, ok := c.policies.Lookup(record.Key)
		if !ok {
			continue
		}
		c.TryRestart(record, policy)
	}

	for _, record := range records {
		if record.State == StateFailed {
			c.Escalate(record)
		}
	}

	c.metrics.observeStates(records)
}

// TryRestart attempts to restart a timed-out record. It returns true
// when a restart was issued. The record becomes FAILED when its retry
// budget is spent or no restart action exists; it stays TIMEOUT while
// the cooldown since the last restart has not elapsed.
func (c *Controller) TryRestart(record *Record, policy Policy) bool {
	if record.RetryCount >= policy.MaxRetry {
		c.fail(record, "retry budget exhausted")
		return false
	}

	now := c.clock.Now()
	if !record.LastRestartAt.IsZero() && now.Sub(record.LastRestartAt) < policy.Cooldown {
		return false
	}

	if policy.Restart == "" || c.restarter == nil {
		c.fail(record, "no restart action configured")
		return false
	}

	if err := c.restarter.Restart(record.Key, policy); err != nil {
		// A failed attempt still counts against the budget.
		c.logger.Error("restart action failed",
			"service", record.Service,
			"instance_id", record.Instance,
			"error", err,
		)
	}
	record.RetryCount++
	record.LastRestartAt = now
	record.State = StateRestarting
	c.metrics.restarts.WithLabelValues(record.Service).Inc()
	c.logger.Warn("restart issued",
		"service", record.Service,
		"instance_id", record.Instance,
		"retry_count", record.RetryCount,
		"max_retry", policy.MaxRetry,
	)
	return true
}

func (c *Controller) fail(record *Record, reason string) {
	record.State = StateFailed
	c.logger.Error("service failed",
		"service", record.Service,
		"instance_id", record.Instance,
		"retry_count", record.RetryCount,
		"reason", reason,
	)
}

// Escalate emits a service.failed event for record. It is called on
// every tick while the record is FAILED; receivers must tolerate
// repeats.
func (c *Controller) Escalate(record *Record) {
	if c.sender == nil {
		return
	}
	event := envelope.New(envelope.KindEvent, c.source, c.escalationTarget, ActionServiceFailed, map[string]any{
		"service":     record.Service,
		"instance_id": record.Instance,
		"retry_count": record.RetryCount,
		"ts":          c.clock.Now().Unix(),
	})
	if err := c.sender.Send(event); err != nil {
		c.logger.Warn("escalation not sent",
			"service", record.Service,
			"instance_id", record.Instance,
			"target", c.escalationTarget,
			"error", err,
		)
		return
	}
	c.metrics.escalations.WithLabelValues(record.Service).Inc()
}
