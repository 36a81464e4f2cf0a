// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package healthclient

import (
	"log/slog"
	"time"

	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/envelope"
)

// Status is the self-reported condition of a service.
type Status string

const (
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusDegraded Status = "DEGRADED"
	StatusError    Status = "ERROR"
	StatusStopped  Status = "STOPPED"
)

// ActionHeartbeat is the action heartbeats are sent with.
const ActionHeartbeat = "heartbeat"

// Defaults for Config fields left zero.
const (
	DefaultHealthService = "health"
	DefaultInterval      = 5 * time.Second
)

// Sender delivers envelopes onto the bus. *busclient.Client implements
// it.
type Sender interface {
	Send(message *envelope.Envelope) error
}

// Config configures a Reporter. Sender and Service are required.
type Config struct {
	Sender  Sender
	Service string

	// Instance distinguishes replicas of one service. Defaults to
	// Service.
	Instance string

	// HealthService is the bus name of the health service.
	HealthService string

	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Reporter emits heartbeats for one service instance. It is not safe
// for concurrent use.
type Reporter struct {
	sender        Sender
	service       string
	instance      string
	healthService string
	interval      time.Duration
	clock         clock.Clock
	logger        *slog.Logger

	status    Status
	startedAt time.Time
	lastBeat  time.Time
}

// New creates a reporter in StatusStarting. It panics when Sender or
// Service is missing.
func New(config Config) *Reporter {
	if config.Sender == nil {
		panic("healthclient: Sender is required")
	}
	if config.Service == "" {
		panic("healthclient: Service is required")
	}
	r := &Reporter{
		sender:        config.Sender,
		service:       config.Service,
		instance:      config.Instance,
		healthService: config.HealthService,
		interval:      config.Interval,
		clock:         config.Clock,
		logger:        config.Logger,
		status:        StatusStarting,
	}
	if r.instance == "" {
		r.instance = r.service
	}
	if r.healthService == "" {
		r.healthService = DefaultHealthService
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	r.startedAt = r.clock.Now()
	return r
}

// Status returns the status reported in the next heartbeat.
func (r *Reporter) Status() Status { return r.status }

// SetStatus changes the reported status. A change is sent at once
// rather than waiting for the next interval.
func (r *Reporter) SetStatus(status Status) {
	if status == r.status {
		return
	}
	r.logger.Info("health status updated", "from", string(r.status), "to", string(status))
	r.status = status
	r.Beat()
}

// Uptime is the time since the reporter was created.
func (r *Reporter) Uptime() time.Duration {
	return r.clock.Now().Sub(r.startedAt)
}

// Tick sends a heartbeat when the interval has elapsed since the last
// one. It reports whether a heartbeat was attempted.
func (r *Reporter) Tick() bool {
	if !r.lastBeat.IsZero() && r.clock.Now().Sub(r.lastBeat) < r.interval {
		return false
	}
	r.Beat()
	return true
}

// Beat sends a heartbeat now. Send failures are logged; the next Tick
// retries after a full interval.
func (r *Reporter) Beat() {
	now := r.clock.Now()
	r.lastBeat = now
	heartbeat := envelope.New(envelope.KindEvent, r.service, r.healthService, ActionHeartbeat, map[string]any{
		"service":     r.service,
		"instance_id": r.instance,
		"status":      string(r.status),
		"uptime":      int64(now.Sub(r.startedAt) / time.Second),
		"ts":          now.Unix(),
	})
	if err := r.sender.Send(heartbeat); err != nil {
		r.logger.Warn("heartbeat not sent", "health_service", r.healthService, "error", err)
	}
}
