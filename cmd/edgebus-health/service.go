// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/config"
	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/lib/healthclient"
	"github.com/edgebus/edgebus/liveness"
)

// Actions served by the health service. Requests may also carry the
// "health." prefix older clients use.
const (
	actionHeartbeat    = healthclient.ActionHeartbeat
	actionSnapshotGet  = "snapshot.get"
	actionServiceGet   = "service.get"
	actionHardwareGet  = "hw.get"
	actionServiceReset = "service.reset"
)

// bus is the part of busclient.Client the service uses.
type bus interface {
	Send(message *envelope.Envelope) error
	Reply(request *envelope.Envelope, payload map[string]any) error
}

type healthServiceConfig struct {
	Name   string
	Bus    bus
	Health config.HealthConfig

	// Hardware produces the hw.get document. Nil omits it.
	Hardware func(now time.Time) map[string]any

	// Restarter defaults to liveness.CommandRestarter.
	Restarter liveness.Restarter

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *liveness.Metrics
}

type healthService struct {
	name        string
	bus         bus
	registry    *liveness.Registry
	controller  *liveness.Controller
	hardware    func(now time.Time) map[string]any
	tick        time.Duration
	autoPublish config.AutoPublishConfig
	clock       clock.Clock
	logger      *slog.Logger

	lastTick    time.Time
	lastPublish time.Time
}

func newHealthService(cfg healthServiceConfig) *healthService {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	restarter := cfg.Restarter
	if restarter == nil {
		restarter = liveness.CommandRestarter{Logger: cfg.Logger}
	}
	registry := liveness.NewRegistry(cfg.Health.Timeout, cfg.Clock)
	now := cfg.Clock.Now()
	return &healthService{
		name:     cfg.Name,
		bus:      cfg.Bus,
		registry: registry,
		controller: liveness.NewController(liveness.ControllerConfig{
			Registry:         registry,
			Policies:         buildPolicies(cfg.Health.Services),
			Restarter:        restarter,
			Sender:           cfg.Bus,
			Source:           cfg.Name,
			EscalationTarget: cfg.Health.EscalationTarget,
			Clock:            cfg.Clock,
			Logger:           cfg.Logger,
			Metrics:          cfg.Metrics,
		}),
		hardware:    cfg.Hardware,
		tick:        cfg.Health.Tick,
		autoPublish: cfg.Health.AutoPublish,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		lastTick:    now,
		lastPublish: now,
	}
}

// buildPolicies maps the configured service specs onto liveness
// policies. A spec naming an instance applies to that instance only.
func buildPolicies(specs []config.ServiceSpec) liveness.Policies {
	policies := liveness.Policies{
		ByInstance: make(map[string]liveness.Policy),
		ByService:  make(map[string]liveness.Policy),
	}
	for _, spec := range specs {
		if !spec.IsEnabled() {
			continue
		}
		policy := liveness.Policy{
			MaxRetry: spec.Policy.MaxRetry,
			Cooldown: spec.Policy.Cooldown,
			Restart:  spec.Exec.Restart,
		}
		if spec.Instance != "" {
			policies.ByInstance[spec.Instance] = policy
		} else {
			policies.ByService[spec.Name] = policy
		}
	}
	return policies
}

func (h *healthService) handle(message *envelope.Envelope) {
	if message.Kind != envelope.KindRequest && message.Kind != envelope.KindEvent {
		return
	}
	action := strings.TrimPrefix(message.Action, "health.")

	switch action {
	case actionHeartbeat:
		h.handleHeartbeat(message)
	case actionSnapshotGet:
		h.reply(message, h.snapshot())
	case actionServiceGet:
		h.handleServiceGet(message)
	case actionHardwareGet:
		document := h.snapshot()
		if h.hardware != nil {
			document["hardware"] = h.hardware(h.clock.Now())
		}
		h.reply(message, document)
	case actionServiceReset:
		h.handleReset(message)
	default:
		h.logger.Debug("unknown action", "action", message.Action, "source", message.Source)
		h.fail(message, "unknown action: "+message.Action)
	}
}

func (h *healthService) handleHeartbeat(message *envelope.Envelope) {
	key, ok := instanceKey(message)
	if !ok {
		h.logger.Warn("heartbeat without service", "source", message.Source)
		h.fail(message, "service is required")
		return
	}
	var reported time.Time
	if ts, ok := message.PayloadInt64("ts"); ok && ts > 0 {
		reported = time.Unix(ts, 0)
	}
	record := h.registry.UpdateHeartbeat(key, message.PayloadString("status"), reported)
	h.logger.Debug("heartbeat",
		"from", key.Service,
		"instance_id", key.Instance,
		"status", record.Status,
		"state", string(record.State),
	)
	h.reply(message, map[string]any{"ok": true})
}

func (h *healthService) handleServiceGet(message *envelope.Envelope) {
	key, ok := instanceKey(message)
	record, found := h.registry.Get(key)
	if !ok || !found {
		h.replyNull(message)
		return
	}
	h.reply(message, record.Document(h.registry.IsDead(record)))
}

func (h *healthService) handleReset(message *envelope.Envelope) {
	key, ok := instanceKey(message)
	if !ok {
		h.fail(message, "service is required")
		return
	}
	if !h.registry.Reset(key) {
		h.fail(message, "no FAILED record for "+key.String())
		return
	}
	h.logger.Info("failed instance reset by operator",
		"target_service", key.Service,
		"instance_id", key.Instance,
		"source", message.Source,
	)
	h.reply(message, map[string]any{"ok": true})
}

// instanceKey reads {service, instance_id} from the payload. The
// instance defaults to the service name; service_id is accepted for
// instance_id.
func instanceKey(message *envelope.Envelope) (liveness.Key, bool) {
	service := message.PayloadString("service")
	if service == "" {
		return liveness.Key{}, false
	}
	instance := message.PayloadString("instance_id")
	if instance == "" {
		instance = message.PayloadString("service_id")
	}
	if instance == "" {
		instance = service
	}
	return liveness.Key{Service: service, Instance: instance}, true
}

func (h *healthService) snapshot() map[string]any {
	return h.registry.Snapshot().Document(h.registry.Timeout())
}

// reply answers requests; events get no response.
func (h *healthService) reply(message *envelope.Envelope, payload map[string]any) {
	if message.Kind != envelope.KindRequest {
		return
	}
	if err := h.bus.Reply(message, payload); err != nil {
		h.logger.Warn("reply not sent", "action", message.Action, "destination", message.Source, "error", err)
	}
}

func (h *healthService) replyNull(message *envelope.Envelope) {
	if message.Kind != envelope.KindRequest {
		return
	}
	response := message.Reply(h.name, message.Action, nil)
	response.Payload = nil
	if err := h.bus.Send(response); err != nil {
		h.logger.Warn("reply not sent", "action", message.Action, "destination", message.Source, "error", err)
	}
}

func (h *healthService) fail(message *envelope.Envelope, reason string) {
	h.reply(message, map[string]any{"ok": false, "error": reason})
}

// idle runs the control cycle every tick and the auto-publish every
// publish interval.
func (h *healthService) idle() {
	now := h.clock.Now()
	if now.Sub(h.lastTick) >= h.tick {
		h.lastTick = now
		h.controller.Tick()
	}

	if h.autoPublish.Enabled && now.Sub(h.lastPublish) >= h.autoPublish.Interval {
		h.lastPublish = now
		h.publish()
	}
}

func (h *healthService) publish() {
	document := h.snapshot()
	for _, target := range h.autoPublish.Targets {
		request := envelope.New(envelope.KindRequest, h.name, target.Service, target.Action, document)
		if err := h.bus.Send(request); err != nil {
			h.logger.Warn("snapshot not published", "target", target.Service, "action", target.Action, "error", err)
		}
	}
}
