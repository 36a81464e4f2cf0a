// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/config"
	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/uplink"
)

const actionPushData = "push_data"

// replier is the part of busclient.Client the service uses.
type replier interface {
	Reply(request *envelope.Envelope, payload map[string]any) error
}

type uplinkServiceConfig struct {
	Dispatcher *uplink.Dispatcher
	Bus        replier

	// Watcher reloads the uplink targets. Nil keeps the startup set.
	Watcher        *config.Watcher
	ReloadInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

type uplinkService struct {
	dispatcher     *uplink.Dispatcher
	bus            replier
	watcher        *config.Watcher
	reloadInterval time.Duration
	clock          clock.Clock
	logger         *slog.Logger

	lastReload time.Time
}

func newUplinkService(cfg uplinkServiceConfig) *uplinkService {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &uplinkService{
		dispatcher:     cfg.Dispatcher,
		bus:            cfg.Bus,
		watcher:        cfg.Watcher,
		reloadInterval: cfg.ReloadInterval,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		lastReload:     cfg.Clock.Now(),
	}
}

func (u *uplinkService) handle(message *envelope.Envelope) {
	if message.Kind != envelope.KindRequest && message.Kind != envelope.KindEvent {
		return
	}
	action := strings.TrimPrefix(message.Action, "uplink.")
	if action != actionPushData {
		u.logger.Debug("unknown action", "action", message.Action, "source", message.Source)
		u.reply(message, map[string]any{"ok": false, "error": "unknown action: " + message.Action})
		return
	}

	source := message.PayloadString("source")
	data, ok := message.PayloadMap("data")
	if source == "" || !ok {
		u.logger.Warn("invalid push_data", "from", message.Source, "id", message.ID)
		u.reply(message, map[string]any{"ok": false, "error": "invalid push_data schema"})
		return
	}

	if err := u.dispatcher.Push(source, data, message.PayloadString("uplink")); err != nil {
		u.logger.Warn("push_data rejected", "from", message.Source, "data_source", source, "error", err)
		u.reply(message, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	u.logger.Debug("push_data", "from", message.Source, "data_source", source, "keys", len(data))
	u.reply(message, map[string]any{"ok": true})
}

func (u *uplinkService) reply(message *envelope.Envelope, payload map[string]any) {
	if message.Kind != envelope.KindRequest {
		return
	}
	if err := u.bus.Reply(message, payload); err != nil {
		u.logger.Warn("reply not sent", "action", message.Action, "destination", message.Source, "error", err)
	}
}

// idle reapplies the uplink targets when the config file changed,
// then runs due sends and the buffer flush.
func (u *uplinkService) idle(ctx context.Context) {
	now := u.clock.Now()
	if u.watcher != nil && now.Sub(u.lastReload) >= u.reloadInterval {
		u.lastReload = now
		u.reload()
	}
	u.dispatcher.Tick(ctx)
}

func (u *uplinkService) reload() {
	cfg, changed, err := u.watcher.Poll()
	if err != nil {
		u.logger.Warn("config reload failed, keeping current uplinks", "path", u.watcher.Path(), "error", err)
		return
	}
	if !changed {
		return
	}
	u.dispatcher.Apply(cfg.Uplink.Targets)
	u.logger.Info("uplink config reloaded", "path", u.watcher.Path(), "uplinks", u.dispatcher.Uplinks())
}
