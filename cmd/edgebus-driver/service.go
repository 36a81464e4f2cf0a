// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"time"

	"github.com/edgebus/edgebus/driver"
	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/envelope"
)

// Actions served by the driver. actionSendRaw is the name Modbus
// clients use for the same exchange.
const (
	actionExchange = "exchange"
	actionSendRaw  = "modbus.send_raw"
	actionPing     = "ping"
)

// replier is the part of busclient.Client the service uses.
type replier interface {
	Reply(request *envelope.Envelope, payload map[string]any) error
}

// submitter is the part of driver.Worker the service uses.
type submitter interface {
	Submit(job driver.Job) error
	Results() <-chan driver.Result
}

type driverService struct {
	name   string
	bus    replier
	worker submitter
	clock  clock.Clock
	logger *slog.Logger
}

func newDriverService(name string, bus replier, worker submitter, clk clock.Clock, logger *slog.Logger) *driverService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &driverService{name: name, bus: bus, worker: worker, clock: clk, logger: logger}
}

func (d *driverService) handle(message *envelope.Envelope) {
	if message.Kind != envelope.KindRequest {
		return
	}
	switch message.Action {
	case actionExchange, actionSendRaw:
		d.handleExchange(message)
	case actionPing:
		d.reply(message, map[string]any{
			"status":  "ok",
			"service": d.name,
			"ts":      d.clock.Now().Unix(),
		})
	default:
		d.reply(message, errorPayload("unknown action: "+message.Action))
	}
}

func (d *driverService) handleExchange(message *envelope.Envelope) {
	frame, err := driver.ParseHex(message.PayloadString("hex"))
	if err != nil {
		d.reply(message, errorPayload(err.Error()))
		return
	}
	var timeout time.Duration
	if ms, ok := message.PayloadInt64("timeout_ms"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	err = d.worker.Submit(driver.Job{
		RequestID: message.ID,
		Source:    message.Source,
		Action:    message.Action,
		Frame:     frame,
		Timeout:   timeout,
	})
	if err != nil {
		d.reply(message, errorPayload(err.Error()))
	}
}

// idle answers every exchange the worker has finished.
func (d *driverService) idle() {
	for {
		select {
		case result := <-d.worker.Results():
			request := &envelope.Envelope{
				ID:     result.Job.RequestID,
				Kind:   envelope.KindRequest,
				Source: result.Job.Source,
				Action: result.Job.Action,
			}
			d.reply(request, result.Payload())
		default:
			return
		}
	}
}

func (d *driverService) reply(request *envelope.Envelope, payload map[string]any) {
	if err := d.bus.Reply(request, payload); err != nil {
		d.logger.Warn("reply not sent", "action", request.Action, "destination", request.Source, "error", err)
	}
}

func errorPayload(reason string) map[string]any {
	return map[string]any{"status": "error", "error": reason}
}
