// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"

	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/lib/healthclient"
	"github.com/edgebus/edgebus/transport"
)

// Handlers are a service's callbacks from Loop. Both run on the loop
// goroutine.
type Handlers struct {
	// Handle receives every inbound envelope.
	Handle func(message *envelope.Envelope)

	// Idle runs once per iteration after Handle, for scheduled work.
	Idle func()
}

// Loop runs the control loop until ctx ends: keepalive registration,
// heartbeat, poll one envelope, handle it, run idle work. The first
// pass reports RUNNING. A closed connection ends the loop with an
// error; other receive errors are logged.
func (s *Service) Loop(ctx context.Context, handlers Handlers) error {
	if s.Reporter != nil {
		s.Reporter.SetStatus(healthclient.StatusRunning)
	}
	pollTimeout := s.Config.Bus.PollTimeout
	for {
		if ctx.Err() != nil {
			if s.Reporter != nil {
				s.Reporter.SetStatus(healthclient.StatusStopped)
			}
			s.Logger.Info("service stopping")
			return nil
		}

		s.Client.Maintain()
		if s.Reporter != nil {
			s.Reporter.Tick()
		}

		message, err := s.Client.Poll(pollTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			s.Logger.Warn("receive failed", "error", err)
		}
		if message != nil && handlers.Handle != nil {
			handlers.Handle(message)
		}
		if handlers.Idle != nil {
			handlers.Idle()
		}
	}
}
