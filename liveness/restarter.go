// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// Restarter performs the restart action of a policy.
type Restarter interface {
	Restart(key Key, policy Policy) error
}

// CommandRestarter runs the policy's Restart command with sh -c. It
// does not wait for the command: the command only has to start the
// instance, and the instance proves itself by heartbeating.
type CommandRestarter struct {
	Logger *slog.Logger
}

// Restart starts the command and reaps it in the background.
func (r CommandRestarter) Restart(key Key, policy Policy) error {
	if policy.Restart == "" {
		return fmt.Errorf("no restart command for %s", key)
	}
	command := exec.Command("sh", "-c", policy.Restart)
	if err := command.Start(); err != nil {
		return fmt.Errorf("starting restart command for %s: %w", key, err)
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	go func() {
		if err := command.Wait(); err != nil {
			logger.Warn("restart command exited with error",
				"service", key.Service,
				"instance_id", key.Instance,
				"error", err,
			)
		}
	}()
	return nil
}
