// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import "time"

// Policy bounds automatic recovery for an instance.
type Policy struct {
	// MaxRetry is the number of restarts allowed before FAILED.
	MaxRetry int

	// Cooldown is the minimum time between two restarts.
	Cooldown time.Duration

	// Restart is the shell command that restarts the instance. Empty
	// means no restart action: a timed-out instance fails at once.
	Restart string
}

// Policies resolves the policy of an instance: by instance id first,
// then by service name. Instances matching neither are monitored but
// never restarted or escalated.
type Policies struct {
	ByInstance map[string]Policy
	ByService  map[string]Policy
}

// Lookup returns the policy for key.
func (p Policies) Lookup(key Key) (Policy, bool) {
	if policy, ok := p.ByInstance[key.Instance]; ok {
		return policy, true
	}
	policy, ok := p.ByService[key.Service]
	return policy, ok
}
