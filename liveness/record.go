// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import "time"

// State is the recovery state of a monitored instance.
type State string

const (
	StateInit       State = "INIT"
	StateRunning    State = "RUNNING"
	StateTimeout    State = "TIMEOUT"
	StateRestarting State = "RESTARTING"
	StateFailed     State = "FAILED"
)

// Key identifies one monitored instance.
type Key struct {
	Service  string
	Instance string
}

func (k Key) String() string {
	return k.Service + "/" + k.Instance
}

// Record is the liveness state of one instance.
type Record struct {
	Key
	Status        string
	State         State
	LastSeen      time.Time
	RetryCount    int
	LastRestartAt time.Time
}

// Document renders the record for envelopes. Times are Unix seconds,
// zero when unset. dead overrides the reported status.
func (r Record) Document(dead bool) map[string]any {
	status := r.Status
	if dead {
		status = "dead"
	}
	return map[string]any{
		"service":         r.Service,
		"instance_id":     r.Instance,
		"status":          status,
		"state":           string(r.State),
		"last_seen":       unixSeconds(r.LastSeen),
		"retry_count":     r.RetryCount,
		"last_restart_at": unixSeconds(r.LastRestartAt),
	}
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
