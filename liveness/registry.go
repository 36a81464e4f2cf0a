// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"cmp"
	"slices"
	"time"

	"github.com/edgebus/edgebus/lib/clock"
)

// Registry holds one Record per monitored instance. Records are
// created by the first heartbeat and never deleted. Not safe for
// concurrent use.
type Registry struct {
	timeout time.Duration
	clock   clock.Clock
	records map[Key]*Record
}

// NewRegistry creates a registry that considers an instance dead once
// its last heartbeat is older than timeout.
func NewRegistry(timeout time.Duration, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		timeout: timeout,
		clock:   clk,
		records: make(map[Key]*Record),
	}
}

// Timeout returns the heartbeat timeout.
func (r *Registry) Timeout() time.Duration { return r.timeout }

// UpdateHeartbeat records a heartbeat for key. A zero ts means now. The
// record moves to RUNNING unless it is FAILED; a FAILED record keeps
// its state until Reset but still records the heartbeat.
func (r *Registry) UpdateHeartbeat(key Key, status string, ts time.Time) Record {
	if ts.IsZero() {
		ts = r.clock.Now()
	}
	if status == "" {
		status = "ok"
	}
	record, ok := r.records[key]
	if !ok {
		record = &Record{Key: key, State: StateInit}
		r.records[key] = record
	}
	record.Status = status
	record.LastSeen = ts
	if record.State != StateFailed {
		record.State = StateRunning
	}
	return *record
}

// Sweep moves RUNNING records whose heartbeat is older than the
// timeout to TIMEOUT, and RESTARTING records whose restart produced no
// heartbeat within the timeout back to TIMEOUT. It returns the keys
// that changed, in key order.
func (r *Registry) Sweep() []Key {
	now := r.clock.Now()
	var changed []Key
	for key, record := range r.records {
		switch record.State {
		case StateRunning:
			if now.Sub(record.LastSeen) > r.timeout {
				record.State = StateTimeout
				changed = append(changed, key)
			}
		case StateRestarting:
			if now.Sub(record.LastRestartAt) > r.timeout {
				record.State = StateTimeout
				changed = append(changed, key)
			}
		}
	}
	slices.SortFunc(changed, compareKeys)
	return changed
}

// Get returns a copy of the record for key.
func (r *Registry) Get(key Key) (Record, bool) {
	record, ok := r.records[key]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// Reset clears a FAILED record back to INIT with a fresh retry budget.
// It reports false when the record is missing or not FAILED.
func (r *Registry) Reset(key Key) bool {
	record, ok := r.records[key]
	if !ok || record.State != StateFailed {
		return false
	}
	record.State = StateInit
	record.RetryCount = 0
	record.LastRestartAt = time.Time{}
	return true
}

// IsDead reports whether record's last heartbeat is older than the
// timeout.
func (r *Registry) IsDead(record Record) bool {
	return r.clock.Now().Sub(record.LastSeen) > r.timeout
}

// Len returns the number of records.
func (r *Registry) Len() int { return len(r.records) }

// sorted returns the live records in key order.
func (r *Registry) sorted() []*Record {
	records := make([]*Record, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	slices.SortFunc(records, func(a, b *Record) int { return compareKeys(a.Key, b.Key) })
	return records
}

// Snapshot is a point-in-time view of the registry.
type Snapshot struct {
	Taken   time.Time
	Alive   int
	Dead    int
	Failed  int
	Records []Record
}

// Snapshot counts alive, dead and FAILED records and copies every
// record. The registry is not modified.
func (r *Registry) Snapshot() Snapshot {
	snapshot := Snapshot{Taken: r.clock.Now()}
	for _, record := range r.sorted() {
		if r.IsDead(*record) {
			snapshot.Dead++
		} else {
			snapshot.Alive++
		}
		if record.State == StateFailed {
			snapshot.Failed++
		}
		snapshot.Records = append(snapshot.Records, *record)
	}
	return snapshot
}

// Document renders the snapshot as an envelope payload:
//
//	{ts, summary: {alive, dead, failed}, services: [...]}
func (s Snapshot) Document(timeout time.Duration) map[string]any {
	services := make([]any, 0, len(s.Records))
	for _, record := range s.Records {
		dead := s.Taken.Sub(record.LastSeen) > timeout
		services = append(services, record.Document(dead))
	}
	return map[string]any{
		"ts": s.Taken.Unix(),
		"summary": map[string]any{
			"alive":  s.Alive,
			"dead":   s.Dead,
			"failed": s.Failed,
		},
		"services": services,
	}
}

func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.Service, b.Service); c != 0 {
		return c
	}
	return cmp.Compare(a.Instance, b.Instance)
}
