// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package healthclient

import (
	"errors"
	"testing"
	"time"

	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/envelope"
)

type recordingSender struct {
	sent []*envelope.Envelope
	err  error
}

func (s *recordingSender) Send(message *envelope.Envelope) error {
	s.sent = append(s.sent, message)
	return s.err
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTickRespectsInterval(t *testing.T) {
	fake := clock.Fake(epoch)
	sender := &recordingSender{}
	reporter := New(Config{Sender: sender, Service: "modbus", Interval: 5 * time.Second, Clock: fake})

	if !reporter.Tick() {
		t.Fatal("first Tick did not send")
	}
	fake.Advance(4 * time.Second)
	if reporter.Tick() {
		t.Fatal("Tick inside interval sent")
	}
	fake.Advance(time.Second)
	if !reporter.Tick() {
		t.Fatal("Tick after interval did not send")
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent %d heartbeats, want 2", len(sender.sent))
	}
}

func TestHeartbeatPayload(t *testing.T) {
	fake := clock.Fake(epoch)
	sender := &recordingSender{}
	reporter := New(Config{
		Sender:        sender,
		Service:       "modbus",
		Instance:      "modbus-1",
		HealthService: "health-service",
		Clock:         fake,
	})

	fake.Advance(90 * time.Second)
	reporter.Beat()

	heartbeat := sender.sent[0]
	if heartbeat.Kind != envelope.KindEvent || heartbeat.Action != ActionHeartbeat {
		t.Fatalf("heartbeat = %+v", heartbeat)
	}
	if heartbeat.Source != "modbus" || heartbeat.Destination != "health-service" {
		t.Errorf("route = %s -> %s", heartbeat.Source, heartbeat.Destination)
	}
	if heartbeat.PayloadString("instance_id") != "modbus-1" {
		t.Errorf("instance_id = %v", heartbeat.Payload["instance_id"])
	}
	if heartbeat.PayloadString("status") != string(StatusStarting) {
		t.Errorf("status = %v, want STARTING", heartbeat.Payload["status"])
	}
	if uptime, _ := heartbeat.PayloadInt64("uptime"); uptime != 90 {
		t.Errorf("uptime = %d, want 90", uptime)
	}
	if ts, _ := heartbeat.PayloadInt64("ts"); ts != epoch.Add(90*time.Second).Unix() {
		t.Errorf("ts = %d", ts)
	}
}

func TestSetStatusSendsImmediately(t *testing.T) {
	fake := clock.Fake(epoch)
	sender := &recordingSender{}
	reporter := New(Config{Sender: sender, Service: "uplink", Clock: fake})
	reporter.Tick()

	reporter.SetStatus(StatusRunning)
	reporter.SetStatus(StatusRunning)
	if len(sender.sent) != 2 {
		t.Fatalf("sent %d heartbeats, want 2 (one per distinct status)", len(sender.sent))
	}
	if sender.sent[1].PayloadString("status") != string(StatusRunning) {
		t.Errorf("status = %v, want RUNNING", sender.sent[1].Payload["status"])
	}
	if reporter.Tick() {
		t.Error("Tick right after a status change sent again")
	}
}

func TestInstanceDefaultsToService(t *testing.T) {
	sender := &recordingSender{err: errors.New("peer gone")}
	reporter := New(Config{Sender: sender, Service: "driver", Clock: clock.Fake(epoch)})
	reporter.Beat()
	if got := sender.sent[0].PayloadString("instance_id"); got != "driver" {
		t.Fatalf("instance_id = %q, want driver", got)
	}
}
