// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"testing"
	"time"

	"github.com/edgebus/edgebus/broker"
	"github.com/edgebus/edgebus/lib/busclient"
	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/config"
	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/liveness"
	"github.com/edgebus/edgebus/transport"
)

var epoch = time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)

type recordingRestarter struct {
	calls []liveness.Key
}

func (r *recordingRestarter) Restart(key liveness.Key, _ liveness.Policy) error {
	r.calls = append(r.calls, key)
	return nil
}

type fixture struct {
	t         *testing.T
	hub       *transport.Hub
	clock     *clock.FakeClock
	client    *busclient.Client
	service   *healthService
	restarter *recordingRestarter
}

func startBroker(t *testing.T) *transport.Hub {
	t.Helper()
	hub := transport.NewHub(256)
	relay := broker.New(broker.Config{Router: hub.Router(), PollTimeout: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func connect(t *testing.T, hub *transport.Hub, name string) *busclient.Client {
	t.Helper()
	client := busclient.New(busclient.Config{Dealer: hub.Dial(transport.Identity(name + "-conn")), Name: name})
	if err := client.Register(context.Background()); err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
	return client
}

func newFixture(t *testing.T, health config.HealthConfig) *fixture {
	t.Helper()
	hub := startBroker(t)
	fake := clock.Fake(epoch)
	client := connect(t, hub, "health")
	restarter := &recordingRestarter{}
	service := newHealthService(healthServiceConfig{
		Name:   "health",
		Bus:    client,
		Health: health,
		Hardware: func(time.Time) map[string]any {
			return map[string]any{"system": map[string]any{"hostname": "edge-01"}}
		},
		Restarter: restarter,
		Clock:     fake,
	})
	return &fixture{t: t, hub: hub, clock: fake, client: client, service: service, restarter: restarter}
}

func defaultHealth() config.HealthConfig {
	cfg := config.Default().Health
	cfg.Services = []config.ServiceSpec{{
		Name:   "svcX",
		Exec:   config.ExecSpec{Restart: "systemctl restart svcX"},
		Policy: config.PolicySpec{MaxRetry: 1},
	}}
	return cfg
}

// pump handles every envelope that reached the health service, then
// runs one idle pass.
func (f *fixture) pump() {
	f.t.Helper()
	for {
		message, err := f.client.Poll(50 * time.Millisecond)
		if err != nil {
			f.t.Fatalf("Poll: %v", err)
		}
		if message == nil {
			break
		}
		f.service.handle(message)
	}
	f.service.idle()
}

// request sends a request from client, lets the service handle it and
// returns the correlated response.
func (f *fixture) request(client *busclient.Client, action string, payload map[string]any) *envelope.Envelope {
	f.t.Helper()
	request := envelope.New(envelope.KindRequest, client.Name(), "health", action, payload)
	if err := client.Send(request); err != nil {
		f.t.Fatalf("Send(%s): %v", action, err)
	}
	f.pump()
	return expect(f.t, client, func(message *envelope.Envelope) bool {
		return message.Kind == envelope.KindResponse && message.CorrelationID == request.ID
	})
}

func expect(t *testing.T, client *busclient.Client, match func(*envelope.Envelope) bool) *envelope.Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		message, err := client.Poll(50 * time.Millisecond)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if message != nil && match(message) {
			return message
		}
	}
	t.Fatal("expected envelope did not arrive")
	return nil
}

func heartbeat(t *testing.T, client *busclient.Client, instance string) {
	t.Helper()
	err := client.Emit("health", actionHeartbeat, map[string]any{
		"service":     client.Name(),
		"instance_id": instance,
		"status":      "RUNNING",
	})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
}

func serviceState(t *testing.T, f *fixture, ops *busclient.Client, service, instance string) string {
	t.Helper()
	response := f.request(ops, actionServiceGet, map[string]any{"service": service, "instance_id": instance})
	if response.Payload == nil {
		t.Fatalf("service.get %s/%s returned null", service, instance)
	}
	return response.PayloadString("state")
}

// A service that stops heartbeating is restarted once, marked FAILED
// when the restart does not bring it back, escalated, and recovers
// only through an operator reset.
func TestSilentServiceIsRestartedThenEscalated(t *testing.T) {
	f := newFixture(t, defaultHealth())
	svcX := connect(t, f.hub, "svcX")
	gateway := connect(t, f.hub, "platform-gateway")
	ops := connect(t, f.hub, "ops")

	heartbeat(t, svcX, "i1")
	f.pump()
	if state := serviceState(t, f, ops, "svcX", "i1"); state != "RUNNING" {
		t.Fatalf("state after heartbeat = %s, want RUNNING", state)
	}

	f.clock.Advance(16 * time.Second)
	f.pump()
	if state := serviceState(t, f, ops, "svcX", "i1"); state != "RESTARTING" {
		t.Fatalf("state after timeout = %s, want RESTARTING", state)
	}
	if len(f.restarter.calls) != 1 || f.restarter.calls[0] != (liveness.Key{Service: "svcX", Instance: "i1"}) {
		t.Fatalf("restarts = %v", f.restarter.calls)
	}

	f.clock.Advance(16 * time.Second)
	f.pump()
	escalation := expect(t, gateway, func(message *envelope.Envelope) bool {
		return message.Action == liveness.ActionServiceFailed
	})
	if escalation.PayloadString("service") != "svcX" || escalation.PayloadString("instance_id") != "i1" {
		t.Fatalf("escalation payload = %v", escalation.Payload)
	}

	// A late heartbeat is recorded but does not clear FAILED.
	heartbeat(t, svcX, "i1")
	f.pump()
	if state := serviceState(t, f, ops, "svcX", "i1"); state != "FAILED" {
		t.Fatalf("state after late heartbeat = %s, want FAILED", state)
	}

	reset := f.request(ops, "health."+actionServiceReset, map[string]any{"service": "svcX", "instance_id": "i1"})
	if reset.Payload["ok"] != true {
		t.Fatalf("reset = %v", reset.Payload)
	}
	heartbeat(t, svcX, "i1")
	f.pump()
	if state := serviceState(t, f, ops, "svcX", "i1"); state != "RUNNING" {
		t.Fatalf("state after reset and heartbeat = %s, want RUNNING", state)
	}
	if len(f.restarter.calls) != 1 {
		t.Fatalf("restarts = %d, want 1", len(f.restarter.calls))
	}
}

func TestSnapshotAndHardware(t *testing.T) {
	f := newFixture(t, defaultHealth())
	ops := connect(t, f.hub, "ops")
	svcA := connect(t, f.hub, "svcA")

	heartbeat(t, svcA, "a1")
	heartbeat(t, svcA, "a2")
	f.pump()
	f.clock.Advance(10 * time.Second)
	heartbeat(t, svcA, "a2")
	f.pump()
	f.clock.Advance(6 * time.Second)

	snapshot := f.request(ops, actionSnapshotGet, nil)
	summary, ok := snapshot.PayloadMap("summary")
	if !ok {
		t.Fatalf("snapshot payload = %v", snapshot.Payload)
	}
	if summary["alive"] != float64(1) || summary["dead"] != float64(1) {
		t.Fatalf("summary = %v, want 1 alive 1 dead", summary)
	}

	hardware := f.request(ops, actionHardwareGet, nil)
	if _, ok := hardware.PayloadMap("hardware"); !ok {
		t.Fatalf("hw.get payload = %v", hardware.Payload)
	}
	if _, ok := hardware.PayloadMap("summary"); !ok {
		t.Fatalf("hw.get lacks the liveness summary: %v", hardware.Payload)
	}
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t, defaultHealth())
	ops := connect(t, f.hub, "ops")

	missing := f.request(ops, actionServiceGet, map[string]any{"service": "ghost"})
	if missing.Payload != nil {
		t.Fatalf("service.get of unknown instance = %v, want null", missing.Payload)
	}

	ack := f.request(ops, actionHeartbeat, map[string]any{"service": "ops"})
	if ack.Payload["ok"] != true {
		t.Fatalf("heartbeat request reply = %v", ack.Payload)
	}

	noService := f.request(ops, actionHeartbeat, map[string]any{})
	if noService.Payload["ok"] != false {
		t.Fatalf("heartbeat without service = %v", noService.Payload)
	}

	notFailed := f.request(ops, actionServiceReset, map[string]any{"service": "ops"})
	if notFailed.Payload["ok"] != false {
		t.Fatalf("reset of running instance = %v", notFailed.Payload)
	}

	unknown := f.request(ops, "reboot.everything", nil)
	if unknown.Payload["ok"] != false || unknown.PayloadString("error") == "" {
		t.Fatalf("unknown action reply = %v", unknown.Payload)
	}
}

func TestAutoPublish(t *testing.T) {
	cfg := defaultHealth()
	cfg.AutoPublish = config.AutoPublishConfig{
		Enabled:  true,
		Interval: 5 * time.Second,
		Targets:  []config.PublishTarget{{Service: "uplink", Action: "health.update"}},
	}
	f := newFixture(t, cfg)
	uplink := connect(t, f.hub, "uplink")

	f.clock.Advance(4 * time.Second)
	f.pump()
	f.clock.Advance(time.Second)
	f.pump()

	published := expect(t, uplink, func(message *envelope.Envelope) bool {
		return message.Action == "health.update"
	})
	if published.Kind != envelope.KindRequest || published.Source != "health" {
		t.Fatalf("published = %+v", published)
	}
	if _, ok := published.PayloadMap("summary"); !ok {
		t.Fatalf("published payload = %v", published.Payload)
	}
	if message, _ := uplink.Poll(50 * time.Millisecond); message != nil {
		t.Fatalf("second publish before the interval: %+v", message)
	}
}

func TestBuildPolicies(t *testing.T) {
	disabled := false
	policies := buildPolicies([]config.ServiceSpec{
		{Name: "io", Exec: config.ExecSpec{Restart: "restart io"}, Policy: config.PolicySpec{MaxRetry: 3, Cooldown: 30 * time.Second}},
		{Name: "io", Instance: "io-2", Exec: config.ExecSpec{Restart: "restart io-2"}, Policy: config.PolicySpec{MaxRetry: 1}},
		{Name: "off", Enabled: &disabled, Policy: config.PolicySpec{MaxRetry: 5}},
	})

	policy, ok := policies.Lookup(liveness.Key{Service: "io", Instance: "io-1"})
	if !ok || policy.MaxRetry != 3 || policy.Cooldown != 30*time.Second || policy.Restart != "restart io" {
		t.Fatalf("io-1 policy = %+v, %v", policy, ok)
	}
	policy, ok = policies.Lookup(liveness.Key{Service: "io", Instance: "io-2"})
	if !ok || policy.Restart != "restart io-2" {
		t.Fatalf("io-2 policy = %+v, %v", policy, ok)
	}
	if _, ok := policies.Lookup(liveness.Key{Service: "off", Instance: "off"}); ok {
		t.Fatal("disabled spec produced a policy")
	}
}
