// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgebus/edgebus/broker"
	"github.com/edgebus/edgebus/lib/busclient"
	"github.com/edgebus/edgebus/lib/config"
	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/lib/healthclient"
	"github.com/edgebus/edgebus/lib/service"
	"github.com/edgebus/edgebus/lib/testutil"
	"github.com/edgebus/edgebus/transport"
)

func startBroker(t *testing.T) *transport.Hub {
	t.Helper()
	hub := transport.NewHub(64)
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

func hubDial(hub *transport.Hub) DialFunc {
	return func(_, name string, _ transport.SocketOptions) (transport.Dealer, error) {
		return hub.Dial(transport.Identity(name + "-conn")), nil
	}
}

func parseConfig(t *testing.T, text string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(text), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func TestStartRegistersAndLoops(t *testing.T) {
	hub := startBroker(t)
	healthClient := busclient.New(busclient.Config{Dealer: hub.Dial("health-conn"), Name: "health"})
	if err := healthClient.Register(context.Background()); err != nil {
		t.Fatalf("Register(health): %v", err)
	}

	cfg := parseConfig(t, "name: collector\ninstance_id: collector-2\nbus:\n  poll_timeout: 5ms\n")
	svc, cleanup, err := Start(context.Background(), Config{
		Loaded: cfg,
		Dial:   hubDial(hub),
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cleanup()
	if svc.Name != "collector" || svc.Instance != "collector-2" || svc.Reporter == nil {
		t.Fatalf("service = %+v", svc)
	}

	handled := make(chan *envelope.Envelope, 1)
	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- svc.Loop(ctx, Handlers{Handle: func(message *envelope.Envelope) { handled <- message }})
	}()

	// The loop announces RUNNING to the health service at once.
	heartbeat := pollFor(t, healthClient, healthclient.ActionHeartbeat)
	if heartbeat.PayloadString("status") != string(healthclient.StatusRunning) ||
		heartbeat.PayloadString("instance_id") != "collector-2" {
		t.Fatalf("heartbeat payload = %v", heartbeat.Payload)
	}

	if err := healthClient.Emit("collector", "poke", nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	message := testutil.RequireReceive(t, handled, 5*time.Second, "poke to reach the handler")
	if message.Action != "poke" {
		t.Fatalf("handled %+v", message)
	}

	cancel()
	if err := testutil.RequireReceive(t, loopDone, 5*time.Second, "loop exit"); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestStartWithoutHeartbeat(t *testing.T) {
	hub := startBroker(t)
	cfg := parseConfig(t, "heartbeat:\n  enabled: false\n")
	svc, cleanup, err := Start(context.Background(), Config{
		Loaded:      cfg,
		DefaultName: "quiet",
		Dial:        hubDial(hub),
		Logger:      slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cleanup()
	if svc.Name != "quiet" || svc.Instance != "quiet" || svc.Reporter != nil {
		t.Fatalf("service = %+v", svc)
	}
}

func TestStartFailsWithoutBroker(t *testing.T) {
	hub := transport.NewHub(8)
	cfg := parseConfig(t, "bus:\n  ack_timeout: 10ms\n  retry_delay: 1ms\n  register_attempts: 1\n")
	_, _, err := Start(context.Background(), Config{
		Loaded:      cfg,
		DefaultName: "lonely",
		Dial:        hubDial(hub),
		Logger:      slog.New(slog.DiscardHandler),
	})
	if err == nil {
		t.Fatal("Start without broker succeeded")
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.yaml")
	if err := os.WriteFile(path, []byte("name: from-file\nlog_level: warn\nmetrics_addr: 127.0.0.1:9100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvironmentVariable, "")

	cfg, err := LoadConfig(service.CommonFlags{})
	if err != nil {
		t.Fatalf("LoadConfig(defaults): %v", err)
	}
	if cfg.Name != "" || cfg.Bus.Endpoint != "tcp://127.0.0.1:5555" {
		t.Fatalf("defaults = %+v", cfg)
	}

	t.Setenv(config.EnvironmentVariable, path)
	cfg, err = LoadConfig(service.CommonFlags{})
	if err != nil || cfg.Name != "from-file" {
		t.Fatalf("LoadConfig(env) = %+v, %v", cfg, err)
	}

	if got := MetricsAddress(service.CommonFlags{}, cfg); got != "127.0.0.1:9100" {
		t.Errorf("MetricsAddress = %q, want the file's", got)
	}
	if got := MetricsAddress(service.CommonFlags{MetricsAddr: ":9200"}, cfg); got != ":9200" {
		t.Errorf("MetricsAddress = %q, want the flag's", got)
	}
}

func pollFor(t *testing.T, client *busclient.Client, action string) *envelope.Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		message, err := client.Poll(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if message != nil && message.Action == action {
			return message
		}
	}
	t.Fatalf("no %s envelope within 5s", action)
	return nil
}
