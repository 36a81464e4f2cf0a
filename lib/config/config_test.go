// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Bus.Endpoint != "tcp://127.0.0.1:5555" {
		t.Errorf("expected bus.endpoint=tcp://127.0.0.1:5555, got %s", cfg.Bus.Endpoint)
	}
	if cfg.Health.EscalationTarget != "platform-gateway" {
		t.Errorf("expected escalation_target=platform-gateway, got %s", cfg.Health.EscalationTarget)
	}
	if cfg.Uplink.Buffer.MaxRecords != 1000 || cfg.Uplink.Buffer.FlushBatch != 50 {
		t.Errorf("unexpected buffer defaults: %+v", cfg.Uplink.Buffer)
	}
	if !cfg.Heartbeat.Enabled {
		t.Error("expected heartbeat enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestLoad_RequiresEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when EDGEBUS_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "EDGEBUS_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "health.yaml", "name: health\nhealth:\n  timeout: 30s\n")
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Health.Timeout != 30*time.Second {
		t.Errorf("expected health.timeout=30s, got %s", cfg.Health.Timeout)
	}
	if cfg.Instance != "health" {
		t.Errorf("expected instance_id to default to name, got %q", cfg.Instance)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := writeConfig(t, "uplink.yaml", `
name: uplink
log_level: debug
bus:
  endpoint: tcp://10.0.0.1:5555
  keepalive: 0s

uplink:
  device_id: SHOP-42
  buffer:
    path: /var/lib/edgebus/buffer.db
    max_records: 200
  uplinks:
    - name: cloud
      type: http
      enabled: true
      url: https://example.invalid/ingest
      headers:
        Authorization: Bearer abc
    - name: broker
      type: mqtt
      host: mqtt.local
      topic: shop/telemetry
      qos: 0
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Bus.Endpoint != "tcp://10.0.0.1:5555" || cfg.Bus.Keepalive != 0 {
		t.Errorf("unexpected bus: %+v", cfg.Bus)
	}
	// Untouched defaults survive the merge.
	if cfg.Bus.AckTimeout != 2*time.Second {
		t.Errorf("expected default ack_timeout, got %s", cfg.Bus.AckTimeout)
	}
	if cfg.Uplink.Buffer.MaxRecords != 200 || cfg.Uplink.Buffer.FlushBatch != 50 {
		t.Errorf("unexpected buffer: %+v", cfg.Uplink.Buffer)
	}

	if len(cfg.Uplink.Targets) != 2 {
		t.Fatalf("expected 2 uplinks, got %d", len(cfg.Uplink.Targets))
	}
	httpTarget := cfg.Uplink.Targets[0]
	if httpTarget.Interval != 10*time.Second || httpTarget.Timeout != 5*time.Second {
		t.Errorf("target defaults not applied: %+v", httpTarget)
	}
	if httpTarget.Headers["Authorization"] != "Bearer abc" {
		t.Errorf("headers = %v", httpTarget.Headers)
	}
	mqttTarget := cfg.Uplink.Targets[1]
	if mqttTarget.Enabled {
		t.Error("enabled should default to false for uplinks")
	}
	if mqttTarget.Port != 1883 || mqttTarget.QualityOfService() != 0 {
		t.Errorf("mqtt target = port %d qos %d, want 1883/0", mqttTarget.Port, mqttTarget.QualityOfService())
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeConfig(t, "health.jsonc", `{
  // liveness monitor
  "name": "health",
  "health": {
    "timeout": "20s",
    "auto_publish": {
      "enabled": true,
      "targets": [{"service": "uplink", "action": "push_data"},],
    },
    "services": [
      {"name": "modbus", "exec": {"restart": "systemctl restart modbus"}, "policy": {"max_retry": 3, "cooldown": "30s"}},
      {"name": "io", "instance_id": "io-2", "enabled": false},
    ],
  },
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Health.Timeout != 20*time.Second {
		t.Errorf("timeout = %s", cfg.Health.Timeout)
	}
	if len(cfg.Health.AutoPublish.Targets) != 1 || cfg.Health.AutoPublish.Interval != 5*time.Second {
		t.Errorf("auto_publish = %+v", cfg.Health.AutoPublish)
	}
	if len(cfg.Health.Services) != 2 {
		t.Fatalf("services = %+v", cfg.Health.Services)
	}
	modbus := cfg.Health.Services[0]
	if !modbus.IsEnabled() || modbus.Policy.MaxRetry != 3 || modbus.Policy.Cooldown != 30*time.Second {
		t.Errorf("modbus spec = %+v", modbus)
	}
	if cfg.Health.Services[1].IsEnabled() {
		t.Error("io spec should be disabled")
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("EDGEBUS_TEST_HOST", "10.1.1.1")

	tests := []struct {
		input    string
		expected string
	}{
		{"tcp://${EDGEBUS_TEST_HOST}:5555", "tcp://10.1.1.1:5555"},
		{"${EDGEBUS_TEST_UNSET:-fallback}", "fallback"},
		{"${EDGEBUS_TEST_HOST:-fallback}", "10.1.1.1"},
		{"${EDGEBUS_TEST_UNSET}", ""},
		{"no variables", "no variables"},
	}

	for _, test := range tests {
		if got := expandVars(test.input); got != test.expected {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestLoadFileExpandsEnvironment(t *testing.T) {
	t.Setenv("EDGEBUS_TEST_TOKEN", "secret-token")
	path := writeConfig(t, "uplink.yaml", `
uplink:
  uplinks:
    - name: tb
      type: thingsboard
      host: ${EDGEBUS_TEST_TB_HOST:-tb.local}
      token: ${EDGEBUS_TEST_TOKEN}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	target := cfg.Uplink.Targets[0]
	if target.Host != "tb.local" || target.Token != "secret-token" || target.Protocol != "http" {
		t.Errorf("target = %+v", target)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad log level", "log_level: loud\n", "log_level"},
		{"unknown key", "bogus: 1\n", "bogus"},
		{"unknown uplink type", "uplink:\n  uplinks:\n    - {name: x, type: carrier-pigeon}\n", "type must be one of"},
		{"http without url", "uplink:\n  uplinks:\n    - {name: x, type: http}\n", "url is required"},
		{"duplicate uplink", "uplink:\n  uplinks:\n    - {name: x, type: http, url: a}\n    - {name: x, type: http, url: b}\n", "duplicate name"},
		{"nats without subject", "uplink:\n  uplinks:\n    - {name: n, type: nats, url: nats://h}\n", "subject is required"},
		{"mqtt qos", "uplink:\n  uplinks:\n    - {name: m, type: mqtt, host: h, topic: t, qos: 3}\n", "qos"},
		{"zero health timeout", "health:\n  timeout: 0s\n", "health.timeout"},
		{"service without name", "health:\n  services:\n    - exec: {restart: x}\n", "name is required"},
		{"zero queue", "driver:\n  queue_size: 0\n", "queue_size"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.content), false)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil, false)
	if err != nil {
		t.Fatalf("Parse(empty) failed: %v", err)
	}
	if cfg.Bus.Endpoint != Default().Bus.Endpoint {
		t.Errorf("empty document should yield defaults, got %+v", cfg.Bus)
	}
}

func TestServiceNameFallbacks(t *testing.T) {
	cfg := Default()
	if cfg.ServiceName("uplink") != "uplink" || cfg.InstanceID("uplink") != "uplink" {
		t.Errorf("fallbacks not applied: %q %q", cfg.ServiceName("uplink"), cfg.InstanceID("uplink"))
	}
	cfg.Name = "uplink-a"
	cfg.Instance = "uplink-a-1"
	if cfg.ServiceName("uplink") != "uplink-a" || cfg.InstanceID("uplink") != "uplink-a-1" {
		t.Errorf("configured names ignored: %q %q", cfg.ServiceName("uplink"), cfg.InstanceID("uplink"))
	}
}
