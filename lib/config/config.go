// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "EDGEBUS_CONFIG"

// Config is the configuration of one Edgebus service.
type Config struct {
	// Name is the service name registered with the broker. Each binary
	// supplies its own default when empty.
	Name string `yaml:"name"`

	// Instance distinguishes replicas of a service in heartbeats.
	// Defaults to Name.
	Instance string `yaml:"instance_id"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// MetricsAddress is the listen address of the /metrics endpoint.
	// Empty disables it.
	MetricsAddress string `yaml:"metrics_addr"`

	Bus       BusConfig       `yaml:"bus"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	Broker BrokerConfig `yaml:"broker"`
	Health HealthConfig `yaml:"health"`
	Uplink UplinkConfig `yaml:"uplink"`
	Driver DriverConfig `yaml:"driver"`
}

// BusConfig configures a service's connection to the broker.
type BusConfig struct {
	// Endpoint is the broker's ZeroMQ endpoint.
	// Default: tcp://127.0.0.1:5555
	Endpoint string `yaml:"endpoint"`

	// AckTimeout bounds the wait for each registration ACK.
	// Default: 2s
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// RetryDelay and MaxRetryDelay bound the registration backoff.
	// Default: 500ms and 10s
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`

	// RegisterAttempts limits registration attempts at startup. Zero
	// retries until shutdown.
	RegisterAttempts int `yaml:"register_attempts"`

	// Keepalive re-sends the registration this often. Zero disables.
	// Default: 30s
	Keepalive time.Duration `yaml:"keepalive"`

	// PollTimeout bounds each receive in a service's control loop.
	// Default: 100ms
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// HighWaterMark caps queued messages per socket.
	// Default: 1000
	HighWaterMark int `yaml:"high_water_mark"`
}

// HeartbeatConfig configures the heartbeats a service sends to the
// health service.
type HeartbeatConfig struct {
	// Enabled defaults to true.
	Enabled bool `yaml:"enabled"`

	// Service is the bus name of the health service.
	// Default: health
	Service string `yaml:"service"`

	// Interval between heartbeats.
	// Default: 5s
	Interval time.Duration `yaml:"interval"`
}

// Default returns the defaults every loaded file is merged onto.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Bus: BusConfig{
			Endpoint:      "tcp://127.0.0.1:5555",
			AckTimeout:    2 * time.Second,
			RetryDelay:    500 * time.Millisecond,
			MaxRetryDelay: 10 * time.Second,
			Keepalive:     30 * time.Second,
			PollTimeout:   100 * time.Millisecond,
			HighWaterMark: 1000,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Service:  "health",
			Interval: 5 * time.Second,
		},
		Broker: BrokerConfig{
			Bind: "tcp://*:5555",
		},
		Health: HealthConfig{
			Timeout:          15 * time.Second,
			Tick:             time.Second,
			EscalationTarget: "platform-gateway",
			AutoPublish: AutoPublishConfig{
				Interval: 5 * time.Second,
			},
			DiskPaths: []string{"/"},
		},
		Uplink: UplinkConfig{
			DeviceID:      "edge-unknown",
			HealthService: "health",
			HealthAction:  "snapshot.get",
			HealthTimeout: 1200 * time.Millisecond,
			Buffer: BufferConfig{
				Path:          "uplink_buffer.db",
				MaxRecords:    1000,
				FlushBatch:    50,
				FlushInterval: 5 * time.Second,
			},
			ReloadInterval: 2 * time.Second,
		},
		Driver: DriverConfig{
			QueueSize:       64,
			DialTimeout:     2 * time.Second,
			ExchangeTimeout: time.Second,
			SilenceGap:      50 * time.Millisecond,
		},
	}
}

// Load loads the file named by the EDGEBUS_CONFIG environment
// variable. It fails when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of the service config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads, merges onto [Default] and validates the file at
// path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data, isJSONC(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration from data, which is JSONC when jsonc is
// true and YAML otherwise.
func Parse(data []byte, jsoncInput bool) (*Config, error) {
	data = []byte(expandVars(string(data)))
	if jsoncInput {
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isJSONC(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return true
	}
	return false
}

// applyDefaults fills values that cannot be expressed in Default, such
// as fields of list elements and values derived from other fields.
func (c *Config) applyDefaults() {
	if c.Instance == "" {
		c.Instance = c.Name
	}
	for i := range c.Uplink.Targets {
		c.Uplink.Targets[i].applyDefaults()
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// environment.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for errors. Every problem is
// reported, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("log_level must be one of: %v", logLevels))
	}

	if c.Bus.Endpoint == "" {
		errs = append(errs, errors.New("bus.endpoint is required"))
	}
	if c.Bus.AckTimeout <= 0 {
		errs = append(errs, errors.New("bus.ack_timeout must be positive"))
	}
	if c.Bus.PollTimeout <= 0 {
		errs = append(errs, errors.New("bus.poll_timeout must be positive"))
	}
	if c.Bus.Keepalive < 0 {
		errs = append(errs, errors.New("bus.keepalive must not be negative"))
	}
	if c.Heartbeat.Enabled && c.Heartbeat.Interval <= 0 {
		errs = append(errs, errors.New("heartbeat.interval must be positive"))
	}

	errs = append(errs, c.Broker.validate()...)
	errs = append(errs, c.Health.validate()...)
	errs = append(errs, c.Uplink.validate()...)
	errs = append(errs, c.Driver.validate()...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ServiceName returns Name, or fallback when Name is empty.
func (c *Config) ServiceName(fallback string) string {
	if c.Name != "" {
		return c.Name
	}
	return fallback
}

// InstanceID returns Instance, or the service name when Instance is
// empty.
func (c *Config) InstanceID(fallback string) string {
	if c.Instance != "" {
		return c.Instance
	}
	return c.ServiceName(fallback)
}
