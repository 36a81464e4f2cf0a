// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// BrokerConfig configures edgebus-broker.
type BrokerConfig struct {
	// Bind is the ROUTER socket's bind endpoint.
	// Default: tcp://*:5555
	Bind string `yaml:"bind"`
}

func (b BrokerConfig) validate() []error {
	if b.Bind == "" {
		return []error{errors.New("broker.bind is required")}
	}
	return nil
}

// HealthConfig configures edgebus-health.
type HealthConfig struct {
	// Timeout is the heartbeat silence after which an instance is
	// considered dead.
	// Default: 15s
	Timeout time.Duration `yaml:"timeout"`

	// Tick is the interval of the sweep/restart/escalate cycle.
	// Default: 1s
	Tick time.Duration `yaml:"tick"`

	// EscalationTarget receives service.failed events.
	// Default: platform-gateway
	EscalationTarget string `yaml:"escalation_target"`

	AutoPublish AutoPublishConfig `yaml:"auto_publish"`

	// Services lists monitored services with their recovery policy.
	Services []ServiceSpec `yaml:"services"`

	// DiskPaths are the filesystems reported by hw.get.
	// Default: [/]
	DiskPaths []string `yaml:"disk_paths"`
}

// AutoPublishConfig pushes the liveness snapshot to other services on
// a fixed interval.
type AutoPublishConfig struct {
	Enabled bool `yaml:"enabled"`

	// Default: 5s
	Interval time.Duration `yaml:"interval"`

	Targets []PublishTarget `yaml:"targets"`
}

// PublishTarget is one recipient of the auto-published snapshot.
type PublishTarget struct {
	Service string `yaml:"service"`
	Action  string `yaml:"action"`
}

// ServiceSpec is the recovery policy of a monitored service. When
// Instance is set the policy applies to that instance only; otherwise
// it applies to every instance of Name.
type ServiceSpec struct {
	Name     string `yaml:"name"`
	Instance string `yaml:"instance_id"`

	// Enabled defaults to true. A disabled spec is ignored.
	Enabled *bool `yaml:"enabled"`

	Exec   ExecSpec   `yaml:"exec"`
	Policy PolicySpec `yaml:"policy"`
}

// ExecSpec holds the commands that act on a service.
type ExecSpec struct {
	// Restart is run through sh -c when the service must be restarted.
	Restart string `yaml:"restart"`
}

// PolicySpec bounds automatic restarts.
type PolicySpec struct {
	MaxRetry int           `yaml:"max_retry"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// IsEnabled reports whether the spec applies.
func (s ServiceSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func (h HealthConfig) validate() []error {
	var errs []error
	if h.Timeout <= 0 {
		errs = append(errs, errors.New("health.timeout must be positive"))
	}
	if h.Tick <= 0 {
		errs = append(errs, errors.New("health.tick must be positive"))
	}
	if h.AutoPublish.Enabled && h.AutoPublish.Interval <= 0 {
		errs = append(errs, errors.New("health.auto_publish.interval must be positive"))
	}
	for i, target := range h.AutoPublish.Targets {
		if target.Service == "" || target.Action == "" {
			errs = append(errs, fmt.Errorf("health.auto_publish.targets[%d]: service and action are required", i))
		}
	}
	for i, spec := range h.Services {
		if spec.Name == "" {
			errs = append(errs, fmt.Errorf("health.services[%d]: name is required", i))
		}
		if spec.Policy.MaxRetry < 0 {
			errs = append(errs, fmt.Errorf("health.services[%d]: policy.max_retry must not be negative", i))
		}
		if spec.Policy.Cooldown < 0 {
			errs = append(errs, fmt.Errorf("health.services[%d]: policy.cooldown must not be negative", i))
		}
	}
	return errs
}

// UplinkConfig configures edgebus-uplink.
type UplinkConfig struct {
	// DeviceID identifies this node in every uplinked document.
	// Default: edge-unknown
	DeviceID string `yaml:"device_id"`

	// HealthService and HealthAction name the request that fetches
	// the liveness snapshot attached to each document.
	// Default: health, snapshot.get
	HealthService string `yaml:"health_service"`
	HealthAction  string `yaml:"health_action"`

	// HealthTimeout bounds the snapshot request.
	// Default: 1.2s
	HealthTimeout time.Duration `yaml:"health_timeout"`

	Buffer BufferConfig `yaml:"buffer"`

	// ReloadInterval is how often the config file is checked for
	// changes to Targets.
	// Default: 2s
	ReloadInterval time.Duration `yaml:"reload_interval"`

	Targets []TargetConfig `yaml:"uplinks"`
}

// BufferConfig configures the durable uplink buffer.
type BufferConfig struct {
	// Path of the SQLite database.
	// Default: uplink_buffer.db
	Path string `yaml:"path"`

	// MaxRecords caps buffered records across all uplinks. The oldest
	// are evicted first.
	// Default: 1000
	MaxRecords int `yaml:"max_records"`

	// FlushBatch is the number of records resent per uplink per flush.
	// Default: 50
	FlushBatch int `yaml:"flush_batch"`

	// Default: 5s
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Uplink target types.
const (
	TargetHTTP        = "http"
	TargetThingsBoard = "thingsboard"
	TargetMQTT        = "mqtt"
	TargetNATS        = "nats"
)

var targetTypes = []string{TargetHTTP, TargetThingsBoard, TargetMQTT, TargetNATS}

// TargetConfig is one cloud endpoint. Which connection fields are
// required depends on Type.
type TargetConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Enabled bool   `yaml:"enabled"`

	// Interval between sends.
	// Default: 10s
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds one delivery.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// http: URL and Headers.
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// thingsboard: Host, Token, Protocol (http or https, default http).
	Token    string `yaml:"token"`
	Protocol string `yaml:"protocol"`

	// mqtt: Host, Port (default 1883), Topic, QoS (default 1),
	// Username, Password, ClientID.
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Topic    string `yaml:"topic"`
	QoS      *int   `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`

	// nats: URL and Subject.
	Subject string `yaml:"subject"`
}

func (t *TargetConfig) applyDefaults() {
	if t.Interval == 0 {
		t.Interval = 10 * time.Second
	}
	if t.Timeout == 0 {
		t.Timeout = 5 * time.Second
	}
	switch t.Type {
	case TargetThingsBoard:
		if t.Protocol == "" {
			t.Protocol = "http"
		}
	case TargetMQTT:
		if t.Port == 0 {
			t.Port = 1883
		}
		if t.QoS == nil {
			qos := 1
			t.QoS = &qos
		}
	}
}

// QualityOfService returns the MQTT QoS level.
func (t TargetConfig) QualityOfService() byte {
	if t.QoS == nil {
		return 1
	}
	return byte(*t.QoS)
}

func (t TargetConfig) validate(index int) []error {
	var errs []error
	field := func(name string) string { return fmt.Sprintf("uplink.uplinks[%d].%s", index, name) }
	require := func(value, name string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required for type %s", field(name), t.Type))
		}
	}

	if t.Name == "" {
		errs = append(errs, fmt.Errorf("%s is required", field("name")))
	}
	if !slices.Contains(targetTypes, t.Type) {
		errs = append(errs, fmt.Errorf("%s must be one of: %v", field("type"), targetTypes))
	}
	if t.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", field("interval")))
	}
	if t.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", field("timeout")))
	}

	switch t.Type {
	case TargetHTTP:
		require(t.URL, "url")
	case TargetThingsBoard:
		require(t.Host, "host")
		require(t.Token, "token")
		if t.Protocol != "http" && t.Protocol != "https" {
			errs = append(errs, fmt.Errorf("%s must be http or https", field("protocol")))
		}
	case TargetMQTT:
		require(t.Host, "host")
		require(t.Topic, "topic")
		if qos := t.QualityOfService(); qos > 2 {
			errs = append(errs, fmt.Errorf("%s must be 0, 1 or 2", field("qos")))
		}
	case TargetNATS:
		require(t.URL, "url")
		require(t.Subject, "subject")
	}
	return errs
}

func (u UplinkConfig) validate() []error {
	var errs []error
	if u.DeviceID == "" {
		errs = append(errs, errors.New("uplink.device_id is required"))
	}
	if u.HealthTimeout <= 0 {
		errs = append(errs, errors.New("uplink.health_timeout must be positive"))
	}
	if u.Buffer.Path == "" {
		errs = append(errs, errors.New("uplink.buffer.path is required"))
	}
	if u.Buffer.MaxRecords <= 0 {
		errs = append(errs, errors.New("uplink.buffer.max_records must be positive"))
	}
	if u.Buffer.FlushBatch <= 0 {
		errs = append(errs, errors.New("uplink.buffer.flush_batch must be positive"))
	}
	if u.Buffer.FlushInterval <= 0 {
		errs = append(errs, errors.New("uplink.buffer.flush_interval must be positive"))
	}
	if u.ReloadInterval < 0 {
		errs = append(errs, errors.New("uplink.reload_interval must not be negative"))
	}

	names := make(map[string]bool, len(u.Targets))
	for i, target := range u.Targets {
		errs = append(errs, target.validate(i)...)
		if target.Name != "" && names[target.Name] {
			errs = append(errs, fmt.Errorf("uplink.uplinks[%d]: duplicate name %q", i, target.Name))
		}
		names[target.Name] = true
	}
	return errs
}

// DriverConfig configures edgebus-driver.
type DriverConfig struct {
	// Device is the host:port of the serial-to-TCP gateway. Empty
	// disables the device (exchange requests fail).
	Device string `yaml:"device"`

	// QueueSize bounds pending exchange jobs.
	// Default: 64
	QueueSize int `yaml:"queue_size"`

	// DialTimeout bounds connecting to Device.
	// Default: 2s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ExchangeTimeout bounds the wait for the first response byte when
	// a request does not set timeout_ms.
	// Default: 1s
	ExchangeTimeout time.Duration `yaml:"exchange_timeout"`

	// SilenceGap ends a response once no byte arrives for this long.
	// Default: 50ms
	SilenceGap time.Duration `yaml:"silence_gap"`
}

func (d DriverConfig) validate() []error {
	var errs []error
	if d.QueueSize <= 0 {
		errs = append(errs, errors.New("driver.queue_size must be positive"))
	}
	if d.DialTimeout <= 0 || d.ExchangeTimeout <= 0 || d.SilenceGap <= 0 {
		errs = append(errs, errors.New("driver.dial_timeout, exchange_timeout and silence_gap must be positive"))
	}
	return errs
}
