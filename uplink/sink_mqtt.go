// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures an MQTTSink.
type MQTTConfig struct {
	Host     string
	Port     int
	Topic    string
	QoS      byte
	Username string
	Password string

	// ClientID defaults to "<Name>-uplink".
	ClientID string
	Name     string
}

// MQTTSink publishes each document as JSON to one topic. The client
// connects and reconnects in the background; Send fails while it is
// disconnected.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *slog.Logger
}

// NewMQTTSink creates the sink and starts connecting.
func NewMQTTSink(cfg MQTTConfig, logger *slog.Logger) *MQTTSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = cfg.Name + "-uplink"
	}

	options := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", "host", cfg.Host, "port", cfg.Port)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})
	if cfg.Username != "" || cfg.Password != "" {
		options.SetUsername(cfg.Username)
		options.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(options)
	client.Connect()
	return &MQTTSink{client: client, topic: cfg.Topic, qos: cfg.QoS, logger: logger}
}

// Send publishes document and waits for the broker's acknowledgement
// at the configured QoS, bounded by ctx.
func (s *MQTTSink) Send(ctx context.Context, document Document) error {
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("%w: mqtt not connected", ErrSinkDelivery)
	}
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrSinkDelivery, err)
	}

	token := s.client.Publish(s.topic, s.qos, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: mqtt publish to %s: %v", ErrSinkDelivery, s.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt publish to %s: %v", ErrSinkDelivery, s.topic, err)
	}
	return nil
}

// Close disconnects, allowing a short grace period for in-flight
// publishes.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
