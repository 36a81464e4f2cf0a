// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes each document as JSON to one subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url. An unreachable server is not an error:
// the connection keeps retrying in the background and Send fails until
// it succeeds.
func NewNATSSink(url, subject, name string, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := nats.Connect(url,
		nats.Name(name+"-uplink"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats connected", "server", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

// Send publishes document and flushes, so nil means the server has
// received it.
func (s *NATSSink) Send(ctx context.Context, document Document) error {
	if !s.conn.IsConnected() {
		return fmt.Errorf("%w: nats not connected", ErrSinkDelivery)
	}
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrSinkDelivery, err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("%w: nats publish to %s: %v", ErrSinkDelivery, s.subject, err)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: nats flush: %v", ErrSinkDelivery, err)
	}
	return nil
}

// Close closes the connection.
func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
