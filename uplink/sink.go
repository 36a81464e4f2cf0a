// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/edgebus/edgebus/lib/config"
)

// ErrSinkDelivery wraps every delivery failure a sink reports.
var ErrSinkDelivery = errors.New("sink delivery failed")

// Sink delivers documents to one external endpoint. Send returns nil
// only once the endpoint has accepted the document; any error counts
// as a failed delivery. A sink may also implement io.Closer.
type Sink interface {
	Send(ctx context.Context, document Document) error
}

// SinkFactory builds the sink of a configured uplink target.
type SinkFactory func(target config.TargetConfig, logger *slog.Logger) (Sink, error)

// NewSink builds the sink selected by target.Type.
func NewSink(target config.TargetConfig, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("uplink", target.Name, "type", target.Type)

	switch target.Type {
	case config.TargetHTTP:
		return NewHTTPSink(target.URL, target.Headers, nil), nil
	case config.TargetThingsBoard:
		return NewThingsBoardSink(target.Protocol, target.Host, target.Token, nil, logger), nil
	case config.TargetMQTT:
		return NewMQTTSink(MQTTConfig{
			Host:     target.Host,
			Port:     target.Port,
			Topic:    target.Topic,
			QoS:      target.QualityOfService(),
			Username: target.Username,
			Password: target.Password,
			ClientID: target.ClientID,
			Name:     target.Name,
		}, logger), nil
	case config.TargetNATS:
		return NewNATSSink(target.URL, target.Subject, target.Name, logger)
	}
	return nil, fmt.Errorf("uplink %s: unknown type %q", target.Name, target.Type)
}

// closeSink closes sink when it holds resources.
func closeSink(sink Sink) error {
	if closer, ok := sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
