// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Kind is the envelope type.
type Kind string

const (
	KindRegister Kind = "register"
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindEvent    Kind = "event"
)

// BrokerName is the destination of registration envelopes and the
// source of the broker's acknowledgements.
const BrokerName = "broker"

// ActionRegister is the action carried by registration envelopes and
// their acknowledgements.
const ActionRegister = "register"

// ErrMalformedEnvelope reports bytes that do not decode into an
// envelope.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is one message on the bus.
type Envelope struct {
	ID            string
	Kind          Kind
	Source        string
	Destination   string
	Action        string
	Payload       map[string]any
	CorrelationID string
	CreatedAt     time.Time
}

// wireEnvelope is the JSON shape. Pointer fields distinguish an absent
// or null value from an empty string.
type wireEnvelope struct {
	ID            string          `json:"id"`
	Kind          *string         `json:"kind"`
	Source        *string         `json:"source"`
	Destination   *string         `json:"destination"`
	Action        *string         `json:"action"`
	Payload       map[string]any  `json:"payload"`
	CorrelationID *string         `json:"correlation_id"`
	CreatedAt     json.RawMessage `json:"created_at"`
}

// New builds an envelope with a fresh ID and the current UTC time. A
// nil payload becomes an empty document.
func New(kind Kind, source, destination, action string, payload map[string]any) *Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Envelope{
		ID:          uuid.NewString(),
		Kind:        kind,
		Source:      source,
		Destination: destination,
		Action:      action,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewRegister builds the registration envelope a service sends to the
// broker on connect.
func NewRegister(serviceName string) *Envelope {
	return New(KindRegister, serviceName, BrokerName, ActionRegister, map[string]any{
		"service_name": serviceName,
	})
}

// Reply builds a response to e, addressed to e's source and correlated
// with e's ID.
func (e *Envelope) Reply(source, action string, payload map[string]any) *Envelope {
	reply := New(KindResponse, source, e.Source, action, payload)
	reply.CorrelationID = e.ID
	return reply
}

// IsRegisterAck reports whether e acknowledges the registration whose
// envelope ID is registerID.
func (e *Envelope) IsRegisterAck(registerID string) bool {
	return e.Kind == KindResponse &&
		e.Action == ActionRegister &&
		e.CorrelationID == registerID &&
		e.PayloadString("status") == "ok"
}

// PayloadString returns payload[key] when it is a string.
func (e *Envelope) PayloadString(key string) string {
	value, _ := e.Payload[key].(string)
	return value
}

// PayloadInt64 returns payload[key] as an integer. JSON numbers decode
// as float64; integral values are accepted, anything else reports
// false.
func (e *Envelope) PayloadInt64(key string) (int64, bool) {
	switch value := e.Payload[key].(type) {
	case float64:
		if value != math.Trunc(value) {
			return 0, false
		}
		return int64(value), true
	case int64:
		return value, true
	case int:
		return int64(value), true
	case json.Number:
		parsed, err := value.Int64()
		return parsed, err == nil
	}
	return 0, false
}

// PayloadMap returns payload[key] when it is a JSON object.
func (e *Envelope) PayloadMap(key string) (map[string]any, bool) {
	value, ok := e.Payload[key].(map[string]any)
	return value, ok
}

// Encode serializes e to its UTF-8 JSON wire form.
func Encode(e *Envelope) ([]byte, error) {
	createdAt, err := json.Marshal(e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode %s: %w", e.ID, err)
	}
	kind := string(e.Kind)
	wire := wireEnvelope{
		ID:          e.ID,
		Kind:        &kind,
		Source:      &e.Source,
		Destination: &e.Destination,
		Payload:     e.Payload,
		CreatedAt:   createdAt,
	}
	if e.Action != "" {
		wire.Action = &e.Action
	}
	if e.CorrelationID != "" {
		wire.CorrelationID = &e.CorrelationID
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode %s: %w", e.ID, err)
	}
	return data, nil
}

// Decode parses the wire form. Errors wrap ErrMalformedEnvelope.
func Decode(data []byte) (*Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	switch {
	case wire.Kind == nil:
		return nil, fmt.Errorf("%w: missing kind", ErrMalformedEnvelope)
	case wire.Source == nil:
		return nil, fmt.Errorf("%w: missing source", ErrMalformedEnvelope)
	case wire.Destination == nil:
		return nil, fmt.Errorf("%w: missing destination", ErrMalformedEnvelope)
	}

	e := &Envelope{
		ID:          wire.ID,
		Kind:        Kind(*wire.Kind),
		Source:      *wire.Source,
		Destination: *wire.Destination,
		Payload:     wire.Payload,
		CreatedAt:   parseCreatedAt(wire.CreatedAt),
	}
	if wire.Action != nil {
		e.Action = *wire.Action
	}
	if wire.CorrelationID != nil {
		e.CorrelationID = *wire.CorrelationID
	}
	return e, nil
}

// parseCreatedAt reads an RFC 3339 string or a number of Unix seconds.
// Anything else, including "" and null, yields the zero time.
func parseCreatedAt(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		parsed, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return time.Time{}
		}
		return parsed.UTC()
	}
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		whole, fraction := math.Modf(seconds)
		return time.Unix(int64(whole), int64(fraction*float64(time.Second))).UTC()
	}
	return time.Time{}
}
