// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope defines the message unit exchanged by every edgebus
// service and its UTF-8 JSON wire form.
//
// An envelope names its sender and its logical destination (a service
// name, or "broker" for the registration handshake). The broker routes
// on Destination alone and never reads Action or Payload; those belong
// to the endpoints. Responses carry the ID of the request they answer
// in CorrelationID. Events and plain requests carry none, encoded as
// JSON null.
//
// [Decode] only checks that the bytes are a JSON object with kind,
// source and destination keys. Anything else is the receiver's
// business.
package envelope
