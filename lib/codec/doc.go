// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the binary encoding used for data at rest.
//
// Envelopes travel as JSON (see lib/envelope); payloads parked in the
// uplink buffer store are CBOR-encoded with Core Deterministic Encoding
// and then zstd-compressed, since edge devices keep the buffer on
// small flash storage. [Pack] and [Unpack] combine both steps.
//
// Decoding into an untyped target yields map[string]any for maps so
// unpacked documents can be handed straight to JSON-speaking sinks.
package codec
