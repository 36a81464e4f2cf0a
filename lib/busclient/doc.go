// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package busclient is the service side of the broker protocol.
//
// A [Client] wraps a transport.Dealer with the registration handshake
// and the envelope codec. Register retries until the broker
// acknowledges; Maintain re-registers on a keepalive schedule so that a
// restarted broker relearns every route. Poll feeds the service's
// control loop one envelope at a time, and Call performs a correlated
// request/response with a deadline.
package busclient
