// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker implements the central relay of an edge node.
//
// Every service connects a transport.Dealer to the broker's
// transport.Router and registers under a logical service name. The
// [Registry] maps each name to the transport identity that registered
// it last; a reconnecting service simply registers again and the new
// identity supersedes the old one.
//
// [Broker.HandleFrame] is the whole protocol:
//
//   - register envelopes update the registry and are acknowledged
//     synchronously with a response correlated to the register ID;
//   - every other envelope is forwarded, byte for byte, to the identity
//     registered under its destination;
//   - malformed frames, empty destinations and unknown destinations
//     are logged and dropped. The sender gets no reply.
//
// [Broker.Run] drives HandleFrame from a single receive loop, so a
// peer's registration is always applied before any later frame from
// that peer is routed. Sends never block: a peer whose queue is full
// loses the frame, not the broker's attention.
//
// The registry lives only in memory. After a broker restart it is
// rebuilt as services re-register on their keepalive schedule.
package broker
