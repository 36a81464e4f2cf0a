// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package uplink relays aggregated telemetry from the bus to external
// cloud endpoints and survives their outages.
//
// Producers send push_data events naming a source. The [Aggregator]
// keeps the latest payload per (uplink, source) and tracks whether an
// uplink holds anything not yet delivered. On each uplink's interval
// the [Dispatcher] builds a [Document] (device id, timestamp, every
// source's payload and the latest liveness snapshot) and hands it to
// that uplink's [Sink].
//
// A failed delivery that carried telemetry is written to the
// [BufferStore], a SQLite FIFO bounded by a global record count. On
// its own flush interval the dispatcher replays buffered records per
// uplink, oldest first, stopping at the first failure so that retries
// never overtake untried records. Records are deleted only after a
// confirmed send or by eviction under capacity pressure, which makes
// delivery at-least-once within the buffer's retention.
//
// Sinks are selected by configuration: [HTTPSink] posts JSON,
// [ThingsBoardSink] flattens telemetry into ThingsBoard's device API,
// [MQTTSink] publishes through Eclipse Paho and [NATSSink] publishes
// through nats.go.
//
// The dispatcher and aggregator are owned by the uplink service's
// control loop and are not safe for concurrent use. The buffer store
// is.
package uplink
