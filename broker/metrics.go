// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgebus/edgebus/lib/metrics"
)

// Drop reasons, used as the "reason" label of the dropped counter.
const (
	dropMalformed       = "malformed"
	dropNoDestination   = "no_destination"
	dropUnknownDest     = "unknown_destination"
	dropPeerUnavailable = "peer_unavailable"
)

// Metrics holds the broker's Prometheus collectors.
type Metrics struct {
	registrations prometheus.Counter
	forwarded     prometheus.Counter
	dropped       *prometheus.CounterVec
	registered    prometheus.Gauge
}

// NewMetrics creates the broker collectors and registers them with
// registerer. A nil registerer leaves them unregistered, which tests
// use.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "broker",
			Name:      "registrations_total",
			Help:      "Register envelopes accepted.",
		}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "broker",
			Name:      "forwarded_total",
			Help:      "Envelopes forwarded to a registered destination.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "broker",
			Name:      "dropped_total",
			Help:      "Frames dropped, by reason.",
		}, []string{"reason"}),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "broker",
			Name:      "registered_services",
			Help:      "Service names currently in the registry.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.registrations, m.forwarded, m.dropped, m.registered)
	}
	return m
}
