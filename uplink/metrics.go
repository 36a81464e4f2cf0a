// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgebus/edgebus/lib/metrics"
)

// Metrics holds the uplink service's Prometheus collectors.
type Metrics struct {
	sent          *prometheus.CounterVec
	failed        *prometheus.CounterVec
	buffered      *prometheus.CounterVec
	flushed       *prometheus.CounterVec
	discarded     prometheus.Counter
	evicted       prometheus.Counter
	bufferRecords prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with
// registerer when it is not nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	counterVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "uplink",
			Name:      name,
			Help:      help,
		}, []string{"uplink"})
	}
	m := &Metrics{
		sent:     counterVec("sent_total", "Documents delivered on schedule, by uplink."),
		failed:   counterVec("failed_total", "Failed deliveries, scheduled or replayed, by uplink."),
		buffered: counterVec("buffered_total", "Documents written to the buffer, by uplink."),
		flushed:  counterVec("flushed_total", "Buffered records delivered by a flush, by uplink."),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "uplink",
			Name:      "discarded_total",
			Help:      "Buffered records dropped because they could not be decoded.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "uplink",
			Name:      "evicted_total",
			Help:      "Buffered records evicted by the capacity limit.",
		}),
		bufferRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "uplink",
			Name:      "buffer_records",
			Help:      "Records currently buffered across all uplinks.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.sent, m.failed, m.buffered, m.flushed, m.discarded, m.evicted, m.bufferRecords)
	}
	return m
}
