// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgebus/edgebus/lib/metrics"
)

// Metrics holds the worker's Prometheus collectors.
type Metrics struct {
	submitted  prometheus.Counter
	rejected   prometheus.Counter
	exchanges  *prometheus.CounterVec
	roundTrip  prometheus.Histogram
	queueDepth prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with
// registerer when it is not nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "driver",
			Name:      "jobs_submitted_total",
			Help:      "Exchange jobs accepted into the queue.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "driver",
			Name:      "jobs_rejected_total",
			Help:      "Exchange jobs rejected because the queue was full.",
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "driver",
			Name:      "exchanges_total",
			Help:      "Completed device exchanges, by status.",
		}, []string{"status"}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "driver",
			Name:      "exchange_duration_seconds",
			Help:      "Time from writing a request to the end of its response.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "driver",
			Name:      "queue_depth",
			Help:      "Exchange jobs waiting for the worker.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.submitted, m.rejected, m.exchanges, m.roundTrip, m.queueDepth)
	}
	return m
}
