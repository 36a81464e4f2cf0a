// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgebus/edgebus/lib/metrics"
)

// Metrics holds the controller's Prometheus collectors.
type Metrics struct {
	restarts    *prometheus.CounterVec
	escalations *prometheus.CounterVec
	records     *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with
// registerer when it is not nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "health",
			Name:      "restarts_total",
			Help:      "Restart actions issued, by service.",
		}, []string{"service"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "health",
			Name:      "escalations_total",
			Help:      "service.failed notifications emitted, by service.",
		}, []string{"service"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "health",
			Name:      "instances",
			Help:      "Monitored instances, by state.",
		}, []string{"state"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.restarts, m.escalations, m.records)
	}
	return m
}

func (m *Metrics) observeStates(records []*Record) {
	counts := map[State]int{
		StateInit:       0,
		StateRunning:    0,
		StateTimeout:    0,
		StateRestarting: 0,
		StateFailed:     0,
	}
	for _, record := range records {
		counts[record.State]++
	}
	for state, count := range counts {
		m.records.WithLabelValues(string(state)).Set(float64(count))
	}
}
