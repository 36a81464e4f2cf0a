// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics builds the Prometheus registry each service
// registers its collectors with, and the HTTP handler that exposes it.
package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgebus/edgebus/lib/service"
)

// Namespace prefixes every edgebus metric name.
const Namespace = "edgebus"

// NewRegistry returns a registry holding the Go runtime and process
// collectors. Components add their own collectors to it.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler serves the registry at /metrics and a liveness probe at
// /health.
func Handler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Serve exposes registry on address until ctx is cancelled. An empty
// address disables the endpoint and returns immediately. Errors are
// logged; a broken metrics endpoint never stops the service.
func Serve(ctx context.Context, address string, registry *prometheus.Registry, logger *slog.Logger) {
	if address == "" {
		return
	}
	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address: address,
		Handler: Handler(registry),
		Logger:  logger,
	})
	go func() {
		if err := server.Serve(ctx); err != nil {
			logger.Error("metrics endpoint failed", "address", address, "error", err)
		}
	}()
}
