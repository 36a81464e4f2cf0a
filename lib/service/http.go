// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds the drain of in-flight requests.
const DefaultShutdownTimeout = 5 * time.Second

// HTTPServerConfig configures an HTTPServer. Address and Handler are
// required.
type HTTPServerConfig struct {
	// Address is the TCP listen address. Port 0 picks a free port;
	// read it from Addr once Ready is closed.
	Address string

	Handler http.Handler

	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// HTTPServer runs a small side endpoint next to a service's bus loop,
// such as /metrics.
type HTTPServer struct {
	config HTTPServerConfig
	ready  chan struct{}
	addr   net.Addr
}

// NewHTTPServer creates a server. It panics when Address or Handler is
// missing.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" {
		panic("service: HTTPServer Address is required")
	}
	if config.Handler == nil {
		panic("service: HTTPServer Handler is required")
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPServer{config: config, ready: make(chan struct{})}
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address. Valid after Ready is closed.
func (s *HTTPServer) Addr() net.Addr { return s.addr }

// Serve listens and serves until ctx ends, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.config.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logger := s.config.Logger.With("address", s.addr.String())
	logger.Info("http endpoint listening")

	failed := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("serving %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	drain, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drain); err != nil {
		return fmt.Errorf("shutting down %s: %w", s.addr, err)
	}
	logger.Info("http endpoint stopped")
	return nil
}
