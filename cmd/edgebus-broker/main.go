// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// edgebus-broker relays envelopes between the services on one edge
// node. Services register their logical names over a ZeroMQ DEALER
// connection; the broker forwards each envelope to the connection
// registered under its destination.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/edgebus/edgebus/broker"
	"github.com/edgebus/edgebus/lib/bootstrap"
	"github.com/edgebus/edgebus/lib/metrics"
	"github.com/edgebus/edgebus/lib/process"
	"github.com/edgebus/edgebus/lib/service"
	"github.com/edgebus/edgebus/lib/version"
	"github.com/edgebus/edgebus/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var flags service.CommonFlags
	var bind string
	service.RegisterCommonFlags(pflag.CommandLine, &flags)
	pflag.StringVar(&bind, "bind", "", "ZeroMQ endpoint to bind (overrides broker.bind)")
	pflag.Parse()

	if flags.ShowVersion {
		version.Print(os.Stdout, "edgebus-broker")
		return nil
	}

	cfg, err := bootstrap.LoadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := bootstrap.NewLogger(flags, cfg)
	if err != nil {
		return err
	}
	if bind == "" {
		bind = cfg.Broker.Bind
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	metrics.Serve(ctx, bootstrap.MetricsAddress(flags, cfg), registry, logger)

	router, err := transport.ListenZMQ(bind, transport.SocketOptions{HighWaterMark: cfg.Bus.HighWaterMark})
	if err != nil {
		return fmt.Errorf("binding %s: %w", bind, err)
	}
	defer router.Close()

	relay := broker.New(broker.Config{
		Router:      router,
		Metrics:     broker.NewMetrics(registry),
		Logger:      logger.With("service", "broker"),
		PollTimeout: cfg.Bus.PollTimeout,
	})
	logger.Info("broker listening", "bind", bind, "version", version.Info())
	return relay.Run(ctx)
}
