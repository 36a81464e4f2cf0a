// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// edgebus-uplink aggregates push_data from local services and delivers
// it, with the node's liveness snapshot, to the configured cloud
// endpoints. Failed deliveries are kept in a SQLite buffer and replayed
// in order once the endpoint recovers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/edgebus/edgebus/lib/bootstrap"
	"github.com/edgebus/edgebus/lib/config"
	"github.com/edgebus/edgebus/lib/process"
	"github.com/edgebus/edgebus/lib/service"
	"github.com/edgebus/edgebus/lib/version"
	"github.com/edgebus/edgebus/uplink"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var flags service.CommonFlags
	service.RegisterCommonFlags(pflag.CommandLine, &flags)
	pflag.Parse()

	if flags.ShowVersion {
		version.Print(os.Stdout, "edgebus-uplink")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := bootstrap.Start(ctx, bootstrap.Config{
		Flags:       flags,
		DefaultName: "uplink",
	})
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := svc.Config.Uplink
	metrics := uplink.NewMetrics(svc.Metrics)

	buffer, err := uplink.OpenBufferStore(ctx, uplink.BufferConfig{
		Path:     cfg.Buffer.Path,
		Capacity: cfg.Buffer.MaxRecords,
		Durable:  true,
		Clock:    svc.Clock,
		Logger:   svc.Logger,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("opening uplink buffer: %w", err)
	}
	defer buffer.Close()

	dispatcher := uplink.NewDispatcher(uplink.DispatcherConfig{
		Aggregator: uplink.NewAggregator(cfg.DeviceID, svc.Clock),
		Buffer:     buffer,
		Health: uplink.BusHealthSource{
			Caller:  svc.Client,
			Service: cfg.HealthService,
			Action:  cfg.HealthAction,
		},
		HealthTimeout: cfg.HealthTimeout,
		FlushInterval: cfg.Buffer.FlushInterval,
		FlushBatch:    cfg.Buffer.FlushBatch,
		Clock:         svc.Clock,
		Logger:        svc.Logger,
		Metrics:       metrics,
	})
	defer dispatcher.Close()
	dispatcher.Apply(cfg.Targets)

	var watcher *config.Watcher
	if path := configPath(flags); path != "" && cfg.ReloadInterval > 0 {
		watcher = config.NewWatcher(path)
		// Prime the watcher with the file already loaded.
		if _, _, err := watcher.Poll(); err != nil {
			svc.Logger.Warn("config watcher disabled", "path", path, "error", err)
			watcher = nil
		}
	}

	uplinkService := newUplinkService(uplinkServiceConfig{
		Dispatcher:     dispatcher,
		Bus:            svc.Client,
		Watcher:        watcher,
		ReloadInterval: cfg.ReloadInterval,
		Clock:          svc.Clock,
		Logger:         svc.Logger,
	})

	svc.Logger.Info("uplink service running",
		"device_id", cfg.DeviceID,
		"uplinks", dispatcher.Uplinks(),
		"buffer", cfg.Buffer.Path,
	)
	return svc.Loop(ctx, bootstrap.Handlers{
		Handle: uplinkService.handle,
		Idle:   func() { uplinkService.idle(ctx) },
	})
}

func configPath(flags service.CommonFlags) string {
	if flags.ConfigPath != "" {
		return flags.ConfigPath
	}
	return os.Getenv(config.EnvironmentVariable)
}
