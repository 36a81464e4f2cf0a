// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// edgebus-health tracks heartbeats from every service on the node,
// restarts instances that go silent according to their policy, and
// escalates the ones that cannot be recovered. Other services query
// it for liveness snapshots and hardware state.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/edgebus/edgebus/lib/bootstrap"
	"github.com/edgebus/edgebus/lib/hwinfo"
	"github.com/edgebus/edgebus/lib/process"
	"github.com/edgebus/edgebus/lib/service"
	"github.com/edgebus/edgebus/lib/version"
	"github.com/edgebus/edgebus/liveness"
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
		version.Print(os.Stdout, "edgebus-health")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := bootstrap.Start(ctx, bootstrap.Config{
		Flags:       flags,
		DefaultName: "health",
	})
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := svc.Config.Health
	collector := hwinfo.NewCollector(cfg.DiskPaths...)
	health := newHealthService(healthServiceConfig{
		Name:     svc.Name,
		Bus:      svc.Client,
		Health:   cfg,
		Hardware: collector.Collect,
		Clock:    svc.Clock,
		Logger:   svc.Logger,
		Metrics:  liveness.NewMetrics(svc.Metrics),
	})

	svc.Logger.Info("health service running",
		"timeout", cfg.Timeout,
		"monitored_policies", len(cfg.Services),
		"auto_publish", cfg.AutoPublish.Enabled,
	)
	return svc.Loop(ctx, bootstrap.Handlers{Handle: health.handle, Idle: health.idle})
}
