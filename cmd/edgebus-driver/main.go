// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// edgebus-driver bridges bus requests to a field device behind a
// serial-to-TCP gateway. Each exchange request carries a hex frame;
// the driver queues it, writes it to the device and answers with the
// device's reply.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/edgebus/edgebus/driver"
	"github.com/edgebus/edgebus/lib/bootstrap"
	"github.com/edgebus/edgebus/lib/process"
	"github.com/edgebus/edgebus/lib/service"
	"github.com/edgebus/edgebus/lib/version"
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
		version.Print(os.Stdout, "edgebus-driver")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := bootstrap.Start(ctx, bootstrap.Config{
		Flags:       flags,
		DefaultName: "driver",
	})
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := svc.Config.Driver
	var exchanger driver.Exchanger
	if cfg.Device != "" {
		tcp := driver.NewTCPExchanger(driver.TCPExchangerConfig{
			Address:     cfg.Device,
			DialTimeout: cfg.DialTimeout,
			SilenceGap:  cfg.SilenceGap,
			Logger:      svc.Logger,
		})
		defer tcp.Close()
		exchanger = tcp
	} else {
		svc.Logger.Warn("no device configured, exchanges will fail")
	}

	worker := driver.NewWorker(driver.WorkerConfig{
		Exchanger:       exchanger,
		QueueSize:       cfg.QueueSize,
		ExchangeTimeout: cfg.ExchangeTimeout,
		Clock:           svc.Clock,
		Logger:          svc.Logger,
		Metrics:         driver.NewMetrics(svc.Metrics),
	})
	workerContext, stopWorker := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() { worker.Run(workerContext) })
	defer func() {
		stopWorker()
		wg.Wait()
	}()

	handler := newDriverService(svc.Name, svc.Client, worker, svc.Clock, svc.Logger)
	svc.Logger.Info("driver running", "device", cfg.Device, "queue_size", cfg.QueueSize)
	return svc.Loop(ctx, bootstrap.Handlers{Handle: handler.handle, Idle: handler.idle})
}
