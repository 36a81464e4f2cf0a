// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgebus/edgebus/lib/busclient"
	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/config"
	"github.com/edgebus/edgebus/lib/healthclient"
	"github.com/edgebus/edgebus/lib/metrics"
	"github.com/edgebus/edgebus/lib/service"
	"github.com/edgebus/edgebus/transport"
)

// DialFunc connects a dealer for the service called name.
type DialFunc func(endpoint, name string, options transport.SocketOptions) (transport.Dealer, error)

// Config configures Start.
type Config struct {
	// Flags are the parsed common flags.
	Flags service.CommonFlags

	// DefaultName is the bus name used when the config file sets none.
	DefaultName string

	// Loaded skips reading Flags.ConfigPath and uses this
	// configuration instead.
	Loaded *config.Config

	// Dial defaults to a ZeroMQ DEALER.
	Dial DialFunc

	// Logger replaces the stderr JSON logger.
	Logger *slog.Logger

	Clock clock.Clock
}

// Service is a started service: registered with the broker and ready
// to run its loop.
type Service struct {
	Config   *config.Config
	Name     string
	Instance string

	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *prometheus.Registry

	Client *busclient.Client

	// Reporter is nil when heartbeats are disabled.
	Reporter *healthclient.Reporter
}

// LoadConfig loads the file given by --config, else the file named by
// EDGEBUS_CONFIG, else the defaults.
func LoadConfig(flags service.CommonFlags) (*config.Config, error) {
	switch {
	case flags.ConfigPath != "":
		return config.LoadFile(flags.ConfigPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	}
	cfg, err := config.Parse(nil, false)
	if err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the service logger. The --log-level flag wins over
// the config file.
func NewLogger(flags service.CommonFlags, cfg *config.Config) (*slog.Logger, error) {
	level := flags.LogLevel
	if level == "" {
		level = cfg.LogLevel
	}
	return service.NewLogger(level)
}

// MetricsAddress returns the --metrics-addr flag, or the config
// file's metrics_addr.
func MetricsAddress(flags service.CommonFlags, cfg *config.Config) string {
	if flags.MetricsAddr != "" {
		return flags.MetricsAddr
	}
	return cfg.MetricsAddress
}

// Start loads configuration, starts the metrics endpoint, connects and
// registers with the broker. Registration retries until it succeeds,
// ctx ends, or bus.register_attempts is exhausted. The cleanup
// function closes the connection.
func Start(ctx context.Context, cfg Config) (*Service, func(), error) {
	loaded := cfg.Loaded
	if loaded == nil {
		var err error
		if loaded, err = LoadConfig(cfg.Flags); err != nil {
			return nil, nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Flags, loaded); err != nil {
			return nil, nil, err
		}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	dial := cfg.Dial
	if dial == nil {
		dial = dialZMQ
	}

	name := loaded.ServiceName(cfg.DefaultName)
	if name == "" {
		return nil, nil, errors.New("service name is required: set name in the config file")
	}
	instance := loaded.InstanceID(cfg.DefaultName)
	logger = logger.With("service", name)

	registry := metrics.NewRegistry()
	metrics.Serve(ctx, MetricsAddress(cfg.Flags, loaded), registry, logger)

	dealer, err := dial(loaded.Bus.Endpoint, name, transport.SocketOptions{HighWaterMark: loaded.Bus.HighWaterMark})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to broker at %s: %w", loaded.Bus.Endpoint, err)
	}
	client := busclient.New(busclient.Config{
		Dealer:        dealer,
		Name:          name,
		AckTimeout:    loaded.Bus.AckTimeout,
		RetryDelay:    loaded.Bus.RetryDelay,
		MaxRetryDelay: loaded.Bus.MaxRetryDelay,
		Attempts:      loaded.Bus.RegisterAttempts,
		Keepalive:     loaded.Bus.Keepalive,
		Clock:         clk,
		Logger:        logger,
	})
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing bus connection", "error", err)
		}
	}

	logger.Info("registering with broker", "endpoint", loaded.Bus.Endpoint, "instance_id", instance)
	if err := client.Register(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	svc := &Service{
		Config:   loaded,
		Name:     name,
		Instance: instance,
		Logger:   logger,
		Clock:    clk,
		Metrics:  registry,
		Client:   client,
	}
	if loaded.Heartbeat.Enabled {
		svc.Reporter = healthclient.New(healthclient.Config{
			Sender:        client,
			Service:       name,
			Instance:      instance,
			HealthService: loaded.Heartbeat.Service,
			Interval:      loaded.Heartbeat.Interval,
			Clock:         clk,
			Logger:        logger,
		})
	}
	return svc, cleanup, nil
}

func dialZMQ(endpoint, name string, options transport.SocketOptions) (transport.Dealer, error) {
	return transport.DialZMQ(endpoint, name, options)
}
