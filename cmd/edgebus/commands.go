// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/edgebus/edgebus/cmd/edgebus/cli"
	"github.com/edgebus/edgebus/lib/busclient"
	"github.com/edgebus/edgebus/lib/config"
	"github.com/edgebus/edgebus/lib/healthclient"
	"github.com/edgebus/edgebus/transport"
)

// dialFunc connects a dealer for the CLI's bus name.
type dialFunc func(endpoint, name string) (transport.Dealer, error)

func dialZMQ(endpoint, name string) (transport.Dealer, error) {
	return transport.DialZMQ(endpoint, name, transport.SocketOptions{})
}

// connection holds the flags every bus command shares.
type connection struct {
	configPath string
	endpoint   string
	name       string
	timeout    time.Duration
}

func (c *connection) bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "config file supplying bus.endpoint")
	flagSet.StringVar(&c.endpoint, "endpoint", "", "broker endpoint (default: --config's bus.endpoint, else "+config.Default().Bus.Endpoint+")")
	flagSet.StringVar(&c.name, "name", "", "bus name to register as (default: edgebus-cli-<random>)")
	flagSet.DurationVar(&c.timeout, "timeout", 3*time.Second, "registration and reply timeout")
}

func (c *connection) resolveEndpoint() (string, error) {
	if c.endpoint != "" {
		return c.endpoint, nil
	}
	if c.configPath != "" {
		cfg, err := config.LoadFile(c.configPath)
		if err != nil {
			return "", err
		}
		return cfg.Bus.Endpoint, nil
	}
	return config.Default().Bus.Endpoint, nil
}

// open connects and registers. The random default name keeps the CLI
// from taking over the route of a running service.
func (c *connection) open(ctx context.Context, dial dialFunc) (*busclient.Client, string, error) {
	endpoint, err := c.resolveEndpoint()
	if err != nil {
		return nil, "", err
	}
	name := c.name
	if name == "" {
		name = "edgebus-cli-" + uuid.NewString()[:8]
	}
	dealer, err := dial(endpoint, name)
	if err != nil {
		return nil, "", fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	client := busclient.New(busclient.Config{
		Dealer:     dealer,
		Name:       name,
		AckTimeout: c.timeout,
		Attempts:   1,
	})
	if err := client.Register(ctx); err != nil {
		client.Close()
		return nil, "", fmt.Errorf("broker at %s: %w", endpoint, err)
	}
	return client, endpoint, nil
}

type app struct {
	out  io.Writer
	dial dialFunc
}

func root(out io.Writer, dial dialFunc) *cli.Command {
	a := &app{out: out, dial: dial}
	return &cli.Command{
		Name:        "edgebus",
		Description: "Operator tools for an Edgebus node.",
		Subcommands: []*cli.Command{
			a.registerCommand(),
			a.heartbeatCommand(),
			a.pushCommand(),
			a.snapshotCommand(),
			a.resetCommand(),
			a.exchangeCommand(),
		},
	}
}

// call registers, sends one request and prints the response payload.
// A payload reporting failure ends with exit code 1.
func (a *app) call(conn *connection, destination, action string, payload map[string]any) error {
	ctx := context.Background()
	client, _, err := conn.open(ctx, a.dial)
	if err != nil {
		return err
	}
	defer client.Close()

	response, err := client.Call(ctx, destination, action, payload, conn.timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return fmt.Errorf("no reply from %s within %s (is it registered?)", destination, conn.timeout)
		}
		return err
	}
	if err := cli.WriteJSON(a.out, response.Payload); err != nil {
		return err
	}
	if failed(response.Payload) {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// failed reports {ok:false} and {status:"error"} payloads.
func failed(payload map[string]any) bool {
	if ok, present := payload["ok"].(bool); present && !ok {
		return true
	}
	return payload["status"] == "error"
}

func (a *app) registerCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "register",
		Summary: "Register with the broker and report the ACK",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("register", pflag.ContinueOnError)
			conn.bind(flagSet)
			return flagSet
		},
		Examples: []cli.Example{{
			Description: "Check that the broker answers",
			Command:     "edgebus register --endpoint tcp://127.0.0.1:5555",
		}},
		Run: func([]string) error {
			client, endpoint, err := conn.open(context.Background(), a.dial)
			if err != nil {
				return err
			}
			defer client.Close()
			fmt.Fprintf(a.out, "registered %s with %s\n", client.Name(), endpoint)
			return nil
		},
	}
}

func (a *app) heartbeatCommand() *cli.Command {
	var (
		conn     connection
		health   string
		service  string
		instance string
		status   string
	)
	return &cli.Command{
		Name:    "heartbeat",
		Summary: "Send one heartbeat on behalf of a service",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("heartbeat", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&health, "health", "health", "bus name of the health service")
			flagSet.StringVar(&service, "service", "", "service the heartbeat is for (required)")
			flagSet.StringVar(&instance, "instance", "", "instance id (default: the service name)")
			flagSet.StringVar(&status, "status", string(healthclient.StatusRunning), "reported status")
			return flagSet
		},
		Run: func([]string) error {
			if service == "" {
				return errors.New("--service is required")
			}
			if instance == "" {
				instance = service
			}
			return a.call(&conn, health, healthclient.ActionHeartbeat, map[string]any{
				"service":     service,
				"instance_id": instance,
				"status":      status,
				"ts":          time.Now().Unix(),
			})
		},
	}
}

func (a *app) pushCommand() *cli.Command {
	var (
		conn          connection
		uplinkService string
		source        string
		data          string
		uplink        string
	)
	return &cli.Command{
		Name:    "push",
		Summary: "Send push_data to the uplink service",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("push", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&uplinkService, "uplink-service", "uplink", "bus name of the uplink service")
			flagSet.StringVar(&source, "source", "", "data source name (required)")
			flagSet.StringVar(&data, "data", "", "JSON object to push; comments and trailing commas are allowed (required)")
			flagSet.StringVar(&uplink, "uplink", "", "deliver to this uplink only")
			return flagSet
		},
		Examples: []cli.Example{{
			Description: "Push a temperature reading to every uplink",
			Command:     `edgebus push --source s1 --data '{"temp": 21.5}'`,
		}},
		Run: func([]string) error {
			if source == "" || data == "" {
				return errors.New("--source and --data are required")
			}
			document, err := parseObject(data)
			if err != nil {
				return fmt.Errorf("--data: %w", err)
			}
			payload := map[string]any{"source": source, "data": document}
			if uplink != "" {
				payload["uplink"] = uplink
			}
			return a.call(&conn, uplinkService, "push_data", payload)
		},
	}
}

// parseObject decodes JSONC text that must hold a JSON object.
func parseObject(text string) (map[string]any, error) {
	var document map[string]any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(text)), &document); err != nil {
		return nil, err
	}
	if document == nil {
		return nil, errors.New("must be a JSON object")
	}
	return document, nil
}

func (a *app) snapshotCommand() *cli.Command {
	var (
		conn     connection
		health   string
		service  string
		instance string
		hardware bool
	)
	return &cli.Command{
		Name:    "snapshot",
		Summary: "Print the liveness snapshot, one record, or hardware state",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&health, "health", "health", "bus name of the health service")
			flagSet.StringVar(&service, "service", "", "print only this service's record")
			flagSet.StringVar(&instance, "instance", "", "instance id of --service")
			flagSet.BoolVar(&hardware, "hardware", false, "include the hardware snapshot")
			return flagSet
		},
		Run: func([]string) error {
			switch {
			case service != "":
				payload := map[string]any{"service": service}
				if instance != "" {
					payload["instance_id"] = instance
				}
				return a.call(&conn, health, "service.get", payload)
			case hardware:
				return a.call(&conn, health, "hw.get", nil)
			}
			return a.call(&conn, health, "snapshot.get", nil)
		},
	}
}

func (a *app) resetCommand() *cli.Command {
	var (
		conn     connection
		health   string
		service  string
		instance string
	)
	return &cli.Command{
		Name:    "reset",
		Summary: "Return a FAILED instance to monitoring",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reset", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&health, "health", "health", "bus name of the health service")
			flagSet.StringVar(&service, "service", "", "failed service (required)")
			flagSet.StringVar(&instance, "instance", "", "instance id (default: the service name)")
			return flagSet
		},
		Run: func([]string) error {
			if service == "" {
				return errors.New("--service is required")
			}
			payload := map[string]any{"service": service}
			if instance != "" {
				payload["instance_id"] = instance
			}
			return a.call(&conn, health, "service.reset", payload)
		},
	}
}

func (a *app) exchangeCommand() *cli.Command {
	var (
		conn      connection
		driver    string
		frame     string
		timeoutMS int
	)
	return &cli.Command{
		Name:    "exchange",
		Summary: "Send a raw hex frame through the device driver",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("exchange", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&driver, "driver", "driver", "bus name of the driver service")
			flagSet.StringVar(&frame, "hex", "", "request frame, e.g. \"01 03 00 00 00 02\" (required)")
			flagSet.IntVar(&timeoutMS, "timeout-ms", 0, "device response timeout (default: the driver's)")
			return flagSet
		},
		Run: func([]string) error {
			if frame == "" {
				return errors.New("--hex is required")
			}
			payload := map[string]any{"hex": frame}
			if timeoutMS > 0 {
				payload["timeout_ms"] = timeoutMS
			}
			return a.call(&conn, driver, "exchange", payload)
		},
	}
}
