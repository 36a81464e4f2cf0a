// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgebus/edgebus/broker"
	"github.com/edgebus/edgebus/driver"
	"github.com/edgebus/edgebus/lib/busclient"
	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/transport"
)

// echoExchanger answers every frame with 0x06 followed by the frame.
type echoExchanger struct {
	mu       sync.Mutex
	timeouts []time.Duration
	err      error
}

func (e *echoExchanger) Exchange(_ context.Context, request []byte, timeout time.Duration) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeouts = append(e.timeouts, timeout)
	if e.err != nil {
		return nil, e.err
	}
	return append([]byte{0x06}, request...), nil
}

// stuckWorker accepts nothing.
type stuckWorker struct{}

func (stuckWorker) Submit(driver.Job) error        { return driver.ErrQueueFull }
func (stuckWorker) Results() <-chan driver.Result { return nil }

type fixture struct {
	t       *testing.T
	client  *busclient.Client
	caller  *busclient.Client
	service *driverService
}

func startBroker(t *testing.T) *transport.Hub {
	t.Helper()
	hub := transport.NewHub(64)
	relay := broker.New(broker.Config{Router: hub.Router(), PollTimeout: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func connect(t *testing.T, hub *transport.Hub, name string) *busclient.Client {
	t.Helper()
	client := busclient.New(busclient.Config{Dealer: hub.Dial(transport.Identity(name + "-conn")), Name: name})
	if err := client.Register(context.Background()); err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
	return client
}

func newFixture(t *testing.T, worker submitter) *fixture {
	t.Helper()
	hub := startBroker(t)
	client := connect(t, hub, "driver")
	fake := clock.Fake(time.Unix(1_775_000_000, 0))
	return &fixture{
		t:       t,
		client:  client,
		caller:  connect(t, hub, "plc"),
		service: newDriverService("driver", client, worker, fake, nil),
	}
}

func startWorker(t *testing.T, exchanger driver.Exchanger) *driver.Worker {
	t.Helper()
	worker := driver.NewWorker(driver.WorkerConfig{Exchanger: exchanger, QueueSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { worker.Run(ctx) })
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return worker
}

// request sends a request from the caller and runs the driver loop
// until the correlated response arrives.
func (f *fixture) request(action string, payload map[string]any) *envelope.Envelope {
	f.t.Helper()
	request := envelope.New(envelope.KindRequest, "plc", "driver", action, payload)
	if err := f.caller.Send(request); err != nil {
		f.t.Fatalf("Send: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		message, err := f.client.Poll(10 * time.Millisecond)
		if err != nil {
			f.t.Fatalf("driver Poll: %v", err)
		}
		if message != nil {
			f.service.handle(message)
		}
		f.service.idle()

		response, err := f.caller.Poll(10 * time.Millisecond)
		if err != nil {
			f.t.Fatalf("caller Poll: %v", err)
		}
		if response != nil && response.CorrelationID == request.ID {
			return response
		}
	}
	f.t.Fatalf("no response to %s", action)
	return nil
}

func TestExchangeRoundTrip(t *testing.T) {
	exchanger := &echoExchanger{}
	f := newFixture(t, startWorker(t, exchanger))

	for _, action := range []string{actionExchange, actionSendRaw} {
		response := f.request(action, map[string]any{"hex": "01 03 00 00", "timeout_ms": 250})
		if response.Kind != envelope.KindResponse || response.Action != action {
			t.Fatalf("%s response = %+v", action, response)
		}
		if status := response.PayloadString("status"); status != "ok" {
			t.Fatalf("%s status = %q, payload %v", action, status, response.Payload)
		}
		if got := response.PayloadString("hex"); got != "06 01 03 00 00" {
			t.Errorf("%s hex = %q", action, got)
		}
		if rxLen, _ := response.PayloadInt64("rx_len"); rxLen != 5 {
			t.Errorf("%s rx_len = %d, want 5", action, rxLen)
		}
	}
	if exchanger.timeouts[0] != 250*time.Millisecond {
		t.Errorf("exchange timeout = %s, want 250ms", exchanger.timeouts[0])
	}
}

func TestExchangeErrors(t *testing.T) {
	exchanger := &echoExchanger{err: errors.New("connection refused")}
	f := newFixture(t, startWorker(t, exchanger))

	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"missing hex", map[string]any{}, driver.ErrEmptyFrame.Error()},
		{"bad hex", map[string]any{"hex": "zz"}, ""},
		{"device error", map[string]any{"hex": "01"}, "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := f.request(actionExchange, tt.payload)
			if response.PayloadString("status") != "error" {
				t.Fatalf("payload = %v, want an error", response.Payload)
			}
			if tt.want != "" && response.PayloadString("error") != tt.want {
				t.Fatalf("error = %q, want %q", response.PayloadString("error"), tt.want)
			}
		})
	}
}

func TestExchangeRejectedWhenQueueFull(t *testing.T) {
	f := newFixture(t, stuckWorker{})
	response := f.request(actionExchange, map[string]any{"hex": "01"})
	if got := response.PayloadString("error"); got != driver.ErrQueueFull.Error() {
		t.Fatalf("error = %q, want %q", got, driver.ErrQueueFull)
	}
}

func TestPingAndUnknownAction(t *testing.T) {
	f := newFixture(t, stuckWorker{})

	pong := f.request(actionPing, nil)
	if pong.PayloadString("status") != "ok" || pong.PayloadString("service") != "driver" {
		t.Fatalf("ping payload = %v", pong.Payload)
	}
	if ts, _ := pong.PayloadInt64("ts"); ts != 1_775_000_000 {
		t.Errorf("ts = %d", ts)
	}

	response := f.request("reboot", nil)
	if response.PayloadString("error") != "unknown action: reboot" {
		t.Fatalf("payload = %v", response.Payload)
	}
}
