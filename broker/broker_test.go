// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgebus/edgebus/lib/envelope"
	"github.com/edgebus/edgebus/transport"
)

func encode(t *testing.T, message *envelope.Envelope) []byte {
	t.Helper()
	data, err := envelope.Encode(message)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func receive(t *testing.T, dealer transport.Dealer) *envelope.Envelope {
	t.Helper()
	data, err := dealer.Recv(0)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	message, err := envelope.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return message
}

func expectNothing(t *testing.T, dealer transport.Dealer) {
	t.Helper()
	if data, err := dealer.Recv(0); !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("unexpected frame %q (err %v)", data, err)
	}
}

func register(t *testing.T, broker *Broker, dealer *transport.MemoryDealer, name string) *envelope.Envelope {
	t.Helper()
	request := envelope.NewRegister(name)
	if err := broker.HandleFrame(dealer.Identity(), encode(t, request)); err != nil {
		t.Fatalf("HandleFrame(register %s): %v", name, err)
	}
	return request
}

func TestRegisterIsAcknowledged(t *testing.T) {
	hub := transport.NewHub(8)
	broker := New(Config{Router: hub.Router()})
	dealer := hub.Dial("conn-a")

	request := register(t, broker, dealer, "svc-a")

	ack := receive(t, dealer)
	if ack.Kind != envelope.KindResponse || ack.Action != envelope.ActionRegister {
		t.Fatalf("ack = %+v, want register response", ack)
	}
	if ack.CorrelationID != request.ID {
		t.Errorf("CorrelationID = %q, want %q", ack.CorrelationID, request.ID)
	}
	if ack.PayloadString("status") != "ok" {
		t.Errorf("status = %q, want ok", ack.PayloadString("status"))
	}
	if !ack.IsRegisterAck(request.ID) {
		t.Error("IsRegisterAck = false")
	}
}

func TestRegisterFallsBackToSource(t *testing.T) {
	hub := transport.NewHub(8)
	broker := New(Config{Router: hub.Router()})
	dealer := hub.Dial("conn-a")

	request := envelope.New(envelope.KindRegister, "svc-src", envelope.BrokerName, envelope.ActionRegister, nil)
	if err := broker.HandleFrame(dealer.Identity(), encode(t, request)); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	if identity, ok := broker.Registry().Lookup("svc-src"); !ok || identity != "conn-a" {
		t.Fatalf("Lookup = (%q, %v), want (conn-a, true)", identity, ok)
	}
}

func TestForwardsOriginalBytes(t *testing.T) {
	hub := transport.NewHub(8)
	broker := New(Config{Router: hub.Router()})
	sender := hub.Dial("conn-a")
	target := hub.Dial("conn-b")
	register(t, broker, sender, "svc-a")
	register(t, broker, target, "svc-b")
	receive(t, sender)
	receive(t, target)

	data := encode(t, envelope.New(envelope.KindRequest, "svc-a", "svc-b", "ping", map[string]any{"n": 1}))
	if err := broker.HandleFrame(sender.Identity(), data); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	forwarded, err := target.Recv(0)
	if err != nil {
		t.Fatalf("target Recv: %v", err)
	}
	if string(forwarded) != string(data) {
		t.Fatalf("forwarded bytes differ:\n got %s\nwant %s", forwarded, data)
	}
	expectNothing(t, sender)
}

func TestForwardsLooselyStampedEnvelopes(t *testing.T) {
	hub := transport.NewHub(8)
	broker := New(Config{Router: hub.Router()})
	sender := hub.Dial("conn-a")
	target := hub.Dial("conn-b")

	raw := []byte(`{"id":"r1","kind":"register","source":"svc-a","destination":"broker","payload":{"service_name":"svc-a"},"created_at":""}`)
	if err := broker.HandleFrame(sender.Identity(), raw); err != nil {
		t.Fatalf("HandleFrame(register): %v", err)
	}
	if ack := receive(t, sender); !ack.IsRegisterAck("r1") {
		t.Fatalf("ack = %+v", ack)
	}
	register(t, broker, target, "svc-b")
	receive(t, target)

	for _, data := range []string{
		`{"id":"m1","kind":"event","source":"svc-a","destination":"svc-b","action":"tick","payload":{},"created_at":1700000000}`,
		`{"id":"m2","kind":"event","source":"svc-a","destination":"svc-b","action":"tick","payload":{},"created_at":null}`,
	} {
		if err := broker.HandleFrame(sender.Identity(), []byte(data)); err != nil {
			t.Fatalf("HandleFrame(%s): %v", data, err)
		}
		forwarded, err := target.Recv(0)
		if err != nil {
			t.Fatalf("target Recv: %v", err)
		}
		if string(forwarded) != data {
			t.Fatalf("forwarded %s, want %s", forwarded, data)
		}
	}
}

func TestReRegistrationSupersedesRoute(t *testing.T) {
	hub := transport.NewHub(8)
	broker := New(Config{Router: hub.Router()})
	client := hub.Dial("client")
	oldConn := hub.Dial("conn-old")
	newConn := hub.Dial("conn-new")
	register(t, broker, client, "client")
	register(t, broker, oldConn, "svc")
	register(t, broker, newConn, "svc")
	receive(t, client)
	receive(t, oldConn)
	receive(t, newConn)

	data := encode(t, envelope.New(envelope.KindEvent, "client", "svc", "tick", nil))
	if err := broker.HandleFrame(client.Identity(), data); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	receive(t, newConn)
	expectNothing(t, oldConn)
}

func TestDropsWithoutReply(t *testing.T) {
	tests := []struct {
		name    string
		data    func(t *testing.T) []byte
		wantErr error
	}{
		{
			name:    "malformed",
			data:    func(*testing.T) []byte { return []byte("{not json") },
			wantErr: envelope.ErrMalformedEnvelope,
		},
		{
			name: "unknown destination",
			data: func(t *testing.T) []byte {
				return encode(t, envelope.New(envelope.KindRequest, "svc-a", "ghost", "ping", nil))
			},
			wantErr: ErrUnknownDestination,
		},
		{
			name: "empty destination",
			data: func(t *testing.T) []byte {
				return encode(t, envelope.New(envelope.KindEvent, "svc-a", "", "ping", nil))
			},
			wantErr: ErrNoDestination,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hub := transport.NewHub(8)
			broker := New(Config{Router: hub.Router()})
			sender := hub.Dial("conn-a")

			err := broker.HandleFrame(sender.Identity(), test.data(t))
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("HandleFrame error = %v, want %v", err, test.wantErr)
			}
			expectNothing(t, sender)
		})
	}
}

func TestFullPeerQueueDoesNotStallOthers(t *testing.T) {
	hub := transport.NewHub(1)
	broker := New(Config{Router: hub.Router()})
	client := hub.Dial("client")
	slow := hub.Dial("slow")
	fast := hub.Dial("fast")
	register(t, broker, client, "client")
	register(t, broker, slow, "slow")
	register(t, broker, fast, "fast")
	receive(t, client)
	receive(t, fast)
	// slow never drains its register ACK, so its queue is full.

	err := broker.HandleFrame(client.Identity(), encode(t, envelope.New(envelope.KindEvent, "client", "slow", "x", nil)))
	if !errors.Is(err, transport.ErrPeerUnavailable) {
		t.Fatalf("send to full peer error = %v, want ErrPeerUnavailable", err)
	}
	if err := broker.HandleFrame(client.Identity(), encode(t, envelope.New(envelope.KindEvent, "client", "fast", "x", nil))); err != nil {
		t.Fatalf("send to fast peer: %v", err)
	}
	receive(t, fast)
}

func TestRunAppliesRegistrationBeforeRouting(t *testing.T) {
	hub := transport.NewHub(16)
	broker := New(Config{Router: hub.Router(), PollTimeout: time.Millisecond})
	producer := hub.Dial("producer")
	consumer := hub.Dial("consumer")

	// Both frames are queued before the loop starts; the consumer's
	// registration must be applied before the producer's frame is
	// routed because they are handled in arrival order.
	if err := consumer.Send(encode(t, envelope.NewRegister("consumer"))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := producer.Send(encode(t, envelope.New(envelope.KindEvent, "producer", "consumer", "hello", nil))); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- broker.Run(ctx) }()

	ack, err := consumer.Recv(5 * time.Second)
	if err != nil {
		t.Fatalf("waiting for ack: %v", err)
	}
	if message, _ := envelope.Decode(ack); message == nil || message.Action != envelope.ActionRegister {
		t.Fatalf("first frame = %s, want register ack", ack)
	}
	forwarded, err := consumer.Recv(5 * time.Second)
	if err != nil {
		t.Fatalf("waiting for forwarded frame: %v", err)
	}
	if message, _ := envelope.Decode(forwarded); message == nil || message.Action != "hello" {
		t.Fatalf("second frame = %s, want hello", forwarded)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
