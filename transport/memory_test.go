// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"testing"
	"time"
)

func TestHubRoundTrip(t *testing.T) {
	hub := NewHub(4)
	router := hub.Router()
	dealer := hub.Dial("svc-1")

	if err := dealer.Send([]byte("hello")); err != nil {
		t.Fatalf("dealer Send: %v", err)
	}
	identity, data, err := router.Recv(time.Second)
	if err != nil {
		t.Fatalf("router Recv: %v", err)
	}
	if identity != "svc-1" || string(data) != "hello" {
		t.Fatalf("got (%q, %q), want (svc-1, hello)", identity, data)
	}

	if err := router.Send(identity, []byte("world")); err != nil {
		t.Fatalf("router Send: %v", err)
	}
	reply, err := dealer.Recv(time.Second)
	if err != nil {
		t.Fatalf("dealer Recv: %v", err)
	}
	if string(reply) != "world" {
		t.Fatalf("reply = %q, want world", reply)
	}
}

func TestHubRecvTimesOut(t *testing.T) {
	hub := NewHub(1)
	if _, _, err := hub.Router().Recv(0); !errors.Is(err, ErrTimeout) {
		t.Fatalf("router Recv error = %v, want ErrTimeout", err)
	}
	if _, err := hub.Dial("a").Recv(time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("dealer Recv error = %v, want ErrTimeout", err)
	}
}

func TestHubSendNeverBlocks(t *testing.T) {
	hub := NewHub(1)
	router := hub.Router()
	slow := hub.Dial("slow")

	if err := router.Send("slow", []byte("1")); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if err := router.Send("slow", []byte("2")); !errors.Is(err, ErrPeerUnavailable) {
		t.Fatalf("Send to full queue error = %v, want ErrPeerUnavailable", err)
	}
	if err := router.Send("nobody", []byte("x")); !errors.Is(err, ErrPeerUnavailable) {
		t.Fatalf("Send to unknown identity error = %v, want ErrPeerUnavailable", err)
	}

	data, err := slow.Recv(0)
	if err != nil || string(data) != "1" {
		t.Fatalf("Recv = %q, %v, want first frame", data, err)
	}
}

func TestHubClosedDealerIsUnavailable(t *testing.T) {
	hub := NewHub(4)
	dealer := hub.Dial("gone")
	dealer.Close()

	if err := hub.Router().Send("gone", []byte("x")); !errors.Is(err, ErrPeerUnavailable) {
		t.Fatalf("Send error = %v, want ErrPeerUnavailable", err)
	}
	if err := dealer.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed dealer Send error = %v, want ErrClosed", err)
	}
}

func TestHubSendCopiesData(t *testing.T) {
	hub := NewHub(4)
	dealer := hub.Dial("a")
	buffer := []byte("abc")
	if err := dealer.Send(buffer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buffer[0] = 'X'

	_, data, err := hub.Router().Recv(0)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(data) != "abc" {
		t.Fatalf("data = %q, want abc", data)
	}
}
