// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgebus/edgebus/lib/config"
)

type capturedRequest struct {
	path    string
	headers http.Header
	body    map[string]any
}

func captureServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	requests := make(chan capturedRequest, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(data, &body)
		requests <- capturedRequest{path: r.URL.Path, headers: r.Header.Clone(), body: body}
		w.WriteHeader(status)
		io.WriteString(w, "rejected by test")
	}))
	t.Cleanup(server.Close)
	return server, requests
}

func TestHTTPSinkPostsDocument(t *testing.T) {
	server, requests := captureServer(t, http.StatusAccepted)
	sink := NewHTTPSink(server.URL+"/ingest", map[string]string{"Authorization": "Bearer t0k"}, server.Client())

	if err := sink.Send(context.Background(), Document{"device_id": "dev-1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	request := <-requests
	if request.path != "/ingest" {
		t.Errorf("path = %q", request.path)
	}
	if request.headers.Get("Authorization") != "Bearer t0k" || request.headers.Get("Content-Type") != "application/json" {
		t.Errorf("headers = %v", request.headers)
	}
	if request.body["device_id"] != "dev-1" {
		t.Errorf("body = %v", request.body)
	}
}

func TestHTTPSinkRejectsNon2xx(t *testing.T) {
	server, _ := captureServer(t, http.StatusInternalServerError)
	sink := NewHTTPSink(server.URL, nil, server.Client())

	err := sink.Send(context.Background(), Document{})
	if !errors.Is(err, ErrSinkDelivery) {
		t.Fatalf("Send error = %v, want ErrSinkDelivery", err)
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "rejected by test") {
		t.Errorf("error %q lacks status or body", err)
	}
}

func TestHTTPSinkUnreachable(t *testing.T) {
	server, _ := captureServer(t, http.StatusOK)
	url := server.URL
	server.Close()

	if err := NewHTTPSink(url, nil, nil).Send(context.Background(), Document{}); !errors.Is(err, ErrSinkDelivery) {
		t.Fatalf("Send error = %v, want ErrSinkDelivery", err)
	}
}

func TestFlattenTelemetry(t *testing.T) {
	document := Document{
		"services": map[string]any{
			"io": map[string]any{
				"inputs":  map[string]any{"di1": true, "di2": false},
				"outputs": map[string]any{"do1": 1},
				"note":    "not a block",
			},
			"broken": "not an object",
		},
	}
	telemetry := FlattenTelemetry(document)
	want := map[string]any{"inputs_di1": true, "inputs_di2": false, "outputs_do1": 1}
	if len(telemetry) != len(want) {
		t.Fatalf("telemetry = %v, want %v", telemetry, want)
	}
	for key, value := range want {
		if telemetry[key] != value {
			t.Errorf("telemetry[%s] = %v, want %v", key, telemetry[key], value)
		}
	}
}

func TestThingsBoardSink(t *testing.T) {
	server, requests := captureServer(t, http.StatusOK)
	sink := NewThingsBoardSink("https", server.URL+"/", "DEVICE_TOKEN", server.Client(), nil)

	document := Document{"services": map[string]any{"io": map[string]any{"inputs": map[string]any{"di1": true}}}}
	if err := sink.Send(context.Background(), document); err != nil {
		t.Fatalf("Send: %v", err)
	}
	request := <-requests
	if request.path != "/api/v1/DEVICE_TOKEN/telemetry" {
		t.Errorf("path = %q", request.path)
	}
	if request.body["inputs_di1"] != true {
		t.Errorf("body = %v", request.body)
	}

	// No telemetry: skipped without a request and reported as delivered.
	if err := sink.Send(context.Background(), Document{"services": map[string]any{}}); err != nil {
		t.Fatalf("Send(empty): %v", err)
	}
	select {
	case request := <-requests:
		t.Fatalf("empty telemetry was posted: %+v", request)
	default:
	}
}

func TestThingsBoardURL(t *testing.T) {
	tests := []struct {
		protocol, host, want string
	}{
		{"http", "tb.local", "http://tb.local/api/v1/T/telemetry"},
		{"https", "tb.local:8443/", "https://tb.local:8443/api/v1/T/telemetry"},
		{"http", "https://cloud.tb", "https://cloud.tb/api/v1/T/telemetry"},
		{"", "tb.local", "http://tb.local/api/v1/T/telemetry"},
	}
	for _, test := range tests {
		sink := NewThingsBoardSink(test.protocol, test.host, "T", nil, nil)
		if sink.url != test.want {
			t.Errorf("NewThingsBoardSink(%q, %q).url = %q, want %q", test.protocol, test.host, sink.url, test.want)
		}
	}
}

func TestNewSinkSelectsByType(t *testing.T) {
	sink, err := NewSink(config.TargetConfig{Name: "cloud", Type: config.TargetHTTP, URL: "http://x"}, nil)
	if err != nil {
		t.Fatalf("NewSink(http): %v", err)
	}
	if _, ok := sink.(*HTTPSink); !ok {
		t.Errorf("NewSink(http) = %T", sink)
	}

	sink, err = NewSink(config.TargetConfig{Name: "tb", Type: config.TargetThingsBoard, Host: "tb", Token: "t"}, nil)
	if err != nil {
		t.Fatalf("NewSink(thingsboard): %v", err)
	}
	if _, ok := sink.(*ThingsBoardSink); !ok {
		t.Errorf("NewSink(thingsboard) = %T", sink)
	}

	if _, err := NewSink(config.TargetConfig{Name: "x", Type: "smoke-signal"}, nil); err == nil {
		t.Error("NewSink(unknown type) succeeded")
	}
}

func TestMQTTSinkFailsWhileDisconnected(t *testing.T) {
	// Nothing listens on port 1; the client keeps retrying in the
	// background and Send reports the sink unavailable.
	sink := NewMQTTSink(MQTTConfig{Host: "127.0.0.1", Port: 1, Topic: "t", QoS: 1, Name: "test"}, nil)
	defer sink.Close()

	if err := sink.Send(context.Background(), Document{}); !errors.Is(err, ErrSinkDelivery) {
		t.Fatalf("Send error = %v, want ErrSinkDelivery", err)
	}
}

func TestNATSSinkFailsWhileDisconnected(t *testing.T) {
	sink, err := NewNATSSink("nats://127.0.0.1:1", "edge.telemetry", "test", nil)
	if err != nil {
		t.Fatalf("NewNATSSink: %v", err)
	}
	defer sink.Close()

	if err := sink.Send(context.Background(), Document{}); !errors.Is(err, ErrSinkDelivery) {
		t.Fatalf("Send error = %v, want ErrSinkDelivery", err)
	}
}
