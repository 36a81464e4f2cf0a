// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a rejection body is quoted in errors.
const maxErrorBody = 512

// HTTPSink posts each document as JSON.
type HTTPSink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPSink creates a sink posting to url with the given extra
// headers. A nil client uses http.DefaultClient; deadlines come from
// the context passed to Send.
func NewHTTPSink(url string, headers map[string]string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{url: url, headers: headers, client: client}
}

// Send posts document. Any status outside 2xx is a failure.
func (s *HTTPSink) Send(ctx context.Context, document Document) error {
	return postJSON(ctx, s.client, s.url, s.headers, document)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrSinkDelivery, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkDelivery, err)
	}
	request.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		request.Header.Set(name, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkDelivery, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return fmt.Errorf("%w: POST %s: status %d: %s", ErrSinkDelivery, url, response.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

// ThingsBoardSink posts flattened telemetry to a ThingsBoard device
// through its HTTP device API.
type ThingsBoardSink struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewThingsBoardSink creates a sink for the device identified by
// token. host may carry its own scheme; otherwise protocol is used.
func NewThingsBoardSink(protocol, host, token string, client *http.Client, logger *slog.Logger) *ThingsBoardSink {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base := strings.TrimRight(host, "/")
	if !strings.Contains(base, "://") {
		if protocol == "" {
			protocol = "http"
		}
		base = protocol + "://" + base
	}
	return &ThingsBoardSink{
		url:    base + "/api/v1/" + token + "/telemetry",
		client: client,
		logger: logger,
	}
}

// Send posts the flattened telemetry of document. A document without
// telemetry is skipped and counts as delivered.
func (s *ThingsBoardSink) Send(ctx context.Context, document Document) error {
	telemetry := FlattenTelemetry(document)
	if len(telemetry) == 0 {
		s.logger.Debug("no telemetry to send, skipping")
		return nil
	}
	return postJSON(ctx, s.client, s.url, nil, telemetry)
}

// FlattenTelemetry turns services.<source>.<block>.<key> into a flat
// map keyed <block>_<key>. Values that are not objects at the source
// or block level are ignored. A key present under several sources
// keeps an arbitrary one of the values.
func FlattenTelemetry(document Document) map[string]any {
	telemetry := make(map[string]any)
	for _, blocks := range Services(document) {
		blockMap, ok := blocks.(map[string]any)
		if !ok {
			continue
		}
		for blockName, blockData := range blockMap {
			values, ok := blockData.(map[string]any)
			if !ok {
				continue
			}
			for key, value := range values {
				telemetry[blockName+"_"+key] = value
			}
		}
	}
	return telemetry
}
