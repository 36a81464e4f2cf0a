// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"context"
	"fmt"
	"time"

	"github.com/edgebus/edgebus/lib/envelope"
)

// HealthSource fetches the liveness snapshot attached to documents.
// Implementations must honor ctx's deadline.
type HealthSource interface {
	Snapshot(ctx context.Context) (map[string]any, error)
}

// Caller sends a request and waits for the correlated response.
// *busclient.Client implements it.
type Caller interface {
	Call(ctx context.Context, destination, action string, payload map[string]any, timeout time.Duration) (*envelope.Envelope, error)
}

// BusHealthSource requests the snapshot from the health service over
// the bus.
type BusHealthSource struct {
	Caller  Caller
	Service string
	Action  string
}

// Snapshot implements HealthSource. A response payload wrapped as
// {"data": snapshot} is unwrapped.
func (h BusHealthSource) Snapshot(ctx context.Context) (map[string]any, error) {
	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	response, err := h.Caller.Call(ctx, h.Service, h.Action, nil, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetching health snapshot: %w", err)
	}
	if data, ok := response.PayloadMap("data"); ok {
		return data, nil
	}
	return response.Payload, nil
}
