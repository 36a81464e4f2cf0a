// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"maps"
	"reflect"

	"github.com/edgebus/edgebus/lib/clock"
)

// Document is the composite snapshot delivered to a sink:
//
//	{"device_id": ..., "timestamp": ..., "services": {source: payload}, "health": snapshot|null}
type Document = map[string]any

// Services returns the per-source payloads of document, or nil.
func Services(document Document) map[string]any {
	services, _ := document["services"].(map[string]any)
	return services
}

type bucket struct {
	sources map[string]map[string]any
	dirty   bool

	// health is the last snapshot marked sent. Nil until then.
	health map[string]any
}

// Aggregator merges the latest payload per (uplink, source).
type Aggregator struct {
	deviceID string
	clock    clock.Clock
	buckets  map[string]*bucket
}

// NewAggregator creates an aggregator stamping documents with
// deviceID.
func NewAggregator(deviceID string, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Aggregator{deviceID: deviceID, clock: clk, buckets: make(map[string]*bucket)}
}

func (a *Aggregator) bucket(uplink string) *bucket {
	b, ok := a.buckets[uplink]
	if !ok {
		b = &bucket{sources: make(map[string]map[string]any)}
		a.buckets[uplink] = b
	}
	return b
}

// Update replaces the payload of source for uplink and marks the
// uplink dirty. The payload is not merged with the previous one.
func (a *Aggregator) Update(uplink, source string, payload map[string]any) {
	b := a.bucket(uplink)
	b.sources[source] = payload
	b.dirty = true
}

// Build assembles the document for uplink. It returns false when the
// uplink is clean and health equals the last health marked sent (nil
// before any).
func (a *Aggregator) Build(uplink string, health map[string]any) (Document, bool) {
	b := a.bucket(uplink)
	if !b.dirty && reflect.DeepEqual(b.health, health) {
		return nil, false
	}

	services := make(map[string]any, len(b.sources))
	for source, payload := range b.sources {
		services[source] = payload
	}

	var healthValue any
	if health != nil {
		healthValue = health
	}
	return Document{
		"device_id": a.deviceID,
		"timestamp": a.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		"services":  services,
		"health":    healthValue,
	}, true
}

// Clear empties the uplink's buckets and resets its dirty flag.
func (a *Aggregator) Clear(uplink string) {
	b := a.bucket(uplink)
	clear(b.sources)
	b.dirty = false
}

// MarkHealthSent remembers health as the last snapshot delivered to
// uplink.
func (a *Aggregator) MarkHealthSent(uplink string, health map[string]any) {
	b := a.bucket(uplink)
	b.health = maps.Clone(health)
}

// HasPending reports whether uplink holds undelivered payloads.
func (a *Aggregator) HasPending(uplink string) bool {
	b, ok := a.buckets[uplink]
	return ok && len(b.sources) > 0
}

// Drop forgets everything held for uplink.
func (a *Aggregator) Drop(uplink string) {
	delete(a.buckets, uplink)
}
