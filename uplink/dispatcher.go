// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/config"
)

var (
	// ErrUnknownUplink reports push_data naming an uplink that is not
	// enabled.
	ErrUnknownUplink = errors.New("unknown uplink")

	// ErrNoUplinks reports push_data while no uplink is enabled.
	ErrNoUplinks = errors.New("no uplink enabled")
)

// Defaults for DispatcherConfig fields left zero.
const (
	DefaultHealthTimeout = 1200 * time.Millisecond
	DefaultFlushInterval = 5 * time.Second
	DefaultFlushBatch    = 50
)

// DispatcherConfig wires a Dispatcher. Aggregator and Buffer are
// required.
type DispatcherConfig struct {
	Aggregator *Aggregator
	Buffer     *BufferStore

	// Health supplies the snapshot attached to documents. Nil sends
	// null health.
	Health        HealthSource
	HealthTimeout time.Duration

	FlushInterval time.Duration
	FlushBatch    int

	// NewSink builds sinks for Apply. Defaults to NewSink.
	NewSink SinkFactory

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

type schedule struct {
	target config.TargetConfig
	sink   Sink
	next   time.Time
}

// Dispatcher delivers aggregated documents on each uplink's schedule
// and replays the buffer. It is driven by Tick from a single loop.
type Dispatcher struct {
	aggregator    *Aggregator
	buffer        *BufferStore
	health        HealthSource
	healthTimeout time.Duration
	flushInterval time.Duration
	flushBatch    int
	newSink       SinkFactory
	clock         clock.Clock
	logger        *slog.Logger
	metrics       *Metrics

	schedules map[string]*schedule
	order     []string
	lastFlush time.Time
}

// NewDispatcher creates a dispatcher with no uplinks. Call Apply to
// configure them. It panics when Aggregator or Buffer is missing.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Aggregator == nil {
		panic("uplink: Aggregator is required")
	}
	if cfg.Buffer == nil {
		panic("uplink: Buffer is required")
	}
	d := &Dispatcher{
		aggregator:    cfg.Aggregator,
		buffer:        cfg.Buffer,
		health:        cfg.Health,
		healthTimeout: cfg.HealthTimeout,
		flushInterval: cfg.FlushInterval,
		flushBatch:    cfg.FlushBatch,
		newSink:       cfg.NewSink,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		schedules:     make(map[string]*schedule),
	}
	if d.healthTimeout <= 0 {
		d.healthTimeout = DefaultHealthTimeout
	}
	if d.flushInterval <= 0 {
		d.flushInterval = DefaultFlushInterval
	}
	if d.flushBatch <= 0 {
		d.flushBatch = DefaultFlushBatch
	}
	if d.newSink == nil {
		d.newSink = NewSink
	}
	if d.clock == nil {
		d.clock = clock.Real()
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	if d.metrics == nil {
		d.metrics = NewMetrics(nil)
	}
	d.lastFlush = d.clock.Now()
	return d
}

// Uplinks returns the enabled uplink names, sorted.
func (d *Dispatcher) Uplinks() []string {
	return slices.Clone(d.order)
}

// Apply reconciles the enabled uplinks with targets. A newly enabled
// uplink sends its first document one interval from now. A disabled or
// removed uplink loses its schedule and aggregated payloads at once;
// its buffered records stay in the store. An uplink whose settings
// changed gets a new sink, and a new schedule if its interval changed.
func (d *Dispatcher) Apply(targets []config.TargetConfig) {
	now := d.clock.Now()
	wanted := make(map[string]config.TargetConfig, len(targets))
	for _, target := range targets {
		if target.Enabled {
			wanted[target.Name] = target
		}
	}

	for name, current := range d.schedules {
		target, ok := wanted[name]
		if !ok {
			d.remove(name, current)
			d.logger.Info("uplink disabled", "uplink", name)
			continue
		}
		if reflect.DeepEqual(target, current.target) {
			continue
		}
		sink, err := d.newSink(target, d.logger)
		if err != nil {
			d.logger.Error("uplink reconfiguration failed, disabling", "uplink", name, "error", err)
			d.remove(name, current)
			continue
		}
		d.closeSink(name, current.sink)
		if target.Interval != current.target.Interval {
			current.next = now.Add(target.Interval)
		}
		current.target = target
		current.sink = sink
		d.logger.Info("uplink reconfigured", "uplink", name, "type", target.Type, "interval", target.Interval)
	}

	for name, target := range wanted {
		if _, ok := d.schedules[name]; ok {
			continue
		}
		sink, err := d.newSink(target, d.logger)
		if err != nil {
			d.logger.Error("uplink not enabled", "uplink", name, "error", err)
			continue
		}
		d.schedules[name] = &schedule{target: target, sink: sink, next: now.Add(target.Interval)}
		d.logger.Info("uplink enabled", "uplink", name, "type", target.Type, "interval", target.Interval)
	}

	d.order = d.order[:0]
	for name := range d.schedules {
		d.order = append(d.order, name)
	}
	slices.Sort(d.order)
}

func (d *Dispatcher) remove(name string, current *schedule) {
	d.closeSink(name, current.sink)
	delete(d.schedules, name)
	d.aggregator.Drop(name)
}

func (d *Dispatcher) closeSink(name string, sink Sink) {
	if err := closeSink(sink); err != nil {
		d.logger.Warn("closing sink", "uplink", name, "error", err)
	}
}

// Push records data from source for uplink, or for every enabled
// uplink when uplink is empty.
func (d *Dispatcher) Push(source string, data map[string]any, uplink string) error {
	if uplink != "" {
		if _, ok := d.schedules[uplink]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownUplink, uplink)
		}
		d.aggregator.Update(uplink, source, data)
		return nil
	}
	if len(d.order) == 0 {
		return ErrNoUplinks
	}
	for _, name := range d.order {
		d.aggregator.Update(name, source, data)
	}
	return nil
}

// Tick runs every due send, then the buffer flush when its interval
// has elapsed.
func (d *Dispatcher) Tick(ctx context.Context) {
	now := d.clock.Now()
	for _, name := range d.order {
		current := d.schedules[name]
		if now.Before(current.next) {
			continue
		}
		current.next = now.Add(current.target.Interval)
		d.deliver(ctx, name, current)
	}

	if now.Sub(d.lastFlush) >= d.flushInterval {
		d.lastFlush = now
		d.Flush(ctx)
	}
}

func (d *Dispatcher) fetchHealth(ctx context.Context) map[string]any {
	if d.health == nil {
		return nil
	}
	healthContext, cancel := context.WithTimeout(ctx, d.healthTimeout)
	defer cancel()
	snapshot, err := d.health.Snapshot(healthContext)
	if err != nil {
		d.logger.Debug("health snapshot unavailable", "error", err)
		return nil
	}
	return snapshot
}

func (d *Dispatcher) send(ctx context.Context, current *schedule, document Document) error {
	sendContext, cancel := context.WithTimeout(ctx, current.target.Timeout)
	defer cancel()
	return current.sink.Send(sendContext, document)
}

func (d *Dispatcher) deliver(ctx context.Context, name string, current *schedule) {
	health := d.fetchHealth(ctx)
	document, ok := d.aggregator.Build(name, health)
	if !ok {
		return
	}

	err := d.send(ctx, current, document)
	if err == nil {
		d.aggregator.Clear(name)
		d.aggregator.MarkHealthSent(name, health)
		d.metrics.sent.WithLabelValues(name).Inc()
		d.logger.Debug("uplink sent", "uplink", name, "sources", len(Services(document)))
		return
	}
	d.metrics.failed.WithLabelValues(name).Inc()

	if len(Services(document)) == 0 {
		d.logger.Warn("uplink send failed, nothing to buffer", "uplink", name, "error", err)
		return
	}
	id, bufferErr := d.buffer.Enqueue(ctx, name, document)
	if bufferErr != nil {
		// The payloads stay aggregated and go out with the next send.
		d.logger.Error("uplink send failed and buffering failed",
			"uplink", name,
			"error", err,
			"buffer_error", bufferErr,
		)
		return
	}
	// The buffered record now owns this telemetry; keeping it
	// aggregated would deliver it twice once the flush succeeds.
	d.aggregator.Clear(name)
	d.buffer.observe(ctx)
	d.logger.Warn("uplink send failed, buffered", "uplink", name, "record", id, "error", err)
}

// Flush replays buffered records of every enabled uplink, oldest
// first. An uplink's batch stops at its first failed delivery.
// Undecodable records are deleted.
func (d *Dispatcher) Flush(ctx context.Context) {
	for _, name := range d.order {
		d.flushUplink(ctx, name, d.schedules[name])
	}
	d.buffer.observe(ctx)
}

func (d *Dispatcher) flushUplink(ctx context.Context, name string, current *schedule) {
	records, err := d.buffer.FetchBatch(ctx, name, d.flushBatch)
	if err != nil {
		d.logger.Error("buffer fetch failed", "uplink", name, "error", err)
		return
	}
	if len(records) == 0 {
		return
	}
	d.logger.Info("flushing buffer", "uplink", name, "batch", len(records))

	for _, record := range records {
		document, err := record.Document()
		if err != nil {
			d.metrics.discarded.Inc()
			d.logger.Error("discarding undecodable record", "uplink", name, "record", record.ID, "error", err)
			if err := d.buffer.MarkSent(ctx, record.ID); err != nil {
				d.logger.Error("deleting record", "uplink", name, "record", record.ID, "error", err)
				return
			}
			continue
		}

		if err := d.send(ctx, current, document); err != nil {
			d.metrics.failed.WithLabelValues(name).Inc()
			if retryErr := d.buffer.IncRetry(ctx, record.ID); retryErr != nil {
				d.logger.Error("recording retry", "uplink", name, "record", record.ID, "error", retryErr)
			}
			d.logger.Warn("flush stopped at failed record",
				"uplink", name,
				"record", record.ID,
				"retry_count", record.RetryCount+1,
				"error", err,
			)
			return
		}

		if err := d.buffer.MarkSent(ctx, record.ID); err != nil {
			d.logger.Error("deleting delivered record", "uplink", name, "record", record.ID, "error", err)
			return
		}
		d.metrics.flushed.WithLabelValues(name).Inc()
	}
}

// Close closes every sink.
func (d *Dispatcher) Close() {
	for _, name := range d.order {
		d.closeSink(name, d.schedules[name].sink)
	}
}
