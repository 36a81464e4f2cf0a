// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgebus/edgebus/lib/clock"
)

var (
	// ErrQueueFull is returned by Submit when the job queue is at
	// capacity. The job is not queued.
	ErrQueueFull = errors.New("driver queue full")

	// ErrWorkerStopped is returned by Submit after Run has returned.
	ErrWorkerStopped = errors.New("driver worker stopped")
)

// Defaults for WorkerConfig fields left zero.
const (
	DefaultQueueSize       = 64
	DefaultExchangeTimeout = time.Second
)

// Job is one exchange requested through the bus.
type Job struct {
	// RequestID, Source and Action identify the request the result
	// answers.
	RequestID string
	Source    string
	Action    string

	Frame []byte

	// Timeout bounds the exchange. Zero uses the worker default.
	Timeout time.Duration
}

// Result is the outcome of a Job.
type Result struct {
	Job       Job
	Response  []byte
	RoundTrip time.Duration
	Err       error
}

// Payload renders the result as a response payload: status, hex, rx_len
// and rtt_ms on success, status and error otherwise.
func (r Result) Payload() map[string]any {
	if r.Err != nil {
		return map[string]any{"status": "error", "error": r.Err.Error()}
	}
	return map[string]any{
		"status": "ok",
		"hex":    FormatHex(r.Response),
		"rx_len": len(r.Response),
		"rtt_ms": r.RoundTrip.Milliseconds(),
	}
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// Exchanger reaches the device. Nil fails every job with
	// ErrNoDevice.
	Exchanger Exchanger

	QueueSize       int
	ExchangeTimeout time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// Worker executes jobs one at a time on the goroutine running Run.
type Worker struct {
	exchanger       Exchanger
	exchangeTimeout time.Duration
	clock           clock.Clock
	logger          *slog.Logger
	metrics         *Metrics

	jobs    chan Job
	results chan Result
	done    chan struct{}
}

// NewWorker creates a worker. Call Run to start processing.
func NewWorker(config WorkerConfig) *Worker {
	w := &Worker{
		exchanger:       config.Exchanger,
		exchangeTimeout: config.ExchangeTimeout,
		clock:           config.Clock,
		logger:          config.Logger,
		metrics:         config.Metrics,
		done:            make(chan struct{}),
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if w.exchangeTimeout <= 0 {
		w.exchangeTimeout = DefaultExchangeTimeout
	}
	if w.clock == nil {
		w.clock = clock.Real()
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	w.jobs = make(chan Job, queueSize)
	w.results = make(chan Result, queueSize)
	return w
}

// Submit queues job without blocking.
func (w *Worker) Submit(job Job) error {
	select {
	case <-w.done:
		return ErrWorkerStopped
	default:
	}
	select {
	case w.jobs <- job:
		w.metrics.submitted.Inc()
		w.metrics.queueDepth.Set(float64(len(w.jobs)))
		return nil
	default:
		w.metrics.rejected.Inc()
		w.logger.Warn("driver queue full, rejecting job",
			"request_id", job.RequestID,
			"source", job.Source,
			"capacity", cap(w.jobs),
		)
		return ErrQueueFull
	}
}

// Results delivers one Result per executed job, in submission order.
func (w *Worker) Results() <-chan Result { return w.results }

// Pending returns the number of queued jobs not yet started.
func (w *Worker) Pending() int { return len(w.jobs) }

// Run executes queued jobs until ctx is cancelled. Jobs still queued
// at that point are abandoned.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			w.metrics.queueDepth.Set(float64(len(w.jobs)))
			result := w.execute(ctx, job)
			select {
			case w.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) execute(ctx context.Context, job Job) Result {
	if w.exchanger == nil {
		w.metrics.exchanges.WithLabelValues("error").Inc()
		return Result{Job: job, Err: ErrNoDevice}
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = w.exchangeTimeout
	}

	start := w.clock.Now()
	response, err := w.exchanger.Exchange(ctx, job.Frame, timeout)
	roundTrip := w.clock.Now().Sub(start)
	if err != nil {
		w.metrics.exchanges.WithLabelValues("error").Inc()
		w.logger.Error("device exchange failed",
			"request_id", job.RequestID,
			"source", job.Source,
			"error", err,
		)
		return Result{Job: job, RoundTrip: roundTrip, Err: err}
	}

	w.metrics.exchanges.WithLabelValues("ok").Inc()
	w.metrics.roundTrip.Observe(roundTrip.Seconds())
	w.logger.Debug("device exchange",
		"request_id", job.RequestID,
		"tx", FormatHex(job.Frame),
		"rx", FormatHex(response),
		"rtt", roundTrip,
	)
	return Result{Job: job, Response: response, RoundTrip: roundTrip}
}
