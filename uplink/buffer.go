// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package uplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/edgebus/edgebus/lib/clock"
	"github.com/edgebus/edgebus/lib/codec"
	"github.com/edgebus/edgebus/lib/sqlitepool"
)

// ErrDeserialization reports a buffered payload that cannot be decoded.
// Such records are discarded.
var ErrDeserialization = errors.New("buffered payload cannot be decoded")

const bufferSchema = `
CREATE TABLE IF NOT EXISTS uplink_buffer (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	uplink      TEXT    NOT NULL,
	enqueued_at INTEGER NOT NULL,
	payload     BLOB    NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS uplink_buffer_by_uplink ON uplink_buffer (uplink, id);
`

// Record is one buffered delivery.
type Record struct {
	// ID increases monotonically and is never reused, so it orders
	// records by enqueue time.
	ID         int64
	Uplink     string
	EnqueuedAt time.Time
	Payload    []byte
	RetryCount int
}

// Document decodes the buffered payload. The error wraps
// ErrDeserialization when the payload is corrupt.
func (r Record) Document() (Document, error) {
	var document Document
	if err := codec.Unpack(r.Payload, &document); err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", ErrDeserialization, r.ID, err)
	}
	if document == nil {
		return nil, fmt.Errorf("%w: record %d is not a document", ErrDeserialization, r.ID)
	}
	return document, nil
}

// BufferConfig configures a BufferStore. Path and Capacity are
// required.
type BufferConfig struct {
	Path string

	// Capacity is the maximum number of records across all uplinks.
	Capacity int

	// Durable selects synchronous=FULL.
	Durable bool

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// BufferStore is a durable FIFO of failed deliveries. It is safe for
// concurrent use.
type BufferStore struct {
	pool     *sqlitepool.Pool
	capacity int
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics
}

// OpenBufferStore opens or creates the buffer database.
func OpenBufferStore(ctx context.Context, cfg BufferConfig) (*BufferStore, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("uplink buffer: capacity must be positive, got %d", cfg.Capacity)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: 1,
		Durable:  cfg.Durable,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("uplink buffer: %w", err)
	}

	store := &BufferStore{
		pool:     pool,
		capacity: cfg.Capacity,
		clock:    cfg.Clock,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
	if store.clock == nil {
		store.clock = clock.Real()
	}
	if store.metrics == nil {
		store.metrics = NewMetrics(nil)
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("uplink buffer: %w", err)
	}
	err = sqlitex.ExecuteScript(conn, bufferSchema, nil)
	pool.Put(conn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("uplink buffer: creating schema: %w", err)
	}

	if total, err := store.Total(ctx); err == nil {
		store.metrics.bufferRecords.Set(float64(total))
		logger.Info("uplink buffer opened", "path", cfg.Path, "records", total, "capacity", cfg.Capacity)
	}
	return store, nil
}

// Close closes the database.
func (s *BufferStore) Close() error {
	return s.pool.Close()
}

// Enqueue appends document for uplink and evicts the oldest records of
// any uplink beyond capacity. Insert and eviction run in one IMMEDIATE
// transaction. It returns the new record's id.
func (s *BufferStore) Enqueue(ctx context.Context, uplink string, document Document) (id int64, err error) {
	payload, err := codec.Pack(document)
	if err != nil {
		return 0, fmt.Errorf("uplink buffer: encoding document: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("uplink buffer: enqueue: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("uplink buffer: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		"INSERT INTO uplink_buffer (uplink, enqueued_at, payload, retry_count) VALUES (?, ?, ?, 0)",
		&sqlitex.ExecOptions{Args: []any{uplink, s.clock.Now().UnixMilli(), payload}})
	if err != nil {
		return 0, fmt.Errorf("uplink buffer: insert: %w", err)
	}
	id = conn.LastInsertRowID()

	err = sqlitex.Execute(conn, `
		DELETE FROM uplink_buffer WHERE id IN (
			SELECT id FROM uplink_buffer ORDER BY id ASC
			LIMIT max(0, (SELECT COUNT(*) FROM uplink_buffer) - ?)
		)`,
		&sqlitex.ExecOptions{Args: []any{s.capacity}})
	if err != nil {
		return 0, fmt.Errorf("uplink buffer: evict: %w", err)
	}
	if evicted := conn.Changes(); evicted > 0 {
		s.metrics.evicted.Add(float64(evicted))
		s.logger.Warn("uplink buffer full, evicted oldest records",
			"evicted", evicted,
			"capacity", s.capacity,
		)
	}
	s.metrics.buffered.WithLabelValues(uplink).Inc()
	return id, nil
}

// FetchBatch returns up to limit records of uplink, oldest first.
func (s *BufferStore) FetchBatch(ctx context.Context, uplink string, limit int) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("uplink buffer: fetch: %w", err)
	}
	defer s.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn,
		"SELECT id, uplink, enqueued_at, payload, retry_count FROM uplink_buffer WHERE uplink = ? ORDER BY id ASC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{uplink, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				payload := make([]byte, stmt.ColumnLen(3))
				stmt.ColumnBytes(3, payload)
				records = append(records, Record{
					ID:         stmt.ColumnInt64(0),
					Uplink:     stmt.ColumnText(1),
					EnqueuedAt: time.UnixMilli(stmt.ColumnInt64(2)),
					Payload:    payload,
					RetryCount: stmt.ColumnInt(4),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("uplink buffer: fetch %s: %w", uplink, err)
	}
	return records, nil
}

// MarkSent deletes a delivered record.
func (s *BufferStore) MarkSent(ctx context.Context, id int64) error {
	return s.exec(ctx, "DELETE FROM uplink_buffer WHERE id = ?", id)
}

// IncRetry records one more failed delivery of a record.
func (s *BufferStore) IncRetry(ctx context.Context, id int64) error {
	return s.exec(ctx, "UPDATE uplink_buffer SET retry_count = retry_count + 1 WHERE id = ?", id)
}

func (s *BufferStore) exec(ctx context.Context, query string, args ...any) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("uplink buffer: %w", err)
	}
	defer s.pool.Put(conn)
	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("uplink buffer: %w", err)
	}
	return nil
}

// Count returns the number of records buffered for uplink.
func (s *BufferStore) Count(ctx context.Context, uplink string) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM uplink_buffer WHERE uplink = ?", uplink)
}

// Total returns the number of records across all uplinks.
func (s *BufferStore) Total(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM uplink_buffer")
}

func (s *BufferStore) count(ctx context.Context, query string, args ...any) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("uplink buffer: count: %w", err)
	}
	defer s.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("uplink buffer: count: %w", err)
	}
	return count, nil
}

// PendingUplinks returns the names of uplinks with buffered records,
// sorted.
func (s *BufferStore) PendingUplinks(ctx context.Context) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("uplink buffer: pending: %w", err)
	}
	defer s.pool.Put(conn)

	var uplinks []string
	err = sqlitex.Execute(conn, "SELECT DISTINCT uplink FROM uplink_buffer ORDER BY uplink", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			uplinks = append(uplinks, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("uplink buffer: pending: %w", err)
	}
	return uplinks, nil
}

// observe refreshes the buffer size gauge.
func (s *BufferStore) observe(ctx context.Context) {
	if total, err := s.Total(ctx); err == nil {
		s.metrics.bufferRecords.Set(float64(total))
	}
}
