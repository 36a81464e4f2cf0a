// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with the pragmas
// every edgebus store expects.
//
// It wraps zombiezen.com/go/sqlite/sqlitex.Pool. Callers [Pool.Take] a
// connection, do their work and [Pool.Put] it back; a connection must
// never be shared between goroutines.
//
// Every connection is prepared with:
//
//   - journal_mode=WAL so readers never block the writer.
//   - synchronous=NORMAL by default, or FULL when [Config.Durable] is
//     set. The uplink buffer sets Durable: a record acknowledged by
//     Enqueue must survive a power cut on the edge box.
//   - busy_timeout=5000 so concurrent writers wait instead of failing.
//   - temp_store=MEMORY and a small page cache sized for embedded
//     boards.
//
// [Config.OnConnect] runs after the pragmas and is where stores create
// their schema.
package sqlitepool
