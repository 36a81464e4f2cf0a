// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"
)

// Watcher reloads a config file when its modification time or size
// changes. It is polled from the owning service's control loop and is
// not safe for concurrent use.
type Watcher struct {
	path    string
	modTime time.Time
	size    int64
	loaded  bool
}

// NewWatcher watches path. The first [Watcher.Poll] always loads it.
func NewWatcher(path string) *Watcher {
	return &Watcher{path: path}
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Poll returns the reloaded configuration and true when the file
// changed since the last call. A file that fails to load is reported
// once and not retried until it changes again.
func (w *Watcher) Poll() (*Config, bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, false, fmt.Errorf("watching config: %w", err)
	}
	if w.loaded && info.ModTime().Equal(w.modTime) && info.Size() == w.size {
		return nil, false, nil
	}
	w.modTime = info.ModTime()
	w.size = info.Size()
	w.loaded = true

	cfg, err := LoadFile(w.path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}
