// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. It centralizes
// the raw stderr output that happens before the structured logger
// exists: [Fatal] reports an error from run() and exits.
package process
