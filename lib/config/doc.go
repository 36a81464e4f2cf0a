// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration file of an Edgebus service.
//
// Each service reads a single file named by the --config flag (via
// [LoadFile]) or the EDGEBUS_CONFIG environment variable (via [Load]).
// Files ending in .json or .jsonc are read as JSONC (comments and
// trailing commas allowed); anything else is YAML. Both go through the
// same yaml struct tags, so the two formats accept the same keys.
// Unknown keys are errors.
//
// Before parsing, ${VAR} and ${VAR:-default} references anywhere in the
// file are replaced from the environment. [Default] supplies every
// value the file leaves out, and the merged result is checked by
// [Config.Validate].
//
// The file carries common settings (bus endpoint, logging, heartbeat)
// plus one typed section per binary: [BrokerConfig], [HealthConfig],
// [UplinkConfig] and [DriverConfig]. A binary ignores the sections of
// the others.
//
// [Watcher] re-reads a file when its modification time changes, which
// the uplink service uses for live reconfiguration.
//
// This package depends on no other Edgebus packages.
package config
