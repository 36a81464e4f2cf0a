// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the scaffolding shared by every edgebus
// binary: the standard flags, the structured logger, and the HTTP
// server that exposes metrics.
//
// Services compose these pieces in their own run() function rather
// than subclassing a framework:
//
//	var flags service.CommonFlags
//	service.RegisterCommonFlags(pflag.CommandLine, &flags)
//	pflag.Parse()
//	logger, err := service.NewLogger(flags.LogLevel)
//
// This package depends on nothing else in the module.
package service
