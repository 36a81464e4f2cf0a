// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "github.com/spf13/pflag"

// CommonFlags holds the flag values shared by all edgebus service
// binaries.
type CommonFlags struct {
	ConfigPath  string
	LogLevel    string
	MetricsAddr string
	ShowVersion bool
}

// RegisterCommonFlags binds [CommonFlags] fields to flags with the
// standard names. Service binaries call this, register any
// service-specific flags, then parse.
func RegisterCommonFlags(flags *pflag.FlagSet, values *CommonFlags) {
	flags.StringVarP(&values.ConfigPath, "config", "c", "", "path to the service configuration file (YAML or JSONC)")
	flags.StringVar(&values.LogLevel, "log-level", "", "log level: debug, info, warn, error (overrides the config file)")
	flags.StringVar(&values.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (overrides the config file)")
	flags.BoolVar(&values.ShowVersion, "version", false, "print version information and exit")
}
