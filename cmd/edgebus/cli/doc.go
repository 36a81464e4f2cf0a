// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the edgebus operator CLI.
//
// A [Command] has a pflag flag set factory, optional nested
// subcommands and a Run function. [Command.Execute] routes the first
// positional argument to a subcommand, parses flags and renders help
// with examples. Unknown commands and flags get a "did you mean"
// suggestion when one is within edit distance 3.
package cli
