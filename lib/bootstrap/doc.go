// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap performs the startup every edgebus service shares
// and runs its control loop.
//
// [Start] loads the configuration named by the common flags, builds
// the logger and metrics registry, connects to the broker and
// registers, and creates the heartbeat reporter. The returned
// [Service] carries all of it; the caller adds its own handlers and
// calls [Service.Loop]:
//
//	svc, cleanup, err := bootstrap.Start(ctx, bootstrap.Config{
//	    Flags:       flags,
//	    DefaultName: "uplink",
//	})
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//	return svc.Loop(ctx, bootstrap.Handlers{Handle: u.handle, Idle: u.tick})
//
// The broker itself does not register and uses only [LoadConfig] and
// [NewLogger].
package bootstrap
