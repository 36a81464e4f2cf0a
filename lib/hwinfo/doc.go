// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo collects the hardware snapshot the health service
// attaches to hw.get responses.
//
// Everything is read from /proc and /sys, or from statfs(2) and
// uname(2) through golang.org/x/sys/unix. Probes never fail: a missing
// or unreadable source produces a zero or empty field.
//
//   - Host CPU utilization from /proc/stat ([ReadCPUStats], [CPUPercent])
//   - Memory from /proc/meminfo ([ReadMemory])
//   - Load averages from /proc/loadavg ([ReadLoad])
//   - Filesystem usage via statfs ([ReadDisk])
//   - Thermal zones from /sys/class/thermal ([ReadThermalZones])
//   - Static identity: hostname, kernel, CPU model ([ReadSystem])
//
// [Collector] keeps the previous CPU reading between calls so that each
// [Collector.Collect] reports utilization over the interval since the
// last one.
package hwinfo
