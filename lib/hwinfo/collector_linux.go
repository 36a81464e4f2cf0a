// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"sync"
	"time"
)

// Collector produces hardware snapshots. It is safe for concurrent
// use.
type Collector struct {
	diskPaths []string

	mu          sync.Mutex
	previousCPU *CPUReading
}

// NewCollector creates a collector reporting usage of the filesystems
// holding diskPaths. No paths means "/".
func NewCollector(diskPaths ...string) *Collector {
	if len(diskPaths) == 0 {
		diskPaths = []string{"/"}
	}
	return &Collector{diskPaths: diskPaths, previousCPU: ReadCPUStats()}
}

// Collect returns the current snapshot as an envelope payload
// document.
func (c *Collector) Collect(now time.Time) map[string]any {
	current := ReadCPUStats()
	c.mu.Lock()
	cpuPercent := CPUPercent(c.previousCPU, current)
	if current != nil {
		c.previousCPU = current
	}
	c.mu.Unlock()

	system := ReadSystem()
	memory := ReadMemory()
	load := ReadLoad()

	disks := make([]any, 0, len(c.diskPaths))
	for _, path := range c.diskPaths {
		disk := ReadDisk(path)
		disks = append(disks, map[string]any{
			"path":  disk.Path,
			"total": disk.TotalBytes,
			"used":  disk.UsedBytes,
			"free":  disk.FreeBytes,
		})
	}

	thermal := make([]any, 0)
	for _, zone := range ReadThermalZones() {
		thermal = append(thermal, map[string]any{
			"zone":   zone.Zone,
			"type":   zone.Type,
			"temp_c": zone.TemperatureC,
		})
	}

	return map[string]any{
		"ts": now.Unix(),
		"system": map[string]any{
			"hostname":    system.Hostname,
			"kernel":      system.KernelVersion,
			"cpu_model":   system.CPUModel,
			"cpu_count":   system.CPUCount,
			"cpu_percent": cpuPercent,
			"memory": map[string]any{
				"total_kb":     memory.TotalKB,
				"available_kb": memory.AvailableKB,
				"used_kb":      memory.UsedKB,
			},
			"load": map[string]any{
				"1m":  load.One,
				"5m":  load.Five,
				"15m": load.Fifteen,
			},
			"disk": disks,
		},
		"thermal": thermal,
	}
}
