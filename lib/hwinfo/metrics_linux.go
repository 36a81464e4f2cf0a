// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// CPUReading captures cumulative CPU time from /proc/stat for delta
// computation. The first line of /proc/stat aggregates all CPUs:
//
//	cpu  user nice system idle iowait irq softirq steal guest guest_nice
//
// busy = user + nice + system + irq + softirq + steal
// idle = idle + iowait
//
// guest and guest_nice are already included in user/nice (kernel
// accounting) so they are not added separately.
type CPUReading struct {
	Busy uint64
	Idle uint64
}

// ReadCPUStats parses the first line of /proc/stat and returns the
// cumulative busy and idle jiffies. Returns nil on any parse failure
// (the caller treats nil as "no reading available, report 0%").
func ReadCPUStats() *CPUReading {
	return readCPUStatsFrom("/proc/stat")
}

// readCPUStatsFrom is the testable version of ReadCPUStats that accepts
// a file path.
func readCPUStatsFrom(path string) *CPUReading {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil
	}

	// The leading "cpu" label and at least 8 numeric fields must be present.
	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 || fields[0] != "cpu" {
		return nil
	}

	values := make([]uint64, len(fields)-1)
	for i := 1; i < len(fields); i++ {
		parsed, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return nil
		}
		values[i-1] = parsed
	}

	// Fields (0-indexed after stripping "cpu"):
	//   0=user, 1=nice, 2=system, 3=idle, 4=iowait,
	//   5=irq, 6=softirq, 7=steal
	busy := values[0] + values[1] + values[2] + values[5] + values[6] + values[7]
	idle := values[3] + values[4]

	return &CPUReading{Busy: busy, Idle: idle}
}

// CPUPercent computes the CPU utilization percentage from two sequential
// /proc/stat readings. Returns 0 if either reading is nil or the delta
// is zero (no time has passed).
func CPUPercent(previous, current *CPUReading) float64 {
	if previous == nil || current == nil {
		return 0
	}
	busyDelta := current.Busy - previous.Busy
	idleDelta := current.Idle - previous.Idle
	totalDelta := busyDelta + idleDelta
	if totalDelta == 0 {
		return 0
	}
	return float64(busyDelta) / float64(totalDelta) * 100
}

// Memory is system memory in kilobytes, as /proc/meminfo reports it.
type Memory struct {
	TotalKB     uint64
	AvailableKB uint64
	UsedKB      uint64
}

// ReadMemory parses /proc/meminfo. Used is Total minus Available.
func ReadMemory() Memory {
	return readMemoryFrom("/proc/meminfo")
}

func readMemoryFrom(path string) Memory {
	file, err := os.Open(path)
	if err != nil {
		return Memory{}
	}
	defer file.Close()

	var memory Memory
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name, rest, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		value, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		switch name {
		case "MemTotal":
			memory.TotalKB = value
		case "MemAvailable":
			memory.AvailableKB = value
		}
	}
	if memory.TotalKB > memory.AvailableKB {
		memory.UsedKB = memory.TotalKB - memory.AvailableKB
	}
	return memory
}

// Load holds the 1, 5 and 15 minute load averages.
type Load struct {
	One, Five, Fifteen float64
}

// ReadLoad parses /proc/loadavg.
func ReadLoad() Load {
	return readLoadFrom("/proc/loadavg")
}

func readLoadFrom(path string) Load {
	fields := strings.Fields(ReadSysfsString(path))
	if len(fields) < 3 {
		return Load{}
	}
	var values [3]float64
	for i := range values {
		parsed, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Load{}
		}
		values[i] = parsed
	}
	return Load{One: values[0], Five: values[1], Fifteen: values[2]}
}

// Disk is the usage of one filesystem in bytes.
type Disk struct {
	Path       string
	TotalBytes uint64
	UsedBytes  uint64
	FreeBytes  uint64
}

// ReadDisk reports usage of the filesystem holding path via statfs(2).
// Free counts blocks available to unprivileged users.
func ReadDisk(path string) Disk {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Disk{Path: path}
	}
	blockSize := uint64(stat.Bsize)
	total := stat.Blocks * blockSize
	free := stat.Bavail * blockSize
	used := total - stat.Bfree*blockSize
	return Disk{Path: path, TotalBytes: total, UsedBytes: used, FreeBytes: free}
}

// ThermalZone is one /sys/class/thermal/thermal_zoneN reading.
type ThermalZone struct {
	Zone         string
	Type         string
	TemperatureC float64
}

// ReadThermalZones reads every thermal zone. Zones whose temperature
// cannot be read are skipped.
func ReadThermalZones() []ThermalZone {
	return readThermalZonesFrom("/sys/class/thermal")
}

func readThermalZonesFrom(base string) []ThermalZone {
	matches, err := filepath.Glob(filepath.Join(base, "thermal_zone*"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	var zones []ThermalZone
	for _, zonePath := range matches {
		raw := ReadSysfsString(filepath.Join(zonePath, "temp"))
		milliCelsius, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		zones = append(zones, ThermalZone{
			Zone:         filepath.Base(zonePath),
			Type:         ReadSysfsString(filepath.Join(zonePath, "type")),
			TemperatureC: float64(milliCelsius) / 1000,
		})
	}
	return zones
}
