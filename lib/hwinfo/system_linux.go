// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

// System is the static identity of the node.
type System struct {
	Hostname      string
	KernelVersion string
	CPUModel      string
	CPUCount      int
}

// ReadSystem probes the node identity.
func ReadSystem() System {
	hostname, _ := os.Hostname()
	return System{
		Hostname:      hostname,
		KernelVersion: readKernelVersion(),
		CPUModel:      readCPUModel("/proc/cpuinfo"),
		CPUCount:      runtime.NumCPU(),
	}
}

// readKernelVersion returns the kernel release string from uname(2).
func readKernelVersion() string {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err != nil {
		return ""
	}
	return unix.ByteSliceToString(utsname.Release[:])
}

// readCPUModel extracts the first "model name" line from /proc/cpuinfo.
// ARM boards report "Model" or "Hardware" instead, which are used as
// fallbacks.
func readCPUModel(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	var fallback string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		switch name {
		case "model name":
			return value
		case "Model", "Hardware":
			if fallback == "" {
				fallback = value
			}
		}
	}
	return fallback
}
