// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"os"
	"strings"
)

// ReadSysfsString reads a sysfs or procfs file and returns its
// content with surrounding whitespace trimmed. Returns "" on error.
func ReadSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
