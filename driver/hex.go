// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyFrame reports a request whose hex text holds no bytes.
var ErrEmptyFrame = errors.New("hex is empty")

// ParseHex decodes operator-friendly hex text. Bytes may be separated
// by spaces, commas or newlines and may carry a 0x prefix; case is
// ignored. "01 03 00 00", "0x01,0x03" and "01030000" are all accepted.
func ParseHex(text string) ([]byte, error) {
	text = strings.ReplaceAll(text, "0x", "")
	text = strings.ReplaceAll(text, "0X", "")
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\n' || r == '\r' || r == '\t'
	})
	joined := strings.Join(fields, "")
	if joined == "" {
		return nil, ErrEmptyFrame
	}
	frame, err := hex.DecodeString(joined)
	if err != nil {
		return nil, fmt.Errorf("parsing hex %q: %w", text, err)
	}
	return frame, nil
}

// FormatHex renders frame as space-separated upper-case byte pairs.
func FormatHex(frame []byte) string {
	var builder strings.Builder
	builder.Grow(len(frame) * 3)
	for i, b := range frame {
		if i > 0 {
			builder.WriteByte(' ')
		}
		fmt.Fprintf(&builder, "%02X", b)
	}
	return builder.String()
}
