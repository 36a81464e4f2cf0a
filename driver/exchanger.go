// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// ErrNoDevice reports an exchange on a driver with no device
// configured.
var ErrNoDevice = errors.New("no device configured")

// Defaults for TCPExchangerConfig fields left zero.
const (
	DefaultDialTimeout = 2 * time.Second
	DefaultSilenceGap  = 50 * time.Millisecond
	DefaultMaxResponse = 512
)

// Exchanger writes one request frame to a device and returns its
// response. An empty response with a nil error means the device
// stayed silent until timeout.
type Exchanger interface {
	Exchange(ctx context.Context, request []byte, timeout time.Duration) ([]byte, error)
}

// TCPExchangerConfig configures a TCPExchanger. Address is required.
type TCPExchangerConfig struct {
	// Address is the host:port of the gateway.
	Address string

	DialTimeout time.Duration

	// SilenceGap ends a response once no byte arrived for this long
	// after the first one.
	SilenceGap time.Duration

	// MaxResponse caps the response length in bytes.
	MaxResponse int

	Logger *slog.Logger
}

// TCPExchanger keeps one connection to a serial-to-TCP gateway open
// across exchanges and redials after any I/O error. It is used from a
// single goroutine.
type TCPExchanger struct {
	address     string
	dialTimeout time.Duration
	silenceGap  time.Duration
	maxResponse int
	logger      *slog.Logger

	conn net.Conn
}

// NewTCPExchanger creates an exchanger. The connection is dialed on
// first use. It panics when Address is empty.
func NewTCPExchanger(config TCPExchangerConfig) *TCPExchanger {
	if config.Address == "" {
		panic("driver: Address is required")
	}
	e := &TCPExchanger{
		address:     config.Address,
		dialTimeout: config.DialTimeout,
		silenceGap:  config.SilenceGap,
		maxResponse: config.MaxResponse,
		logger:      config.Logger,
	}
	if e.dialTimeout <= 0 {
		e.dialTimeout = DefaultDialTimeout
	}
	if e.silenceGap <= 0 {
		e.silenceGap = DefaultSilenceGap
	}
	if e.maxResponse <= 0 {
		e.maxResponse = DefaultMaxResponse
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// Exchange writes request and reads the response. The read ends at the
// silence gap, at MaxResponse bytes, or when timeout (bounded further
// by ctx) expires.
func (e *TCPExchanger) Exchange(ctx context.Context, request []byte, timeout time.Duration) ([]byte, error) {
	conn, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, e.broken(fmt.Errorf("setting write deadline: %w", err))
	}
	if _, err := conn.Write(request); err != nil {
		return nil, e.broken(fmt.Errorf("writing to %s: %w", e.address, err))
	}

	response, err := readUntilSilence(conn, deadline, e.silenceGap, e.maxResponse)
	if err != nil {
		return response, e.broken(fmt.Errorf("reading from %s: %w", e.address, err))
	}
	return response, nil
}

// Close closes the open connection, if any.
func (e *TCPExchanger) Close() error {
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

func (e *TCPExchanger) connect(ctx context.Context) (net.Conn, error) {
	if e.conn != nil {
		return e.conn, nil
	}
	dialer := net.Dialer{Timeout: e.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.address)
	if err != nil {
		return nil, fmt.Errorf("connecting to device %s: %w", e.address, err)
	}
	e.logger.Info("device connected", "address", e.address)
	e.conn = conn
	return conn, nil
}

// broken drops the connection so the next exchange redials.
func (e *TCPExchanger) broken(err error) error {
	e.logger.Warn("device connection reset", "address", e.address, "error", err)
	e.Close()
	return err
}

// readUntilSilence reads until no byte arrives for gap after the
// first one, limit bytes were read, or deadline passes. Reaching the
// deadline is not an error; whatever arrived is returned.
func readUntilSilence(conn net.Conn, deadline time.Time, gap time.Duration, limit int) ([]byte, error) {
	response := make([]byte, 0, limit)
	chunk := make([]byte, limit)
	for len(response) < limit {
		readDeadline := deadline
		if len(response) > 0 {
			readDeadline = time.Now().Add(gap)
			if readDeadline.After(deadline) {
				readDeadline = deadline
			}
		}
		if err := conn.SetReadDeadline(readDeadline); err != nil {
			return response, err
		}

		n, err := conn.Read(chunk[:limit-len(response)])
		response = append(response, chunk[:n]...)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return response, nil
			}
			return response, err
		}
	}
	return response, nil
}
