// godgt
// Copyright (c) 2026 The godgt Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of godgt.
//
// godgt is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// godgt is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with godgt.  If not, see <http://www.gnu.org/licenses/>.

// Package transport owns the physical serial connection to a DGT board
// and the discovery of candidate serial ports.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

var (
	// ErrUnavailable reports that a port could not be opened. The
	// caller keeps searching; nothing was connected yet.
	ErrUnavailable = errors.New("serial port unavailable")

	// ErrIOLost reports that an open connection failed mid-use. The
	// owning session treats this as a physical disconnect.
	ErrIOLost = errors.New("serial connection lost")
)

// Port is the connection surface the session drives. Implemented by
// Serial and by mock ports in tests.
type Port interface {
	// ReadChunk performs one blocking read and returns whatever bytes
	// arrived. An empty chunk with a nil error is an idle read timeout,
	// not a disconnect. Any error wraps ErrIOLost.
	ReadChunk() ([]byte, error)
	Write(p []byte) error
	Close() error
}

const (
	baudRate    = 9600
	readTimeout = 250 * time.Millisecond
	readBufSize = 256
)

// Serial is a Port backed by a real serial device.
type Serial struct {
	port serial.Port
	path string
	buf  []byte
}

// Open opens and configures the serial device at path. DGT boards talk
// 9600 8N1. A read timeout is set so the session's read loop can
// observe shutdown between reads.
func Open(path string) (*Serial, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, path, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: set read timeout on %s: %w", ErrUnavailable, path, err)
	}

	return &Serial{
		port: port,
		path: path,
		buf:  make([]byte, readBufSize),
	}, nil
}

// Path returns the device path this transport was opened on.
func (s *Serial) Path() string {
	return s.path
}

func (s *Serial) ReadChunk() ([]byte, error) {
	n, err := s.port.Read(s.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIOLost, s.path, err)
	}
	if n == 0 {
		return nil, nil
	}
	chunk := make([]byte, n)
	copy(chunk, s.buf[:n])
	return chunk, nil
}

func (s *Serial) Write(p []byte) error {
	written := 0
	for written < len(p) {
		n, err := s.port.Write(p[written:])
		if err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrIOLost, s.path, err)
		}
		written += n
	}
	return nil
}

func (s *Serial) Close() error {
	err := s.port.Close()
	if err != nil && !IsDisconnectError(err) {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

// IsDisconnectError reports whether an error indicates the device was
// physically removed rather than misconfigured.
func IsDisconnectError(err error) bool {
	if err == nil {
		return false
	}

	var portErr serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	// OS-level errors that arrive unwrapped
	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"device not configured",
		"input/output error",
		"no such device",
		"device not found",
		"broken pipe",
		"device disconnected",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// LogPortError records a port-level failure with its classification so
// plug/unplug cycles can be traced in the logs.
func LogPortError(path string, err error) {
	log.Debug().Err(err).
		Str("port", path).
		Bool("disconnect", IsDisconnectError(err)).
		Msg("serial port error")
}
