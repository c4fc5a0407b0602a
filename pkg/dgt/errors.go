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

package dgt

import "errors"

var (
	// ErrTimeout reports that a command's reply did not arrive within
	// its deadline. The connection itself stays alive.
	ErrTimeout = errors.New("dgt: command timed out")

	// ErrConnectionLost reports that the connection died while the
	// command was in flight.
	ErrConnectionLost = errors.New("dgt: connection lost")

	// ErrSessionDead reports a send on a connection that already died.
	ErrSessionDead = errors.New("dgt: session is dead")

	// ErrClosed reports a command issued after Close. Permanent.
	ErrClosed = errors.New("dgt: driver is closed")

	// ErrDuplicateRequest reports a second in-flight command with the
	// same correlation key. This is a caller bug, not a device error.
	ErrDuplicateRequest = errors.New("dgt: request with same correlation key already pending")

	// errSessionClosed marks a deliberate session teardown, as opposed
	// to an I/O failure. Downstream behavior is identical.
	errSessionClosed = errors.New("dgt: session closed")
)
