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

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9EOR9/godgt/pkg/dgt/protocol"
)

func TestPendingFulfill(t *testing.T) {
	t.Parallel()

	table := newPendingTable(clockwork.NewFakeClock())
	key := correlationKey{tag: protocol.MsgVersion}
	req, err := table.register(key, time.Second)
	require.NoError(t, err)

	require.True(t, table.fulfill(key, "1.9"))
	value, err := table.await(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1.9", value)
	assert.Zero(t, table.size())
}

func TestPendingUnmatchedFulfill(t *testing.T) {
	t.Parallel()

	table := newPendingTable(clockwork.NewFakeClock())
	assert.False(t, table.fulfill(correlationKey{tag: protocol.MsgVersion}, "1.9"))
}

func TestPendingTimeout(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	table := newPendingTable(clock)
	req, err := table.register(correlationKey{tag: protocol.MsgBoardDump}, time.Second)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = table.await(context.Background(), req)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, table.size(), "timed out entries must be removed")
}

func TestPendingReplyRacesDeadline(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	table := newPendingTable(clock)
	key := correlationKey{tag: protocol.MsgVersion}
	req, err := table.register(key, time.Second)
	require.NoError(t, err)

	// fire the deadline and deliver the reply before anyone awaits; the
	// reply must win regardless of select order
	clock.Advance(time.Second)
	table.fulfill(key, "1.9")

	value, err := table.await(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1.9", value)
}

func TestPendingDuplicateKey(t *testing.T) {
	t.Parallel()

	table := newPendingTable(clockwork.NewFakeClock())
	key := correlationKey{tag: protocol.MsgBWTime, sub: protocol.ClockCmdBeep}
	_, err := table.register(key, time.Second)
	require.NoError(t, err)

	_, err = table.register(key, time.Second)
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// a different sub code under the same tag is a distinct key
	_, err = table.register(correlationKey{tag: protocol.MsgBWTime, sub: protocol.ClockCmdASCII}, time.Second)
	require.NoError(t, err)
}

func TestPendingFailAll(t *testing.T) {
	t.Parallel()

	table := newPendingTable(clockwork.NewFakeClock())
	first, err := table.register(correlationKey{tag: protocol.MsgVersion}, time.Second)
	require.NoError(t, err)
	second, err := table.register(correlationKey{tag: protocol.MsgBoardDump}, time.Second)
	require.NoError(t, err)

	table.failAll(ErrConnectionLost)
	assert.Zero(t, table.size())

	_, err = table.await(context.Background(), first)
	require.ErrorIs(t, err, ErrConnectionLost)
	_, err = table.await(context.Background(), second)
	require.ErrorIs(t, err, ErrConnectionLost)
}

func TestPendingContextCancel(t *testing.T) {
	t.Parallel()

	table := newPendingTable(clockwork.NewFakeClock())
	req, err := table.register(correlationKey{tag: protocol.MsgSerialNr}, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = table.await(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, table.size())
}
