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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/9EOR9/godgt/pkg/dgt/events"
	"github.com/9EOR9/godgt/pkg/dgt/protocol"
	"github.com/9EOR9/godgt/pkg/dgt/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePort is an in-memory transport.Port. Reads block until a chunk is
// queued or the port is closed; writes are recorded and can trigger
// scripted replies.
type fakePort struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	// autoReply maps a command tag to the raw reply queued when the
	// command is written
	autoReply map[byte][]byte
}

func newFakePort() *fakePort {
	return &fakePort{
		in:        make(chan []byte, 16),
		closed:    make(chan struct{}),
		autoReply: make(map[byte][]byte),
	}
}

func (p *fakePort) ReadChunk() ([]byte, error) {
	select {
	case chunk := <-p.in:
		return chunk, nil
	case <-p.closed:
		return nil, fmt.Errorf("%w: port closed", transport.ErrIOLost)
	}
}

func (p *fakePort) Write(b []byte) error {
	p.mu.Lock()
	err := p.writeErr
	if err == nil {
		p.writes = append(p.writes, append([]byte(nil), b...))
	}
	reply, ok := p.autoReply[b[0]]
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if ok {
		p.deliver(reply)
	}
	return nil
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) deliver(b []byte) {
	select {
	case p.in <- b:
	case <-p.closed:
	}
}

func (p *fakePort) failWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

func (p *fakePort) written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

func (p *fakePort) replyWith(cmdTag byte, frame protocol.Frame) {
	p.mu.Lock()
	p.autoReply[cmdTag] = protocol.EncodeFrame(frame)
	p.mu.Unlock()
}

func waitDead(t *testing.T, s *session) {
	t.Helper()
	select {
	case <-s.dead:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not die in time")
	}
}

func newTestSession(t *testing.T) (*session, *fakePort, *events.Bus) {
	t.Helper()
	port := newFakePort()
	bus := events.NewBus()
	sess := startSession(port, "/dev/test0", bus, clockwork.NewFakeClock())
	t.Cleanup(func() {
		sess.close()
		waitDead(t, sess)
	})
	return sess, port, bus
}

func TestSessionReplyRouting(t *testing.T) {
	t.Parallel()
	sess, port, _ := newTestSession(t)

	req, err := sess.send(protocol.Command{Tag: protocol.CmdSendVersion, ExpectsReply: true}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{protocol.CmdSendVersion}}, port.written())

	port.deliver(protocol.EncodeFrame(protocol.Frame{Tag: protocol.MsgVersion, Payload: []byte{1, 9}}))

	value, err := sess.pending.await(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1.9", value)
}

func TestSessionBoardDumpReply(t *testing.T) {
	t.Parallel()
	sess, port, _ := newTestSession(t)

	req, err := sess.send(protocol.Command{Tag: protocol.CmdSendBoard, ExpectsReply: true}, time.Minute)
	require.NoError(t, err)

	payload := make([]byte, 64)
	payload[0] = protocol.PieceBlackRook
	port.deliver(protocol.EncodeFrame(protocol.Frame{Tag: protocol.MsgBoardDump, Payload: payload}))

	value, err := sess.pending.await(context.Background(), req)
	require.NoError(t, err)
	board, ok := value.(protocol.Board)
	require.True(t, ok)
	assert.Equal(t, "r7/8/8/8/8/8/8/8", board.FEN())
}

func TestSessionClockAckCorrelation(t *testing.T) {
	t.Parallel()
	sess, port, _ := newTestSession(t)

	req, err := sess.send(protocol.ClockVersionCommand(), time.Minute)
	require.NoError(t, err)

	ack := []byte{0x0a, 0x00, protocol.ClockCmdVersion, 0x00, 0x21, 0x00, 0x00}
	port.deliver(protocol.EncodeFrame(protocol.Frame{Tag: protocol.MsgBWTime, Payload: ack}))

	value, err := sess.pending.await(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, byte(0x21), value)
}

func TestSessionFieldUpdateEvents(t *testing.T) {
	t.Parallel()
	sess, port, bus := newTestSession(t)
	sess.announced.Store(true)

	boards := make(chan protocol.Board, 2)
	bus.On(events.KindBoard, func(payload any) {
		boards <- payload.(protocol.Board)
	})

	// one frame split across two chunks
	wire := protocol.EncodeFrame(protocol.Frame{
		Tag:     protocol.MsgFieldUpdate,
		Payload: []byte{0, protocol.PieceWhiteQueen},
	})
	port.deliver(wire[:2])
	port.deliver(wire[2:])

	select {
	case board := <-boards:
		assert.Equal(t, "Q7/8/8/8/8/8/8/8", board.FEN())
	case <-time.After(2 * time.Second):
		t.Fatal("no board event")
	}

	// updates accumulate on the cached board
	port.deliver(protocol.EncodeFrame(protocol.Frame{
		Tag:     protocol.MsgFieldUpdate,
		Payload: []byte{63, protocol.PieceBlackKing},
	}))
	select {
	case board := <-boards:
		assert.Equal(t, "Q7/8/8/8/8/8/8/7k", board.FEN())
	case <-time.After(2 * time.Second):
		t.Fatal("no board event")
	}
}

func TestSessionClockAndButtonEvents(t *testing.T) {
	t.Parallel()
	sess, port, bus := newTestSession(t)
	sess.announced.Store(true)

	clocks := make(chan protocol.Clock, 1)
	buttons := make(chan int, 1)
	bus.On(events.KindClock, func(payload any) { clocks <- payload.(protocol.Clock) })
	bus.On(events.KindButtonPressed, func(payload any) { buttons <- payload.(int) })

	times := []byte{0x00, 0x10, 0x00, 0x00, 0x05, 0x30, protocol.ClockFlagLeftRunning}
	port.deliver(protocol.EncodeFrame(protocol.Frame{Tag: protocol.MsgBWTime, Payload: times}))

	select {
	case c := <-clocks:
		assert.Equal(t, 10*time.Minute, c.Right)
		assert.Equal(t, 5*time.Minute+30*time.Second, c.Left)
		assert.True(t, c.LeftRunning)
	case <-time.After(2 * time.Second):
		t.Fatal("no clock event")
	}

	press := []byte{0x0a, 0x00, protocol.ClockCmdButton, 0x00, 0x00, 0x02, 0x00}
	port.deliver(protocol.EncodeFrame(protocol.Frame{Tag: protocol.MsgBWTime, Payload: press}))

	select {
	case b := <-buttons:
		assert.Equal(t, 2, b)
	case <-time.After(2 * time.Second):
		t.Fatal("no button event")
	}
}

func TestSessionSilentUntilAnnounced(t *testing.T) {
	t.Parallel()
	sess, port, bus := newTestSession(t)

	fired := make(chan events.Kind, 4)
	for _, kind := range []events.Kind{events.KindBoard, events.KindClock, events.KindDisconnected} {
		kind := kind
		bus.On(kind, func(any) { fired <- kind })
	}

	port.deliver(protocol.EncodeFrame(protocol.Frame{
		Tag:     protocol.MsgFieldUpdate,
		Payload: []byte{0, protocol.PieceWhitePawn},
	}))
	sess.close()
	waitDead(t, sess)

	select {
	case kind := <-fired:
		t.Fatalf("unexpected %q event before announcement", kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionMalformedStream(t *testing.T) {
	t.Parallel()
	sess, port, bus := newTestSession(t)
	sess.announced.Store(true)

	disconnects := make(chan struct{}, 2)
	bus.On(events.KindDisconnected, func(any) { disconnects <- struct{}{} })

	req, err := sess.send(protocol.Command{Tag: protocol.CmdSendVersion, ExpectsReply: true}, time.Minute)
	require.NoError(t, err)

	// tag byte without the message bit is an unrecoverable desync
	port.deliver([]byte{0x13, 0x00, 0x05})
	waitDead(t, sess)

	_, err = sess.pending.await(context.Background(), req)
	require.ErrorIs(t, err, ErrConnectionLost)

	select {
	case <-disconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnected event")
	}
	select {
	case <-disconnects:
		t.Fatal("disconnected emitted twice")
	case <-time.After(100 * time.Millisecond):
	}

	_, err = sess.send(protocol.Command{Tag: protocol.CmdSendBoard, ExpectsReply: true}, time.Minute)
	require.ErrorIs(t, err, ErrSessionDead)
}

func TestSessionWriteFailureKills(t *testing.T) {
	t.Parallel()
	sess, port, _ := newTestSession(t)

	port.failWrites(fmt.Errorf("%w: cable gone", transport.ErrIOLost))
	_, err := sess.send(protocol.Command{Tag: protocol.CmdSendReset}, 0)
	require.ErrorIs(t, err, transport.ErrIOLost)
	waitDead(t, sess)
}

func TestSessionIgnoresUnknownTags(t *testing.T) {
	t.Parallel()
	sess, port, _ := newTestSession(t)

	port.deliver(protocol.EncodeFrame(protocol.Frame{Tag: protocol.MsgTrademark, Payload: []byte("DGT")}))

	// a well-formed request still works afterwards
	req, err := sess.send(protocol.Command{Tag: protocol.CmdSendVersion, ExpectsReply: true}, time.Minute)
	require.NoError(t, err)
	port.deliver(protocol.EncodeFrame(protocol.Frame{Tag: protocol.MsgVersion, Payload: []byte{2, 0}}))

	value, err := sess.pending.await(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "2.0", value)
}
