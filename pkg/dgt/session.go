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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/9EOR9/godgt/pkg/dgt/events"
	"github.com/9EOR9/godgt/pkg/dgt/protocol"
)

// session owns exactly one live transport and runs its read loop until
// death. Every decoded frame either resolves a pending request or is
// dispatched as an event. Any transport or codec failure kills the
// session; recovery is the supervisor's job.
type session struct {
	port    devicePort
	bus     *events.Bus
	pending *pendingTable
	path    string

	mu    sync.Mutex
	board protocol.Board

	// announced is set once the supervisor has validated the device and
	// emitted the connected event. Until then the session stays silent
	// on the bus, so a failed probe never produces a disconnected event.
	announced atomic.Bool

	dead     chan struct{}
	dieOnce  sync.Once
	deathErr error
}

// devicePort is the slice of transport.Port the session needs.
type devicePort interface {
	ReadChunk() ([]byte, error)
	Write(p []byte) error
	Close() error
}

func startSession(port devicePort, path string, bus *events.Bus, clock clockwork.Clock) *session {
	s := &session{
		port:    port,
		bus:     bus,
		pending: newPendingTable(clock),
		path:    path,
		dead:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *session) isDead() bool {
	select {
	case <-s.dead:
		return true
	default:
		return false
	}
}

// close tears the session down deliberately. Downstream this is
// indistinguishable from a physical disconnect.
func (s *session) close() {
	s.die(errSessionClosed)
}

func (s *session) die(reason error) {
	s.dieOnce.Do(func() {
		s.deathErr = reason
		s.pending.failAll(ErrConnectionLost)
		if err := s.port.Close(); err != nil {
			log.Debug().Err(err).Str("port", s.path).Msg("error closing transport")
		}
		close(s.dead)
		if s.announced.Load() {
			s.bus.Emit(events.KindDisconnected, nil)
		}
		log.Debug().Err(reason).Str("port", s.path).Msg("session ended")
	})
}

func (s *session) readLoop() {
	var buf []byte
	for {
		chunk, err := s.port.ReadChunk()
		if err != nil {
			s.die(err)
			return
		}
		if len(chunk) == 0 {
			// idle read timeout; lets a concurrent close take effect
			if s.isDead() {
				return
			}
			continue
		}

		buf = append(buf, chunk...)
		for {
			frame, n, err := protocol.DecodeNext(buf)
			if err != nil {
				s.die(err)
				return
			}
			if n == 0 {
				break
			}
			buf = buf[n:]
			s.handleFrame(frame)
		}
	}
}

func (s *session) handleFrame(frame protocol.Frame) {
	switch frame.Tag {
	case protocol.MsgBoardDump:
		board, err := protocol.DecodeBoard(frame.Payload)
		if err != nil {
			log.Warn().Err(err).Str("port", s.path).Msg("bad board dump")
			return
		}
		s.mu.Lock()
		s.board = board
		s.mu.Unlock()
		if !s.pending.fulfill(correlationKey{tag: protocol.MsgBoardDump}, board) {
			s.emit(events.KindBoard, board)
		}

	case protocol.MsgFieldUpdate:
		square, piece, err := protocol.DecodeFieldUpdate(frame.Payload)
		if err != nil {
			log.Warn().Err(err).Str("port", s.path).Msg("bad field update")
			return
		}
		s.mu.Lock()
		s.board = s.board.Set(square, piece)
		board := s.board
		s.mu.Unlock()
		s.emit(events.KindBoard, board)

	case protocol.MsgVersion:
		version, err := protocol.FormatVersion(frame.Payload)
		if err != nil {
			log.Warn().Err(err).Str("port", s.path).Msg("bad version reply")
			return
		}
		if !s.pending.fulfill(correlationKey{tag: protocol.MsgVersion}, version) {
			log.Debug().Str("version", version).Msg("unsolicited version message")
		}

	case protocol.MsgSerialNr:
		s.fulfillText(protocol.MsgSerialNr, frame.Payload)

	case protocol.MsgLongSerialNr:
		s.fulfillText(protocol.MsgLongSerialNr, frame.Payload)

	case protocol.MsgBWTime:
		s.handleBWTime(frame.Payload)

	default:
		// unknown tags are tolerated for firmware variants
		log.Debug().
			Int("tag", int(frame.Tag)).
			Int("len", len(frame.Payload)).
			Msg("ignoring message with unknown tag")
	}
}

func (s *session) fulfillText(tag byte, payload []byte) {
	value := string(payload)
	if !s.pending.fulfill(correlationKey{tag: tag}, value) {
		log.Debug().Int("tag", int(tag)).Msg("unsolicited text message")
	}
}

func (s *session) handleBWTime(payload []byte) {
	bw, err := protocol.DecodeBWTime(payload)
	if err != nil {
		log.Warn().Err(err).Str("port", s.path).Msg("bad clock message")
		return
	}

	switch bw.Kind {
	case protocol.BWTimeClock:
		s.emit(events.KindClock, bw.Clock)
	case protocol.BWTimeButton:
		s.emit(events.KindButtonPressed, bw.Button)
	case protocol.BWTimeAck:
		key := correlationKey{tag: protocol.MsgBWTime, sub: bw.AckCmd}
		if !s.pending.fulfill(key, bw.AckValue) {
			log.Debug().Int("cmd", int(bw.AckCmd)).Msg("unsolicited clock ack")
		}
	}
}

func (s *session) emit(kind events.Kind, payload any) {
	if s.announced.Load() {
		s.bus.Emit(kind, payload)
	}
}

// send encodes and writes a command, registering the pending entry
// before the write so a fast reply cannot be missed. A write failure
// kills the session.
func (s *session) send(cmd protocol.Command, timeout time.Duration) (*pendingRequest, error) {
	if s.isDead() {
		return nil, ErrSessionDead
	}

	var req *pendingRequest
	if cmd.ExpectsReply {
		key, ok := replyKey(cmd)
		if !ok {
			return nil, fmt.Errorf("command %#02x expects a reply but has no correlation key", cmd.Tag)
		}
		var err error
		req, err = s.pending.register(key, timeout)
		if err != nil {
			return nil, err
		}
	}

	if err := s.port.Write(protocol.Encode(cmd)); err != nil {
		s.die(err)
		return nil, fmt.Errorf("send command %#02x: %w", cmd.Tag, err)
	}
	return req, nil
}

// replyKey maps a command to the correlation key of its expected reply.
func replyKey(cmd protocol.Command) (correlationKey, bool) {
	switch cmd.Tag {
	case protocol.CmdSendBoard:
		return correlationKey{tag: protocol.MsgBoardDump}, true
	case protocol.CmdSendVersion:
		return correlationKey{tag: protocol.MsgVersion}, true
	case protocol.CmdReturnSerialNr:
		return correlationKey{tag: protocol.MsgSerialNr}, true
	case protocol.CmdReturnLongSerialNr:
		return correlationKey{tag: protocol.MsgLongSerialNr}, true
	case protocol.CmdClockMessage:
		if len(cmd.Payload) < 2 {
			return correlationKey{}, false
		}
		return correlationKey{tag: protocol.MsgBWTime, sub: cmd.Payload[1]}, true
	default:
		return correlationKey{}, false
	}
}
