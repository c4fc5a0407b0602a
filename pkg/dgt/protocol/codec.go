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

package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed reports an unrecoverable desync on the incoming byte
// stream. The DGT protocol has no in-band resync primitive, so the only
// recovery is closing the connection and reconnecting.
var ErrMalformed = errors.New("malformed dgt message stream")

// headerLen is the size of the incoming message envelope: tag byte plus
// two 7-bit length bytes. The declared length counts the header itself.
const headerLen = 3

// maxMessageLen is the largest length the two 7-bit bytes can declare.
const maxMessageLen = 0x3fff

// Frame is a single message received from the board: a tag (stored
// without MessageBit) and its payload. Unknown tags are preserved
// opaquely to tolerate firmware variants.
type Frame struct {
	Payload []byte
	Tag     byte
}

// Command is a request to the board. Commands with a payload are clock
// messages wrapped in the CmdClockMessage envelope. ExpectsReply marks
// commands that are answered with a correlated message.
type Command struct {
	Payload      []byte
	Tag          byte
	ExpectsReply bool
}

// DecodeNext scans buf for the next complete message. It returns the
// decoded frame and the number of bytes consumed. If buf does not yet
// hold a complete message it returns a zero consumed count and no error,
// so the caller can retry once more bytes arrive; no bytes are ever
// consumed for a message that cannot be fully interpreted. A tag byte
// without MessageBit set, or a declared length smaller than the header,
// is a desync and returns ErrMalformed.
func DecodeNext(buf []byte) (Frame, int, error) {
	if len(buf) < headerLen {
		return Frame{}, 0, nil
	}

	tag := buf[0]
	if tag&MessageBit == 0 {
		return Frame{}, 0, fmt.Errorf("%w: tag byte %#02x without message bit", ErrMalformed, tag)
	}
	if buf[1]&MessageBit != 0 || buf[2]&MessageBit != 0 {
		return Frame{}, 0, fmt.Errorf("%w: length byte with message bit set", ErrMalformed)
	}

	length := int(buf[1]&0x7f)<<7 | int(buf[2]&0x7f)
	if length < headerLen {
		return Frame{}, 0, fmt.Errorf("%w: declared length %d below header size", ErrMalformed, length)
	}
	if len(buf) < length {
		return Frame{}, 0, nil
	}

	payload := make([]byte, length-headerLen)
	copy(payload, buf[headerLen:length])

	return Frame{
		Tag:     tag &^ MessageBit,
		Payload: payload,
	}, length, nil
}

// EncodeFrame rebuilds the wire form of a received frame. For any
// well-formed message m, EncodeFrame(DecodeNext(m)) == m.
func EncodeFrame(f Frame) []byte {
	length := headerLen + len(f.Payload)
	out := make([]byte, 0, length)
	out = append(out, f.Tag|MessageBit)
	out = append(out, byte(length>>7)&0x7f, byte(length)&0x7f)
	out = append(out, f.Payload...)
	return out
}

// Encode serializes an outgoing command. Plain commands are a single tag
// byte. Commands with a payload carry a one-byte size after the tag, the
// envelope used by clock messages.
func Encode(cmd Command) []byte {
	if len(cmd.Payload) == 0 {
		return []byte{cmd.Tag}
	}
	out := make([]byte, 0, 2+len(cmd.Payload))
	out = append(out, cmd.Tag, byte(len(cmd.Payload)))
	out = append(out, cmd.Payload...)
	return out
}

// clockCommand wraps a clock command code and its arguments in the
// CmdClockMessage envelope: start byte, code, arguments, end byte.
func clockCommand(code byte, args ...byte) Command {
	payload := make([]byte, 0, 3+len(args))
	payload = append(payload, ClockStartMessage, code)
	payload = append(payload, args...)
	payload = append(payload, ClockEndMessage)
	return Command{
		Tag:          CmdClockMessage,
		Payload:      payload,
		ExpectsReply: true,
	}
}
