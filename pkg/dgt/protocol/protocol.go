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

// Package protocol implements the DGT electronic board wire protocol:
// the frame codec for the serial byte stream and the pure decoders for
// board and clock payloads.
package protocol

// Command tags sent from the host to the board, per the DGT Projects
// "Electronic Chess Board" serial protocol description.
const (
	CmdSendReset          = 0x40 // reset board, stops update modes
	CmdSendClock          = 0x41 // request a single clock message
	CmdSendBoard          = 0x42 // request a full board dump
	CmdSendUpdate         = 0x43 // board + clock update mode (bus mode)
	CmdSendUpdateBoard    = 0x44 // board-only update mode
	CmdReturnSerialNr     = 0x45 // request short serial number
	CmdReturnBusAddress   = 0x46
	CmdSendTrademark      = 0x47
	CmdSendEEMoves        = 0x49
	CmdSendUpdateNice     = 0x4b // update mode: field updates + clock times
	CmdSendBatteryStatus  = 0x4c
	CmdSendVersion        = 0x4d // request firmware version
	CmdReturnLongSerialNr = 0x55 // request long serial number
	CmdSetLEDs            = 0x60 // Revelation II only
	CmdClockMessage       = 0x2b // envelope for all clock commands
)

// Clock command codes carried inside a CmdClockMessage envelope. The
// clock acknowledges each command with a BWTime message echoing the code.
const (
	ClockStartMessage = 0x03
	ClockEndMessage   = 0x00

	ClockCmdDisplay = 0x01
	ClockCmdIcons   = 0x02
	ClockCmdEnd     = 0x03
	ClockCmdButton  = 0x08
	ClockCmdVersion = 0x09
	ClockCmdSetNRun = 0x0a
	ClockCmdBeep    = 0x0b
	ClockCmdASCII   = 0x0c // 8 character text on DGT 3000 / Revelation II
)

// MessageBit is set on the tag byte of every message sent by the board.
// Host-to-board command tags never have it set, which is how the codec
// detects desync on the incoming stream.
const MessageBit = 0x80

// Message tags received from the board, stored without MessageBit.
const (
	MsgNone         = 0x00
	MsgBoardDump    = 0x06
	MsgBWTime       = 0x0d // clock times, clock acks and button presses
	MsgFieldUpdate  = 0x0e
	MsgEEMoves      = 0x0f
	MsgBusAddress   = 0x10
	MsgSerialNr     = 0x11
	MsgTrademark    = 0x12
	MsgVersion      = 0x13
	MsgBatteryInfo  = 0x20
	MsgLongSerialNr = 0x22
)

// Piece codes used in board dumps and field updates.
const (
	PieceEmpty       = 0x00
	PieceWhitePawn   = 0x01
	PieceWhiteRook   = 0x02
	PieceWhiteKnight = 0x03
	PieceWhiteBishop = 0x04
	PieceWhiteKing   = 0x05
	PieceWhiteQueen  = 0x06
	PieceBlackPawn   = 0x07
	PieceBlackRook   = 0x08
	PieceBlackKnight = 0x09
	PieceBlackBishop = 0x0a
	PieceBlackKing   = 0x0b
	PieceBlackQueen  = 0x0c
)

// pieceChars maps piece codes to their FEN letters. Codes outside the
// table render as "?" in diagrams and are treated as empty in FEN output.
var pieceChars = map[byte]byte{
	PieceWhitePawn:   'P',
	PieceWhiteRook:   'R',
	PieceWhiteKnight: 'N',
	PieceWhiteBishop: 'B',
	PieceWhiteKing:   'K',
	PieceWhiteQueen:  'Q',
	PieceBlackPawn:   'p',
	PieceBlackRook:   'r',
	PieceBlackKnight: 'n',
	PieceBlackBishop: 'b',
	PieceBlackKing:   'k',
	PieceBlackQueen:  'q',
}
