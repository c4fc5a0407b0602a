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
	"fmt"
	"strconv"
	"strings"
)

// Board is a snapshot of square occupancy as reported by the board.
// Squares are indexed the way the board sends them: index 0 is a8,
// index 7 is h8, index 63 is h1. Values are raw piece codes; the driver
// does not validate positions.
type Board struct {
	Squares [64]byte
}

// DecodeBoard decodes a full board dump payload.
func DecodeBoard(payload []byte) (Board, error) {
	var b Board
	if len(payload) != len(b.Squares) {
		return Board{}, fmt.Errorf("board dump payload is %d bytes, want %d", len(payload), len(b.Squares))
	}
	copy(b.Squares[:], payload)
	return b, nil
}

// DecodeFieldUpdate decodes a single square change. The board sends
// these continuously while an update mode is active.
func DecodeFieldUpdate(payload []byte) (square int, piece byte, err error) {
	if len(payload) != 2 {
		return 0, 0, fmt.Errorf("field update payload is %d bytes, want 2", len(payload))
	}
	square = int(payload[0])
	if square >= 64 {
		return 0, 0, fmt.Errorf("field update for square %d out of range", square)
	}
	return square, payload[1], nil
}

// Set returns a copy of the board with one square replaced.
func (b Board) Set(square int, piece byte) Board {
	b.Squares[square] = piece
	return b
}

// FEN serializes the occupancy as the board-layout field of a FEN
// string: rank 8 down to rank 1, empty squares run-length compressed.
// There is no side-to-move or castling information, only occupancy.
func (b Board) FEN() string {
	var sb strings.Builder
	for rank := 0; rank < 8; rank++ {
		if rank > 0 {
			sb.WriteByte('/')
		}
		empty := 0
		for file := 0; file < 8; file++ {
			c, ok := pieceChars[b.Squares[rank*8+file]]
			if !ok {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteByte(c)
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
	}
	return sb.String()
}

// String renders an 8x8 diagram with one character per square, for
// human-readable event output.
func (b Board) String() string {
	var sb strings.Builder
	for rank := 0; rank < 8; rank++ {
		if rank > 0 {
			sb.WriteByte('\n')
		}
		for file := 0; file < 8; file++ {
			if file > 0 {
				sb.WriteByte(' ')
			}
			code := b.Squares[rank*8+file]
			switch c, ok := pieceChars[code]; {
			case ok:
				sb.WriteByte(c)
			case code == PieceEmpty:
				sb.WriteByte('.')
			default:
				sb.WriteByte('?')
			}
		}
	}
	return sb.String()
}
