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
	"time"
)

// Clock status flag bits in the last byte of a BWTime message.
const (
	ClockFlagRightRunning = 0x01
	ClockFlagBatteryLow   = 0x04
	ClockFlagLeftRunning  = 0x08
)

// Clock is a snapshot of the DGT clock state. Flags preserves the raw
// status byte for indicator bits not broken out into fields.
type Clock struct {
	Left         time.Duration
	Right        time.Duration
	LeftRunning  bool
	RightRunning bool
	BatteryLow   bool
	Flags        byte
}

func (c Clock) String() string {
	running := func(on bool) string {
		if on {
			return "*"
		}
		return " "
	}
	return fmt.Sprintf("%s%s - %s%s",
		formatClockTime(c.Left), running(c.LeftRunning),
		formatClockTime(c.Right), running(c.RightRunning))
}

func formatClockTime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// BWTimeKind discriminates the three payload forms multiplexed on the
// MsgBWTime tag.
type BWTimeKind int

const (
	// BWTimeClock is an unsolicited clock time update.
	BWTimeClock BWTimeKind = iota
	// BWTimeAck acknowledges a clock command sent by the host.
	BWTimeAck
	// BWTimeButton reports a clock button press.
	BWTimeButton
)

// BWTime is a decoded MsgBWTime payload.
type BWTime struct {
	Clock    Clock      // valid when Kind is BWTimeClock
	Kind     BWTimeKind
	AckCmd   byte // echoed clock command code when Kind is BWTimeAck
	AckValue byte // command-specific value, e.g. the version byte
	Button   int  // pressed button number when Kind is BWTimeButton
}

// ack marker in the low nibble of the hour bytes
const bwTimeAckNibble = 0x0a

// buttonAck is the echo code the clock uses for button press reports.
const buttonAck = 0x08

// DecodeBWTime decodes the 7-byte BWTime payload. Byte layout: right
// hours (low nibble), right minutes and seconds in BCD, the same three
// bytes for the left player, then a status flag byte. When the low
// nibble of either hour byte is 0x0a the message is instead a clock
// command acknowledgement carried in 7-bit fields.
func DecodeBWTime(payload []byte) (BWTime, error) {
	if len(payload) != 7 {
		return BWTime{}, fmt.Errorf("bwtime payload is %d bytes, want 7", len(payload))
	}

	if payload[0]&0x0f == bwTimeAckNibble || payload[3]&0x0f == bwTimeAckNibble {
		cmd := payload[2] & 0x7f
		if cmd == buttonAck {
			return BWTime{
				Kind:   BWTimeButton,
				Button: int(payload[5] & 0x7f),
			}, nil
		}
		return BWTime{
			Kind:     BWTimeAck,
			AckCmd:   cmd,
			AckValue: payload[4] & 0x7f,
		}, nil
	}

	right, err := decodeClockTime(payload[0:3])
	if err != nil {
		return BWTime{}, err
	}
	left, err := decodeClockTime(payload[3:6])
	if err != nil {
		return BWTime{}, err
	}

	flags := payload[6]
	return BWTime{
		Kind: BWTimeClock,
		Clock: Clock{
			Left:         left,
			Right:        right,
			LeftRunning:  flags&ClockFlagLeftRunning != 0,
			RightRunning: flags&ClockFlagRightRunning != 0,
			BatteryLow:   flags&ClockFlagBatteryLow != 0,
			Flags:        flags,
		},
	}, nil
}

func decodeClockTime(b []byte) (time.Duration, error) {
	hours := int(b[0] & 0x0f)
	minutes, err := fromBCD(b[1])
	if err != nil {
		return 0, err
	}
	seconds, err := fromBCD(b[2])
	if err != nil {
		return 0, err
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}

func fromBCD(b byte) (int, error) {
	hi := int(b >> 4)
	lo := int(b & 0x0f)
	if hi > 9 || lo > 9 {
		return 0, fmt.Errorf("invalid BCD byte %#02x", b)
	}
	return hi*10 + lo, nil
}

// splitHMS breaks a duration into the hour/minute/second bytes used by
// clock set commands. Durations are clamped to the clock's 9:59:59
// display maximum.
func splitHMS(d time.Duration) (h, m, s byte) {
	if d < 0 {
		d = 0
	}
	if max := 9*time.Hour + 59*time.Minute + 59*time.Second; d > max {
		d = max
	}
	d = d.Round(time.Second)
	return byte(d / time.Hour),
		byte((d % time.Hour) / time.Minute),
		byte((d % time.Minute) / time.Second)
}

// ClockBeepCommand makes the clock beep for the given duration, encoded
// in 1/64th second units.
func ClockBeepCommand(d time.Duration) Command {
	ticks := int64(d / (time.Second / 64))
	if ticks < 1 {
		ticks = 1
	}
	if ticks > 0xff {
		ticks = 0xff
	}
	return clockCommand(ClockCmdBeep, byte(ticks))
}

// ClockSetCommand sets both clock times and which sides are counting.
func ClockSetCommand(left, right time.Duration, leftRunning, rightRunning bool) Command {
	lh, lm, ls := splitHMS(left)
	rh, rm, rs := splitHMS(right)
	var flags byte
	if leftRunning {
		flags |= ClockFlagLeftRunning
	}
	if rightRunning {
		flags |= ClockFlagRightRunning
	}
	return clockCommand(ClockCmdSetNRun, lh, lm, ls, rh, rm, rs, flags)
}

// ClockTextCommand displays up to 8 ASCII characters on the clock.
// Shorter text is space padded; longer text is truncated. Bytes outside
// printable ASCII are replaced with spaces.
func ClockTextCommand(text string) Command {
	display := make([]byte, 8)
	for i := range display {
		display[i] = ' '
	}
	for i := 0; i < len(text) && i < len(display); i++ {
		if c := text[i]; c >= 0x20 && c < 0x7f {
			display[i] = c
		}
	}
	return clockCommand(ClockCmdASCII, display...)
}

// ClockVersionCommand asks the clock for its firmware version.
func ClockVersionCommand() Command {
	return clockCommand(ClockCmdVersion)
}

// FormatVersion renders the two-byte version payload of a MsgVersion
// message as "major.minor".
func FormatVersion(payload []byte) (string, error) {
	if len(payload) != 2 {
		return "", fmt.Errorf("version payload is %d bytes, want 2", len(payload))
	}
	return fmt.Sprintf("%d.%d", payload[0], payload[1]), nil
}

// FormatClockVersion renders the version byte of a clock version ack,
// major in the high nibble and minor in the low nibble.
func FormatClockVersion(value byte) string {
	return fmt.Sprintf("%d.%d", value>>4, value&0x0f)
}
