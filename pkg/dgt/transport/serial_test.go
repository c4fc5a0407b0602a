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

package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDisconnectError(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unplugged device", errors.New("read /dev/ttyUSB0: no such device"), true},
		{"io error", errors.New("Input/Output Error"), true},
		{"macos unplug", errors.New("device not configured"), true},
		{"broken pipe", fmt.Errorf("write failed: %w", errors.New("broken pipe")), true},
		{"permission", errors.New("permission denied"), false},
		{"unrelated", errors.New("context deadline exceeded"), false},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsDisconnectError(tt.err))
		})
	}
}

func TestOpenMissingPort(t *testing.T) {
	t.Parallel()

	_, err := Open("/dev/nonexistent-dgt-port")
	assert.ErrorIs(t, err, ErrUnavailable)
}
