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

// Package config loads the optional TOML configuration file used by the
// command line harness.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// LogFile is the name of the rotating log file inside the log directory.
const LogFile = "godgt.log"

// Values is the on-disk configuration. Flags and arguments given on the
// command line take precedence over everything here.
type Values struct {
	// PortGlobs are the default port patterns used when none are given
	// on the command line.
	PortGlobs []string `toml:"port_globs,omitempty,multiline"`

	// CommandTimeout bounds how long each board command waits for its
	// reply, e.g. "3s".
	CommandTimeout duration `toml:"command_timeout,omitempty"`

	// ScanBackoffMin and ScanBackoffMax bound the delay between port
	// scans while searching for a board.
	ScanBackoffMin duration `toml:"scan_backoff_min,omitempty"`
	ScanBackoffMax duration `toml:"scan_backoff_max,omitempty"`

	DebugLogging bool `toml:"debug_logging"`
}

// duration parses TOML strings like "500ms" into a time.Duration.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// BaseDefaults is the configuration used when no file exists.
var BaseDefaults = Values{
	CommandTimeout: duration(3 * time.Second),
	ScanBackoffMin: duration(500 * time.Millisecond),
	ScanBackoffMax: duration(8 * time.Second),
}

// Load reads the configuration file at path, layered over
// BaseDefaults. A missing file is not an error.
func Load(path string) (Values, error) {
	values := BaseDefaults

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return values, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &values); err != nil {
		return values, fmt.Errorf("parse config file: %w", err)
	}
	return values, nil
}
