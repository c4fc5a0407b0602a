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
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Candidate is an attached serial device that matched the configured
// patterns. Produced during (re)connection search and consumed
// immediately by the connection attempt.
type Candidate struct {
	Path string
	Name string
	VID  string
	PID  string
}

func (c Candidate) String() string {
	if c.Name == "" {
		return c.Path
	}
	return fmt.Sprintf("%s (%s)", c.Path, c.Name)
}

// Enumerate lists the serial devices currently attached to the system.
// Injectable so scans can be tested without hardware.
type Enumerate func() ([]*enumerator.PortDetails, error)

// Scanner filters attached serial devices against glob patterns.
type Scanner struct {
	enumerate Enumerate
}

// NewScanner returns a scanner backed by the system port list.
func NewScanner() *Scanner {
	return NewScannerWith(enumerator.GetDetailedPortsList)
}

// NewScannerWith returns a scanner using a custom enumeration source.
func NewScannerWith(enumerate Enumerate) *Scanner {
	return &Scanner{enumerate: enumerate}
}

// Scan lists attached devices whose path or product name matches one of
// the glob patterns, case-insensitively. An empty pattern list matches
// nothing. Results are sorted by path so repeated scans are stable.
func (s *Scanner) Scan(patterns []string) ([]Candidate, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	ports, err := s.enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	var matches []Candidate
	for _, port := range ports {
		ok, err := matchesAny(patterns, port.Name, port.Product)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		matches = append(matches, Candidate{
			Path: port.Name,
			Name: port.Product,
			VID:  port.VID,
			PID:  port.PID,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Path < matches[j].Path
	})
	return matches, nil
}

func matchesAny(patterns []string, path, name string) (bool, error) {
	path = strings.ToLower(path)
	name = strings.ToLower(name)
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		for _, subject := range []string{path, name} {
			if subject == "" {
				continue
			}
			ok, err := filepath.Match(pattern, subject)
			if err != nil {
				return false, fmt.Errorf("bad port pattern %q: %w", pattern, err)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}
