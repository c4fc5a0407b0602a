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

// Package events provides the typed publish/subscribe bus for board
// notifications delivered to registered handlers.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind identifies a notification type on the bus.
type Kind string

const (
	// KindConnected fires with the port path (string) when a board
	// connection is established and validated.
	KindConnected Kind = "connected"
	// KindDisconnected fires with a nil payload when the connection is
	// lost or closed.
	KindDisconnected Kind = "disconnected"
	// KindBoard fires with a protocol.Board on every occupancy change.
	KindBoard Kind = "board"
	// KindButtonPressed fires with the button number (int) when a clock
	// button is pressed.
	KindButtonPressed Kind = "button_pressed"
	// KindClock fires with a protocol.Clock on every clock time update.
	KindClock Kind = "clock"
)

// Handler receives the payload of an emitted event.
type Handler func(payload any)

type entry struct {
	handler Handler
	id      int
}

// Bus dispatches events synchronously to handlers in registration
// order. A panicking handler does not stop dispatch to the rest.
type Bus struct {
	handlers map[Kind][]entry
	mu       sync.RWMutex
	nextID   int
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Kind][]entry),
	}
}

// Registration identifies one registered handler so it can be removed.
type Registration struct {
	bus  *Bus
	kind Kind
	id   int
}

// On registers a handler for an event kind. Multiple handlers per kind
// are supported and invoked in registration order.
func (b *Bus) On(kind Kind, handler Handler) Registration {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], entry{handler: handler, id: id})

	return Registration{bus: b, kind: kind, id: id}
}

// Off removes the handler. Safe to call more than once.
func (r Registration) Off() {
	if r.bus == nil {
		return
	}
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()

	entries := r.bus.handlers[r.kind]
	for i, e := range entries {
		if e.id == r.id {
			r.bus.handlers[r.kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler currently registered for kind, in
// registration order, on the calling goroutine.
func (b *Bus) Emit(kind Kind, payload any) {
	b.mu.RLock()
	entries := make([]entry, len(b.handlers[kind]))
	copy(entries, b.handlers[kind])
	b.mu.RUnlock()

	for _, e := range entries {
		dispatch(kind, e, payload)
	}
}

func dispatch(kind Kind, e entry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(kind)).
				Int("handler_id", e.id).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	e.handler(payload)
}
