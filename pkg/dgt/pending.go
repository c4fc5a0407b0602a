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
	"time"

	"github.com/jonboulle/clockwork"
)

// correlationKey matches a reply frame to the command that requested
// it: the expected reply tag, plus the clock command code for BWTime
// acknowledgements since all clock replies share one tag.
type correlationKey struct {
	tag byte
	sub byte
}

type pendingResult struct {
	value any
	err   error
}

// pendingRequest is one in-flight command awaiting its reply.
type pendingRequest struct {
	timer clockwork.Timer
	ch    chan pendingResult
	key   correlationKey
}

// pendingTable correlates outgoing commands with their replies. Keys
// are unique at any instant; registering a key that is already pending
// fails fast rather than silently replacing the prior request.
type pendingTable struct {
	clock   clockwork.Clock
	entries map[correlationKey]*pendingRequest
	mu      sync.Mutex
}

func newPendingTable(clock clockwork.Clock) *pendingTable {
	return &pendingTable{
		clock:   clock,
		entries: make(map[correlationKey]*pendingRequest),
	}
}

func (t *pendingTable) register(key correlationKey, timeout time.Duration) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; exists {
		return nil, fmt.Errorf("%w: tag %#02x sub %#02x", ErrDuplicateRequest, key.tag, key.sub)
	}

	req := &pendingRequest{
		key:   key,
		ch:    make(chan pendingResult, 1),
		timer: t.clock.NewTimer(timeout),
	}
	t.entries[key] = req
	return req, nil
}

// fulfill resolves the request registered under key, if any, and
// reports whether one was waiting. Unmatched replies are unsolicited
// and handled by the caller.
func (t *pendingTable) fulfill(key correlationKey, value any) bool {
	t.mu.Lock()
	req, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	req.timer.Stop()
	req.ch <- pendingResult{value: value}
	return true
}

// failAll resolves every outstanding request with err in one sweep, so
// no caller is left waiting when the session dies.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[correlationKey]*pendingRequest)
	t.mu.Unlock()

	for _, req := range entries {
		req.timer.Stop()
		req.ch <- pendingResult{err: err}
	}
}

func (t *pendingTable) remove(key correlationKey) {
	t.mu.Lock()
	if req, ok := t.entries[key]; ok {
		delete(t.entries, key)
		req.timer.Stop()
	}
	t.mu.Unlock()
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// await blocks until the request resolves, its deadline passes, or ctx
// is cancelled. Timeout and cancellation remove the entry but never
// affect the session or other pending requests.
func (t *pendingTable) await(ctx context.Context, req *pendingRequest) (any, error) {
	select {
	case res := <-req.ch:
		return res.value, res.err
	case <-req.timer.Chan():
		t.remove(req.key)
		// a reply may have raced the deadline
		select {
		case res := <-req.ch:
			return res.value, res.err
		default:
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		t.remove(req.key)
		return nil, ctx.Err()
	}
}
