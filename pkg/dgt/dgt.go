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

// Package dgt drives a DGT electronic chessboard and clock over a
// serial link: it discovers the board, keeps the connection alive
// across plug/unplug cycles, and exposes board and clock state as a
// typed event stream plus correlated request/response commands.
package dgt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/9EOR9/godgt/pkg/dgt/events"
	"github.com/9EOR9/godgt/pkg/dgt/protocol"
	"github.com/9EOR9/godgt/pkg/dgt/transport"
)

const (
	defaultCommandTimeout = 3 * time.Second
	defaultProbeTimeout   = 2 * time.Second
	defaultBackoffMin     = 500 * time.Millisecond
	defaultBackoffMax     = 8 * time.Second
)

// Options configures a Driver. PortGlobs is required; everything else
// has working defaults.
type Options struct {
	// PortGlobs are case-insensitive glob patterns matched against
	// device paths and product names, e.g. "/dev/ttyUSB*".
	PortGlobs []string

	// CommandTimeout bounds how long a command waits for its reply
	// once sent. Callers can end the wait earlier through their
	// context.
	CommandTimeout time.Duration

	// ProbeTimeout bounds the version probe used to validate that a
	// matched port actually speaks the DGT protocol.
	ProbeTimeout time.Duration

	// BackoffMin and BackoffMax bound the exponential delay between
	// port scans while searching.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// Clock, Scanner and OpenPort are injection points for tests. Nil
	// values select the real implementations.
	Clock    clockwork.Clock
	Scanner  *transport.Scanner
	OpenPort func(path string) (transport.Port, error)
}

func (o *Options) applyDefaults() {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = defaultCommandTimeout
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaultProbeTimeout
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = defaultBackoffMin
	}
	if o.BackoffMax < o.BackoffMin {
		o.BackoffMax = defaultBackoffMax
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Scanner == nil {
		o.Scanner = transport.NewScanner()
	}
	if o.OpenPort == nil {
		o.OpenPort = func(path string) (transport.Port, error) {
			return transport.Open(path)
		}
	}
}

// Driver supervises the connection to one DGT board. It searches the
// configured ports, validates and opens a session, watches it until it
// dies, and then restarts the search. Commands issued while searching
// wait for the next connection, bounded by the caller's context.
type Driver struct {
	opts Options
	bus  *events.Bus

	mu    sync.Mutex
	sess  *session
	ready chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	started   bool
	closing   bool
}

// New validates opts and returns an unstarted driver. Call Start to
// begin searching for a board.
func New(opts Options) (*Driver, error) {
	if len(opts.PortGlobs) == 0 {
		return nil, errors.New("dgt: at least one port glob is required")
	}
	opts.applyDefaults()

	return &Driver{
		opts:   opts,
		bus:    events.NewBus(),
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// On registers an event handler. Supported kinds and payloads:
// connected (string port path), disconnected (nil), board
// (protocol.Board), button_pressed (int), clock (protocol.Clock).
func (d *Driver) On(kind events.Kind, handler events.Handler) events.Registration {
	return d.bus.On(kind, handler)
}

// Start launches the connection supervisor. The driver runs until
// Close is called or ctx is cancelled; both tear down any active
// session and stop the search permanently. Start is a no-op after the
// first call and after Close.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.closing {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go d.run(ctx)
}

// Connected reports whether a validated session is currently active.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess != nil
}

// Close permanently shuts the driver down. Any active session is torn
// down (emitting disconnected) and every public command issued from now
// on fails with ErrClosed.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closing = true
		sess := d.sess
		started := d.started
		d.mu.Unlock()
		close(d.closed)
		if sess != nil {
			sess.close()
		}
		if !started {
			close(d.done)
		}
	})
	<-d.done
	return nil
}

func (d *Driver) run(ctx context.Context) {
	defer close(d.done)

	log.Info().Strs("globs", d.opts.PortGlobs).Msg("searching for dgt board")

	backoff := d.opts.BackoffMin
	for {
		if d.stopping(ctx) {
			return
		}

		sess, path := d.searchOnce()
		if sess == nil {
			select {
			case <-d.opts.Clock.After(backoff):
			case <-ctx.Done():
				return
			case <-d.closed:
				return
			}
			backoff *= 2
			if backoff > d.opts.BackoffMax {
				backoff = d.opts.BackoffMax
			}
			continue
		}
		backoff = d.opts.BackoffMin

		d.mu.Lock()
		d.sess = sess
		close(d.ready)
		d.mu.Unlock()

		d.bus.Emit(events.KindConnected, path)
		log.Info().Str("port", path).Msg("board connected")

		select {
		case <-sess.dead:
		case <-ctx.Done():
			sess.close()
			<-sess.dead
		case <-d.closed:
			sess.close()
			<-sess.dead
		}

		d.mu.Lock()
		d.sess = nil
		d.ready = make(chan struct{})
		d.mu.Unlock()
	}
}

func (d *Driver) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-d.closed:
		return true
	default:
		return false
	}
}

// searchOnce scans for candidate ports and tries to bring up a
// validated session on each in turn.
func (d *Driver) searchOnce() (*session, string) {
	candidates, err := d.opts.Scanner.Scan(d.opts.PortGlobs)
	if err != nil {
		log.Warn().Err(err).Msg("port scan failed")
		return nil, ""
	}

	for _, cand := range candidates {
		sess, err := d.connect(cand)
		if err != nil {
			log.Debug().Err(err).Str("port", cand.Path).Msg("candidate rejected")
			continue
		}
		return sess, cand.Path
	}
	return nil, ""
}

// connect opens a transport on the candidate and validates the device
// with a version probe before declaring success. A port that matched
// the globs but does not speak the DGT protocol is rejected and the
// search resumes.
func (d *Driver) connect(cand transport.Candidate) (*session, error) {
	port, err := d.opts.OpenPort(cand.Path)
	if err != nil {
		transport.LogPortError(cand.Path, err)
		return nil, err
	}

	sess := startSession(port, cand.Path, d.bus, d.opts.Clock)

	// reset any stale update mode, then probe
	if _, err := sess.send(protocol.Command{Tag: protocol.CmdSendReset}, 0); err != nil {
		sess.close()
		return nil, err
	}

	version, err := d.probe(sess)
	if err != nil {
		sess.close()
		return nil, fmt.Errorf("protocol probe on %s: %w", cand.Path, err)
	}
	log.Debug().Str("port", cand.Path).Str("version", version).Msg("board answered version probe")

	// board pushes field updates and clock times from here on
	if _, err := sess.send(protocol.Command{Tag: protocol.CmdSendUpdateNice}, 0); err != nil {
		sess.close()
		return nil, err
	}

	sess.announced.Store(true)
	return sess, nil
}

func (d *Driver) probe(sess *session) (string, error) {
	req, err := sess.send(protocol.Command{Tag: protocol.CmdSendVersion, ExpectsReply: true}, d.opts.ProbeTimeout)
	if err != nil {
		return "", err
	}
	value, err := sess.pending.await(context.Background(), req)
	if err != nil {
		return "", err
	}
	version, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected probe reply type %T", value)
	}
	return version, nil
}

// awaitSession blocks until a validated session is available, ctx ends,
// or the driver is closed. How long to wait for a connection is the
// caller's decision, expressed through ctx.
func (d *Driver) awaitSession(ctx context.Context) (*session, error) {
	for {
		select {
		case <-d.closed:
			return nil, ErrClosed
		default:
		}

		d.mu.Lock()
		sess, ready := d.sess, d.ready
		d.mu.Unlock()
		if sess != nil {
			return sess, nil
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.closed:
			return nil, ErrClosed
		}
	}
}

// request sends a correlated command on the active session and awaits
// its decoded reply.
func (d *Driver) request(ctx context.Context, cmd protocol.Command) (any, error) {
	sess, err := d.awaitSession(ctx)
	if err != nil {
		return nil, err
	}
	req, err := sess.send(cmd, d.opts.CommandTimeout)
	if err != nil {
		return nil, err
	}
	return sess.pending.await(ctx, req)
}

func (d *Driver) requestString(ctx context.Context, cmd protocol.Command) (string, error) {
	value, err := d.request(ctx, cmd)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected reply type %T", value)
	}
	return s, nil
}

// GetVersion returns the board firmware version as "major.minor".
func (d *Driver) GetVersion(ctx context.Context) (string, error) {
	return d.requestString(ctx, protocol.Command{Tag: protocol.CmdSendVersion, ExpectsReply: true})
}

// GetSerialNumber returns the board's short serial number.
func (d *Driver) GetSerialNumber(ctx context.Context) (string, error) {
	return d.requestString(ctx, protocol.Command{Tag: protocol.CmdReturnSerialNr, ExpectsReply: true})
}

// GetLongSerialNumber returns the board's long serial number.
func (d *Driver) GetLongSerialNumber(ctx context.Context) (string, error) {
	return d.requestString(ctx, protocol.Command{Tag: protocol.CmdReturnLongSerialNr, ExpectsReply: true})
}

// GetBoard requests a full occupancy dump.
func (d *Driver) GetBoard(ctx context.Context) (protocol.Board, error) {
	value, err := d.request(ctx, protocol.Command{Tag: protocol.CmdSendBoard, ExpectsReply: true})
	if err != nil {
		return protocol.Board{}, err
	}
	board, ok := value.(protocol.Board)
	if !ok {
		return protocol.Board{}, fmt.Errorf("unexpected reply type %T", value)
	}
	return board, nil
}

// GetClockVersion returns the clock firmware version as "major.minor".
// Boards without an attached clock never acknowledge; bound the wait
// with a context deadline shorter than the command timeout if needed.
func (d *Driver) GetClockVersion(ctx context.Context) (string, error) {
	value, err := d.request(ctx, protocol.ClockVersionCommand())
	if err != nil {
		return "", err
	}
	b, ok := value.(byte)
	if !ok {
		return "", fmt.Errorf("unexpected reply type %T", value)
	}
	return protocol.FormatClockVersion(b), nil
}

// ClockBeep makes the clock beep for the given duration.
func (d *Driver) ClockBeep(ctx context.Context, duration time.Duration) error {
	_, err := d.request(ctx, protocol.ClockBeepCommand(duration))
	return err
}

// ClockSet sets both clock times and starts or stops each side.
func (d *Driver) ClockSet(ctx context.Context, left, right time.Duration, leftRunning, rightRunning bool) error {
	_, err := d.request(ctx, protocol.ClockSetCommand(left, right, leftRunning, rightRunning))
	return err
}

// ClockText displays up to 8 ASCII characters on the clock.
func (d *Driver) ClockText(ctx context.Context, text string) error {
	_, err := d.request(ctx, protocol.ClockTextCommand(text))
	return err
}
