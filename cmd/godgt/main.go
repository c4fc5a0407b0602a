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

// Command godgt connects to a DGT electronic chessboard, prints every
// board and clock event, and demonstrates the command surface.
//
// Usage:
//
//	godgt [--debug] [--config FILE] <port-glob> [<port-glob> ...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
	"golang.org/x/sync/errgroup"

	"github.com/9EOR9/godgt/pkg/config"
	"github.com/9EOR9/godgt/pkg/dgt"
	"github.com/9EOR9/godgt/pkg/dgt/events"
	"github.com/9EOR9/godgt/pkg/dgt/protocol"
	"github.com/9EOR9/godgt/pkg/helpers"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: godgt [--debug] [--config FILE] <port-glob> [<port-glob> ...]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "  <port-glob>")
	fmt.Fprintln(os.Stderr, "    The serial port with the DGT board, e.g. /dev/ttyUSB0.")

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil || len(ports) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "    Probably one of:")
	for _, port := range ports {
		if port.Product != "" {
			fmt.Fprintf(os.Stderr, "    * %s (%s)\n", port.Name, port.Product)
		} else {
			fmt.Fprintf(os.Stderr, "    * %s\n", port.Name)
		}
	}
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	configPath := flag.String("config", "godgt.toml", "path to config file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %s\n", err)
		os.Exit(1)
	}

	globs := flag.Args()
	if len(globs) == 0 {
		globs = cfg.PortGlobs
	}
	if len(globs) == 0 {
		usage()
		os.Exit(1)
	}

	if err := run(cfg, globs, *debug || cfg.DebugLogging); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Values, globs []string, debug bool) error {
	if err := helpers.InitLogging("logs", debug,
		zerolog.ConsoleWriter{Out: os.Stderr}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	driver, err := dgt.New(dgt.Options{
		PortGlobs:      globs,
		CommandTimeout: cfg.CommandTimeout.Duration(),
		BackoffMin:     cfg.ScanBackoffMin.Duration(),
		BackoffMax:     cfg.ScanBackoffMax.Duration(),
	})
	if err != nil {
		return err
	}

	driver.On(events.KindConnected, func(payload any) {
		fmt.Printf("Board connected to %s!\n", payload)
	})
	driver.On(events.KindDisconnected, func(any) {
		fmt.Println("Board disconnected!")
	})
	driver.On(events.KindBoard, func(payload any) {
		board, ok := payload.(protocol.Board)
		if !ok {
			return
		}
		fmt.Println("Position changed:")
		fmt.Println(board)
	})
	driver.On(events.KindButtonPressed, func(payload any) {
		fmt.Printf("Button %v pressed!\n", payload)
	})
	driver.On(events.KindClock, func(payload any) {
		fmt.Println("Clock status changed:", payload)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver.Start(ctx)
	defer func() {
		if err := driver.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing driver")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		demo(gctx, driver)
		return nil
	})

	fmt.Println("Running event loop ... Press Ctrl+C to exit.")
	<-ctx.Done()
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("Shutting down.")
	return nil
}

// demo exercises the command surface once a board shows up, mirroring
// what a chess GUI would do on startup.
func demo(ctx context.Context, driver *dgt.Driver) {
	report := func(name, value string, err error) {
		switch {
		case err == nil:
			fmt.Printf("%s: %s\n", name, value)
		case errors.Is(err, context.Canceled):
		default:
			fmt.Printf("%s failed: %s\n", name, err)
		}
	}

	version, err := driver.GetVersion(ctx)
	report("Version", version, err)
	serial, err := driver.GetSerialNumber(ctx)
	report("Serial", serial, err)
	longSerial, err := driver.GetLongSerialNumber(ctx)
	report("Long serial", longSerial, err)

	board, err := driver.GetBoard(ctx)
	if err == nil {
		fmt.Println("Board:", board.FEN())
	} else if !errors.Is(err, context.Canceled) {
		fmt.Println("Board request failed:", err)
	}

	clockCtx, cancel := context.WithTimeout(ctx, time.Second)
	clockVersion, err := driver.GetClockVersion(clockCtx)
	cancel()
	report("Clock version", clockVersion, err)

	fmt.Println("Displaying text ...")
	quote := "Now, I am become death, the destroyer of worlds. Ready"
	displaySentence(ctx, driver, quote)

	fmt.Println("Beep ...")
	beepCtx, cancel := context.WithTimeout(ctx, time.Second)
	if err := driver.ClockBeep(beepCtx, 100*time.Millisecond); err != nil &&
		!errors.Is(err, context.Canceled) {
		fmt.Println("Beep not acknowledged:", err)
	}
	cancel()

	fmt.Println("Countdown ...")
	setCtx, cancel := context.WithTimeout(ctx, time.Second)
	if err := driver.ClockSet(setCtx, 10*time.Second, 7*time.Second, true, false); err != nil &&
		!errors.Is(err, context.Canceled) {
		fmt.Println("Clock does not respond:", err)
	}
	cancel()
}

// displaySentence shows a sentence on the clock one word at a time.
func displaySentence(ctx context.Context, driver *dgt.Driver, sentence string) {
	for _, word := range strings.Fields(sentence) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}

		wordCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		if err := driver.ClockText(wordCtx, word); err != nil &&
			!errors.Is(err, context.Canceled) {
			fmt.Println("Sending clock text failed:", err)
		}
		cancel()
	}
}
