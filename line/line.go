// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package line owns the AFC data line and the cable switch line.
//
// The data line is bidirectional: the engine drives it while sending and
// releases it to listen for the adapter. The direction is always set
// explicitly before a read or a write, and only while the line is claimed.
package line

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Dir is the configured direction of the data line.
type Dir uint8

const (
	DirNotSet Dir = iota
	DirInput
	DirOutput
)

func (d Dir) String() string {
	switch d {
	case DirInput:
		return "Input"
	case DirOutput:
		return "Output"
	default:
		return "NotSet"
	}
}

// Pin control state names.
const (
	StateActive = "active"
	StateSleep  = "sleep"
)

// PinCtrl selects the electrical configuration of the data pin.
//
// "active" is selected before driving the line and "sleep" before listening.
type PinCtrl interface {
	Select(state string) error
}

// Errors.
var (
	ErrNotClaimed = errors.New("line: not claimed")
	ErrClaimed    = errors.New("line: already claimed")
	ErrDirection  = errors.New("line: wrong direction")
)

// Line is the AFC data line plus the cable switch.
type Line struct {
	data   gpio.PinIO
	sw     gpio.PinOut
	ctrl   PinCtrl
	logger *slog.Logger

	mu      sync.Mutex
	claimed bool
	dir     Dir
	level   gpio.Level
}

// New returns a Line driving data and sw.
//
// ctrl may be nil when the pin has no pin control. sw may be nil when the
// cable path is hard wired.
func New(data gpio.PinIO, sw gpio.PinOut, ctrl PinCtrl, logger *slog.Logger) *Line {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Line{data: data, sw: sw, ctrl: ctrl, logger: logger}
}

// String implements conn.Resource.
func (l *Line) String() string {
	return "afc(" + l.data.Name() + ")"
}

// Claim takes exclusive ownership of the data line.
func (l *Line) Claim() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimed {
		return ErrClaimed
	}
	l.claimed = true
	return nil
}

// Release parks the data line LOW as an output and gives up ownership.
//
// It is safe to call on a line that is not claimed.
func (l *Line) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.outputLocked(gpio.Low)
	l.claimed = false
	return err
}

// Claimed reports whether the line is owned by a session.
func (l *Line) Claimed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimed
}

// Dir returns the last direction set.
func (l *Line) Dir() Dir {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir
}

// Output switches the data line to output at level.
func (l *Line) Output(level gpio.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.claimed {
		return ErrNotClaimed
	}
	return l.outputLocked(level)
}

// Input releases the data line so the adapter can drive it.
func (l *Line) Input() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.claimed {
		return ErrNotClaimed
	}
	if err := l.selectLocked(StateSleep); err != nil {
		return err
	}
	if err := l.data.In(gpio.PullDown, gpio.NoEdge); err != nil {
		l.dir = DirNotSet
		return l.fail("in", err)
	}
	l.dir = DirInput
	return nil
}

// Write sets the level of the data line. The line must be an output.
func (l *Line) Write(level gpio.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.claimed {
		return ErrNotClaimed
	}
	if l.dir != DirOutput {
		return ErrDirection
	}
	if err := l.data.Out(level); err != nil {
		return l.fail("out", err)
	}
	l.level = level
	return nil
}

// Read samples the data line. The line must be an input.
func (l *Line) Read() (gpio.Level, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.claimed {
		return gpio.Low, ErrNotClaimed
	}
	if l.dir != DirInput {
		return gpio.Low, ErrDirection
	}
	return l.data.Read(), nil
}

// Switch routes the cable to the data line when on is true.
//
// A failure is logged and returned; the caller decides whether it matters.
func (l *Line) Switch(on bool) error {
	if l.sw == nil {
		return nil
	}
	if err := l.sw.Out(gpio.Level(on)); err != nil {
		l.logger.Warn("switch", slog.Bool("on", on), slog.String("err", err.Error()))
		return fmt.Errorf("line: switch: %w", err)
	}
	return nil
}

func (l *Line) outputLocked(level gpio.Level) error {
	if err := l.selectLocked(StateActive); err != nil {
		return err
	}
	if err := l.data.Out(level); err != nil {
		l.dir = DirNotSet
		return l.fail("out", err)
	}
	l.dir = DirOutput
	l.level = level
	return nil
}

func (l *Line) selectLocked(state string) error {
	if l.ctrl == nil {
		return nil
	}
	if err := l.ctrl.Select(state); err != nil {
		return l.fail("pinctrl "+state, err)
	}
	return nil
}

func (l *Line) fail(op string, err error) error {
	l.logger.Warn("line", slog.String("op", op), slog.String("pin", l.data.Name()), slog.String("err", err.Error()))
	return fmt.Errorf("line: %s %s: %w", op, l.data.Name(), err)
}
