// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package handshake sequences the AFC rounds on the data line.
//
// A Machine executes one state per Step and returns how long to wait before
// the next Step. Run drives a Machine on the calling goroutine with busy-wait
// delays; a Scheduler drives it from one-shot timers without ever blocking.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"periph.io/x/afc/protocol"
)

// Line is the data line as seen by the handshake.
type Line interface {
	// Output drives the line at level.
	Output(level gpio.Level) error
	// Input releases the line.
	Input() error
	// Write sets the level of a line already driven.
	Write(level gpio.Level) error
	// Read samples a released line.
	Read() (gpio.Level, error)
}

// Opts configures a Machine.
type Opts struct {
	// UI is the Unit Interval. Defaults to protocol.UI.
	UI time.Duration
	// Rounds is the number of rounds to run. Defaults to protocol.CommCount.
	Rounds int
	// RoundDelay is the pause between rounds. Defaults to protocol.RoundDelay.
	RoundDelay time.Duration
	// IgnoreLineErrors logs GPIO failures and carries on instead of failing
	// the round.
	IgnoreLineErrors bool
	Logger           *slog.Logger
}

// Snapshot is the observable state of a Machine.
type Snapshot struct {
	State  State
	Phase  int
	Byte   byte
	Parity bool
	Round  int
	Err    error
	// Reply is the last adapter reply decoded, if any.
	Reply *protocol.Frame
}

// Machine runs the AFC rounds requesting one control byte.
type Machine struct {
	line   Line
	logger *slog.Logger
	opts   Opts

	mu      sync.Mutex
	state   State
	phase   int
	data    byte
	parity  bool
	round   int
	waited  protocol.Ticks
	high    protocol.Ticks
	samples []gpio.Level
	reply   *protocol.Frame
	err     error
}

// New returns a Machine sending b. It is Idle until its first Step.
func New(l Line, b byte, opts *Opts) *Machine {
	m := &Machine{line: l, state: Idle}
	if opts != nil {
		m.opts = *opts
	}
	if m.opts.UI <= 0 {
		m.opts.UI = protocol.UI
	}
	if m.opts.Rounds <= 0 {
		m.opts.Rounds = protocol.CommCount
	}
	if m.opts.RoundDelay <= 0 {
		m.opts.RoundDelay = protocol.RoundDelay
	}
	m.logger = m.opts.Logger
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	m.setByte(b)
	return m
}

// Step runs the current state and returns the wait before the next Step.
//
// done is true once the machine reached OK or Error.
func (m *Machine) Step() (wait time.Duration, done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return 0, true
	}
	e := table[m.state]
	if e.fn == nil {
		m.failLocked(fmt.Errorf("handshake: no action for %s", m.state))
		return 0, true
	}
	r := e.fn(m)
	if r.err != nil {
		m.failLocked(r.err)
		return 0, true
	}
	if !r.done {
		m.phase++
		return r.wait.Duration(m.opts.UI), false
	}
	from := m.state
	m.state = e.next
	if r.next != Idle {
		m.state = r.next
	}
	m.phase = 0
	m.trace("step", slog.String("from", from.String()), slog.String("to", m.state.String()))
	if m.state.Terminal() {
		return 0, true
	}
	return (r.wait+e.delay).Duration(m.opts.UI) + r.pause, false
}

// Abort stops the machine with err and parks the line LOW.
//
// It is a no-op on a machine that already terminated.
func (m *Machine) Abort(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return
	}
	m.failLocked(err)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns why the machine reached Error.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Snapshot returns a copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:  m.state,
		Phase:  m.phase,
		Byte:   m.data,
		Parity: m.parity,
		Round:  m.round,
		Err:    m.err,
		Reply:  m.reply,
	}
}

func (m *Machine) setByte(b byte) {
	m.data = b
	m.parity = protocol.Parity(b)
}

func (m *Machine) failLocked(err error) {
	m.err = err
	from := m.state
	m.state = Error
	m.logger.Warn("afc round failed", slog.String("state", from.String()), slog.Int("round", m.round), slog.String("err", err.Error()))
	// Leave the line in a safe state.
	_ = m.line.Output(gpio.Low)
}

func (m *Machine) trace(msg string, attrs ...slog.Attr) {
	m.logger.LogAttrs(context.Background(), levelTrace, msg, attrs...)
}

const levelTrace = slog.LevelDebug - 1

// result is what an action reports back to Step.
type result struct {
	// done completes the state; otherwise it is run again after wait.
	done bool
	wait protocol.Ticks
	// pause is added to the transition delay.
	pause time.Duration
	// next overrides the table when not Idle.
	next State
	err  error
}

func stay(t protocol.Ticks) result {
	return result{wait: t}
}

func advance() result {
	return result{done: true}
}

func advanceAfter(t protocol.Ticks) result {
	return result{done: true, wait: t}
}

func fail(err error) result {
	return result{err: err}
}

// lineErr turns a GPIO failure into a round failure unless configured to
// carry on.
func (m *Machine) lineErr(err error) error {
	if err == nil {
		return nil
	}
	if m.opts.IgnoreLineErrors {
		m.logger.Warn("afc line error ignored", slog.String("state", m.state.String()), slog.String("err", err.Error()))
		return nil
	}
	return &protocol.Error{Code: protocol.LineIO, Err: err}
}

// Actions.

func (m *Machine) start() result {
	m.round = 0
	return advance()
}

func (m *Machine) mpingHigh() result {
	if err := m.line.Output(gpio.High); err != nil {
		if err = m.lineErr(err); err != nil {
			return fail(&protocol.Error{Code: protocol.MpingNotObserved, Err: err})
		}
	}
	return advance()
}

func (m *Machine) release() result {
	if err := m.lineErr(m.line.Write(gpio.Low)); err != nil {
		return fail(err)
	}
	if err := m.lineErr(m.line.Input()); err != nil {
		return fail(err)
	}
	m.waited = 0
	m.high = 0
	return advance()
}

func (m *Machine) waitSping() result {
	l, err := m.line.Read()
	if err = m.lineErr(err); err != nil {
		return fail(err)
	}
	if l {
		m.high = 1
		return advance()
	}
	m.waited++
	if m.waited > protocol.UIs(protocol.WaitSpingUI) {
		return fail(protocol.ErrSpingTimeout)
	}
	return stay(1)
}

func (m *Machine) measureSping() result {
	l, err := m.line.Read()
	if err = m.lineErr(err); err != nil {
		return fail(err)
	}
	if !l {
		return advance()
	}
	m.high++
	if ui := m.high.RoundUI(); ui > protocol.SpingMaxUI {
		return fail(&protocol.Error{Code: protocol.SpingTooLong, UI: ui})
	}
	return stay(1)
}

func (m *Machine) checkSping() result {
	if err := protocol.ClassifySping(m.high.RoundUI()); err != nil {
		return fail(err)
	}
	if m.state == RecvCfmSpingEnd {
		// Hold the line until the next round.
		if err := m.lineErr(m.line.Output(gpio.Low)); err != nil {
			return fail(err)
		}
	}
	return advance()
}

func (m *Machine) request() result {
	if err := m.lineErr(m.line.Output(gpio.Low)); err != nil {
		return fail(err)
	}
	// The byte may have been changed by the caller since the last round.
	m.setByte(m.data)
	return advance()
}

// segment returns the pulses driven by the current transfer state.
func (m *Machine) segment() []protocol.Pulse {
	switch m.state {
	case StartTransfer:
		return protocol.StartCycle(m.data)
	case SendData:
		return protocol.DataPulses(m.data)
	default:
		return protocol.TrailerPulses(m.parity)
	}
}

func (m *Machine) drivePulses() result {
	p := m.segment()
	if m.phase >= len(p) {
		return advance()
	}
	x := p[m.phase]
	if err := m.lineErr(m.line.Write(x.Level)); err != nil {
		return fail(err)
	}
	if m.phase == len(p)-1 {
		return advanceAfter(x.Ticks)
	}
	return stay(x.Ticks)
}

func (m *Machine) sampleReply() result {
	if m.phase == 0 {
		m.samples = m.samples[:0]
	}
	l, err := m.line.Read()
	if err = m.lineErr(err); err != nil {
		return fail(err)
	}
	m.samples = append(m.samples, l)
	if len(m.samples) >= int(protocol.UIs(protocol.RecvDataUI)) {
		return advance()
	}
	return stay(1)
}

func (m *Machine) decodeReply() result {
	f, err := protocol.DecodeResponse(m.samples)
	if err != nil {
		// The reply is informational only.
		m.logger.Debug("afc reply", slog.Int("round", m.round), slog.String("err", err.Error()))
		m.reply = nil
	} else {
		m.logger.Debug("afc reply", slog.Int("round", m.round), slog.Int("data", int(f.Data)))
		m.reply = &f
	}
	if err := m.lineErr(m.line.Output(gpio.Low)); err != nil {
		return fail(err)
	}
	return advance()
}

func (m *Machine) finish() result {
	m.round++
	m.trace("round done", slog.Int("round", m.round))
	if m.round >= m.opts.Rounds {
		return result{done: true, next: OK}
	}
	return result{done: true, pause: m.opts.RoundDelay}
}

// ErrCanceled is the error of a machine stopped by its caller.
var ErrCanceled = errors.New("handshake: canceled")
