// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package afc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/afc/handshake"
	"periph.io/x/afc/line"
	"periph.io/x/afc/protocol"
)

const levelTrace = slog.LevelDebug - 1

// runner executes one attempt of the handshake.
type runner func(ctx context.Context, m *handshake.Machine) error

// controller is the session and retry logic shared by both engines.
type controller struct {
	name   string
	line   *line.Line
	vbus   VBUSSensor
	report Reporter
	opts   Opts
	logger *slog.Logger
	run    runner

	// session serializes negotiations.
	session sync.Mutex
	// detach serializes Detach calls.
	detach sync.Mutex

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelCauseFunc
	wg       sync.WaitGroup
	achieved Voltage
	cur      Session
	m        *handshake.Machine
}

func (c *controller) init(name string, p Pins, vbus VBUSSensor, r Reporter, o Opts) error {
	if p.Data == nil {
		return ErrNoPin
	}
	if vbus == nil {
		return ErrNoVBUS
	}
	c.name = name + "(" + p.Data.Name() + ")"
	c.logger = o.Logger
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With(slog.String("afc", c.name))
	c.line = line.New(p.Data, p.Switch, p.Ctrl, c.logger)
	c.vbus = vbus
	c.report = r
	c.opts = o
	c.ctx, c.cancel = context.WithCancelCause(context.Background())
	return nil
}

// String implements conn.Resource.
func (c *controller) String() string {
	return c.name
}

// Halt implements conn.Resource. It detaches the engine.
func (c *controller) Halt() error {
	c.Detach()
	return nil
}

// RequestVoltage implements Engine.
func (c *controller) RequestVoltage(v Voltage) error {
	if _, ok := v.Control(); !ok {
		return ErrVoltage
	}
	ctx, err := c.enter()
	if err != nil {
		return err
	}
	go func() {
		defer c.wg.Done()
		_, _ = c.negotiate(ctx, v)
	}()
	return nil
}

// Negotiate runs a negotiation for v on the calling goroutine.
//
// The outcome is also sent to the Reporter, except when the negotiation is a
// no-op because v is already applied or when it is canceled. A canceled
// negotiation returns ctx's error, or ErrDetached when canceled by Detach. A
// FAIL outcome is returned along with its cause.
func (c *controller) Negotiate(ctx context.Context, v Voltage) (Result, error) {
	if _, ok := v.Control(); !ok {
		return ResultFail, ErrVoltage
	}
	ectx, err := c.enter()
	if err != nil {
		return ResultFail, err
	}
	defer c.wg.Done()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	defer context.AfterFunc(ectx, func() { cancel(ErrDetached) })()
	return c.negotiate(ctx, v)
}

// Detach implements Engine.
func (c *controller) Detach() {
	c.detach.Lock()
	defer c.detach.Unlock()
	c.mu.Lock()
	c.cancel(ErrDetached)
	c.mu.Unlock()
	c.wg.Wait()

	// Requests are rejected until the context is re-armed, so nothing can
	// claim the line while it is parked.
	c.park()
	c.mu.Lock()
	c.achieved = 0
	c.m = nil
	c.cur.Active = false
	c.ctx, c.cancel = context.WithCancelCause(context.Background())
	c.mu.Unlock()
	c.info("detached")
}

// Session implements Engine.
func (c *controller) Session() Session {
	c.mu.Lock()
	s, m := c.cur, c.m
	c.mu.Unlock()
	if m != nil {
		ms := m.Snapshot()
		s.State = ms.State
		s.Phase = ms.Phase
		s.Byte = ms.Byte
		s.Parity = ms.Parity
		s.Rounds = ms.Round
	}
	return s
}

// enter registers a negotiation. It fails while a Detach is in progress.
func (c *controller) enter() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return nil, ErrDetached
	}
	c.wg.Add(1)
	return c.ctx, nil
}

func (c *controller) negotiate(ctx context.Context, v Voltage) (Result, error) {
	c.session.Lock()
	defer c.session.Unlock()
	if ctx.Err() != nil {
		return ResultFail, context.Cause(ctx)
	}

	c.mu.Lock()
	achieved := c.achieved
	c.mu.Unlock()
	if achieved == v {
		if mv, err := c.vbus.VBUS(); err == nil && v.InBand(mv) {
			c.debug("already applied", slog.String("voltage", v.String()), slog.String("vbus", mv.String()))
			return v.result(), nil
		}
	}

	b, _ := v.Control()
	c.mu.Lock()
	c.achieved = 0
	c.m = nil
	c.cur = Session{Active: true, Voltage: v, State: handshake.Idle, Byte: b, Parity: protocol.Parity(b)}
	c.mu.Unlock()
	c.info("negotiating", slog.String("voltage", v.String()))

	err := c.attempts(ctx, v, b)
	c.park()

	c.mu.Lock()
	c.cur.Active = false
	c.cur.Err = err
	if ctx.Err() != nil {
		c.mu.Unlock()
		c.debug("canceled", slog.String("voltage", v.String()))
		return ResultFail, context.Cause(ctx)
	}
	r := ResultFail
	if err == nil {
		r = v.result()
		c.achieved = v
	}
	c.mu.Unlock()

	if err != nil {
		c.warn("negotiation failed", slog.String("voltage", v.String()), slog.String("err", err.Error()))
	} else {
		c.info("negotiated", slog.String("voltage", v.String()))
	}
	if c.report != nil {
		c.report.Report(r)
	}
	return r, err
}

// attempts drives the handshake until v is confirmed on VBUS, the attempts
// are exhausted or the cable is gone.
func (c *controller) attempts(ctx context.Context, v Voltage, b byte) error {
	if err := c.line.Claim(); err != nil {
		return err
	}
	if err := c.line.Switch(true); err != nil && !c.opts.IgnoreLineErrors {
		return &protocol.Error{Code: protocol.LineIO, Err: err}
	}
	if err := c.opts.Clock.Sleep(ctx, c.opts.SwitchSettle); err != nil {
		return err
	}
	var err error
	for retries := 0; retries < c.opts.RetryMax; {
		m := handshake.New(c.line, b, &handshake.Opts{
			UI:               c.opts.UI,
			Rounds:           c.opts.Rounds,
			RoundDelay:       c.opts.RoundDelay,
			IgnoreLineErrors: c.opts.IgnoreLineErrors,
			Logger:           c.logger,
		})
		c.mu.Lock()
		c.m = m
		c.mu.Unlock()
		if err = c.run(ctx, m); err == nil {
			err = c.confirm(ctx, v)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		retries++
		c.mu.Lock()
		c.cur.Retries = retries
		c.cur.Err = err
		c.mu.Unlock()
		c.debug("attempt failed", slog.Int("retries", retries), slog.String("err", err.Error()))
		if !c.cablePresent() {
			return &protocol.Error{Code: protocol.CableAbsent, Err: err}
		}
		if retries == c.opts.RetryMax {
			break
		}
		if err := c.opts.Clock.Sleep(ctx, c.opts.RetryDelay); err != nil {
			return err
		}
	}
	return fmt.Errorf("afc: %s not applied after %d attempts: %w", v, c.opts.RetryMax, err)
}

// confirm polls VBUS until it is in the band of v.
func (c *controller) confirm(ctx context.Context, v Voltage) error {
	var last error
	for i := range c.opts.VBUSRetryMax {
		if err := c.opts.Clock.Sleep(ctx, c.opts.VBUSPollInterval); err != nil {
			return err
		}
		mv, err := c.vbus.VBUS()
		if err != nil {
			last = err
			continue
		}
		c.trace("vbus", slog.Int("poll", i), slog.String("vbus", mv.String()))
		if v.InBand(mv) {
			return nil
		}
		last = fmt.Errorf("VBUS at %s", mv)
	}
	return &protocol.Error{Code: protocol.NotConfirmed, Err: last}
}

func (c *controller) cablePresent() bool {
	mv, err := c.vbus.VBUS()
	if err != nil {
		c.warn("vbus", slog.String("err", err.Error()))
		return false
	}
	return mv > protocol.CablePresentMin
}

// park deasserts the switch and releases the data line.
func (c *controller) park() {
	if err := c.line.Switch(false); err != nil {
		c.warn("switch", slog.String("err", err.Error()))
	}
	if err := c.line.Release(); err != nil {
		c.warn("release", slog.String("err", err.Error()))
	}
}

func (c *controller) warn(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelWarn, msg, attrs...)
}

func (c *controller) info(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelInfo, msg, attrs...)
}

func (c *controller) debug(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelDebug, msg, attrs...)
}

func (c *controller) trace(msg string, attrs ...slog.Attr) {
	c.logattrs(levelTrace, msg, attrs...)
}

func (c *controller) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	c.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
