// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package afctest provides fakes to exercise the AFC engine without hardware.
//
// Clock is a virtual clock: waits advance it instantly. Adapter emulates a
// fast charge adapter on the data line, Supply its VBUS output.
package afctest

import (
	"context"
	"sync"
	"time"

	"periph.io/x/afc/clock"
)

// Epoch is the virtual time a Clock starts at.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a virtual clock.
//
// Delay and Sleep advance it by the requested duration. AfterFunc callbacks
// run one at a time in their own goroutine, with the clock moved to their
// deadline first.
type Clock struct {
	run sync.Mutex // serializes callbacks

	mu      sync.Mutex
	now     time.Duration
	pending int
	fired   int
}

// Now implements clock.Clock.
func (c *Clock) Now() time.Time {
	return Epoch.Add(c.Elapsed())
}

// Elapsed returns the virtual time elapsed since Epoch.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Delay implements clock.Clock.
func (c *Clock) Delay(d time.Duration) {
	c.advance(d)
}

// Sleep implements clock.Clock.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.advance(d)
	return nil
}

// AfterFunc implements clock.Clock.
func (c *Clock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	t := &timer{c: c, deadline: c.now + max(d, 0)}
	c.pending++
	c.mu.Unlock()
	go func() {
		c.run.Lock()
		defer c.run.Unlock()
		c.mu.Lock()
		if t.stopped {
			c.mu.Unlock()
			return
		}
		t.started = true
		c.pending--
		c.fired++
		c.now = max(c.now, t.deadline)
		c.mu.Unlock()
		f()
	}()
	return t
}

// Pending returns the number of armed timers that neither fired nor were
// stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Fired returns the number of timer callbacks started so far.
func (c *Clock) Fired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

func (c *Clock) advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

type timer struct {
	c        *Clock
	deadline time.Duration
	started  bool
	stopped  bool
}

func (t *timer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.started || t.stopped {
		return false
	}
	t.stopped = true
	t.c.pending--
	return true
}

var _ clock.Clock = &Clock{}
