// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package handshake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/afc/clock"
)

// SleepThreshold is the shortest wait Run yields the CPU for. Shorter waits
// are busy-waited to hold the UI.
const SleepThreshold = time.Millisecond

// Run drives m to completion on the calling goroutine.
//
// Waits are measured from deadlines rather than from the end of each Step,
// so the time spent in GPIO calls does not stretch the UI grid. When a Step
// overruns a non-zero wait, or after a sleep, the grid restarts from the
// current time.
//
// It returns nil once m reached OK, m's error once it reached Error, or the
// context error if ctx is done first, in which case m is aborted.
func Run(ctx context.Context, m *Machine, clk clock.Clock) error {
	next := clk.Now()
	for {
		if err := ctx.Err(); err != nil {
			m.Abort(fmt.Errorf("%w: %w", ErrCanceled, err))
			return err
		}
		wait, done := m.Step()
		if done {
			return m.Err()
		}
		next = next.Add(wait)
		d := next.Sub(clk.Now())
		switch {
		case d > 0 && wait < SleepThreshold:
			clk.Delay(d)
		case d > 0:
			if err := clk.Sleep(ctx, d); err != nil {
				m.Abort(fmt.Errorf("%w: %w", ErrCanceled, err))
				return err
			}
			// Sleep may overshoot; the inter-round pause is not timing critical.
			next = clk.Now()
		case wait > 0:
			next = clk.Now()
		}
	}
}

// Scheduler drives a Machine from one-shot timers.
//
// Each Step runs in a timer callback which arms the timer for the next one;
// no goroutine blocks while the handshake is in progress.
type Scheduler struct {
	m   *Machine
	clk clock.Clock

	mu      sync.Mutex
	timer   clock.Timer
	next    time.Time
	rebase  bool
	stopped bool
	done    chan error
}

// Start arms the first Step of m.
func Start(m *Machine, clk clock.Clock) *Scheduler {
	s := &Scheduler{m: m, clk: clk, done: make(chan error, 1)}
	s.mu.Lock()
	s.next = clk.Now()
	s.timer = clk.AfterFunc(0, s.fire)
	s.mu.Unlock()
	return s
}

// Done receives the outcome of the machine exactly once: nil on OK, the
// machine error on Error, or ErrCanceled after Stop.
func (s *Scheduler) Done() <-chan error {
	return s.done
}

// Stop cancels the pending Step and aborts the machine.
//
// Once Stop returns no further Step runs. It is a no-op once the machine
// completed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.m.Abort(ErrCanceled)
	s.done <- ErrCanceled
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.rebase {
		s.next = s.clk.Now()
	}
	wait, done := s.m.Step()
	if done {
		s.stopped = true
		s.timer = nil
		s.done <- s.m.Err()
		return
	}
	// Same deadline grid as Run.
	s.next = s.next.Add(wait)
	d := s.next.Sub(s.clk.Now())
	if d < 0 {
		if wait > 0 {
			s.next = s.clk.Now()
		}
		d = 0
	}
	s.rebase = wait >= SleepThreshold
	s.timer = s.clk.AfterFunc(d, s.fire)
}
