// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package afc

import (
	"context"

	"periph.io/x/afc/handshake"
)

// BlockingEngine runs each negotiation on its own goroutine, busy-waiting
// between edges.
//
// Detach is cooperative: the handshake stops at the next state boundary.
// Pinning the process with clock.Realtime keeps the busy-waits on time.
type BlockingEngine struct {
	controller
}

// NewBlocking returns a BlockingEngine. Zero fields of opts take their value
// from DefaultOpts.
func NewBlocking(p Pins, vbus VBUSSensor, r Reporter, opts *Opts) (*BlockingEngine, error) {
	o := normalize(opts)
	o.Mode = Blocking
	e := &BlockingEngine{}
	if err := e.init("afc-blocking", p, vbus, r, o); err != nil {
		return nil, err
	}
	e.run = func(ctx context.Context, m *handshake.Machine) error {
		return handshake.Run(ctx, m, e.opts.Clock)
	}
	return e, nil
}

// TimerEngine runs each handshake step from a one-shot timer, so no
// goroutine spins while a round is in flight.
//
// Detach stops the pending timer immediately. VBUS confirmation still runs on
// the negotiation goroutine since it sleeps.
type TimerEngine struct {
	controller
}

// NewTimer returns a TimerEngine. Zero fields of opts take their value from
// DefaultOpts.
func NewTimer(p Pins, vbus VBUSSensor, r Reporter, opts *Opts) (*TimerEngine, error) {
	o := normalize(opts)
	o.Mode = TimerDriven
	e := &TimerEngine{}
	if err := e.init("afc-timer", p, vbus, r, o); err != nil {
		return nil, err
	}
	e.run = func(ctx context.Context, m *handshake.Machine) error {
		s := handshake.Start(m, e.opts.Clock)
		select {
		case err := <-s.Done():
			return err
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		}
	}
	return e, nil
}

var _ Engine = &BlockingEngine{}
var _ Engine = &TimerEngine{}
