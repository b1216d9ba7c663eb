// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package afc

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"periph.io/x/afc/afctest"
	"periph.io/x/afc/handshake"
	"periph.io/x/afc/protocol"
)

func TestNegotiate9V(t *testing.T) {
	for _, mode := range []Mode{Blocking, TimerDriven} {
		t.Run(mode.String(), func(t *testing.T) {
			r := newRig()
			e := r.engine(t, mode, nil)
			res, err := e.Negotiate(context.Background(), V9)
			if err != nil || res != Result9V {
				t.Fatalf("Negotiate() = %s, %v", res, err)
			}
			if got := r.reported(); !reflect.DeepEqual(got, []Result{Result9V}) {
				t.Fatalf("reported %v", got)
			}
			if got := r.sw.Levels(); !reflect.DeepEqual(got, []gpio.Level{gpio.High, gpio.Low}) {
				t.Fatalf("switch %v", got)
			}
			s := e.Session()
			if s.Active || s.Voltage != V9 || s.State != handshake.OK || s.Rounds != protocol.CommCount || s.Retries != 0 || s.Err != nil {
				t.Fatalf("unexpected session %+v", s)
			}
			if s.Byte != protocol.Control9V || !s.Parity {
				t.Fatalf("byte %#x parity %t", s.Byte, s.Parity)
			}
			if n := len(r.a.Requests()); n != protocol.CommCount {
				t.Fatalf("%d requests", n)
			}
			if n := r.clk.Pending(); n != 0 {
				t.Fatalf("%d timers pending", n)
			}
		})
	}
}

func TestRequestVoltage(t *testing.T) {
	r := newRig()
	e := r.engine(t, TimerDriven, nil)
	if err := e.RequestVoltage(Voltage(12)); err != ErrVoltage {
		t.Fatal(err)
	}
	if err := e.RequestVoltage(V9); err != nil {
		t.Fatal(err)
	}
	select {
	case res := <-r.results:
		if res != Result9V {
			t.Fatal(res)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out")
	}
}

func TestNegotiateIdempotent(t *testing.T) {
	r := newRig()
	e := r.engine(t, Blocking, nil)
	if res, err := e.Negotiate(context.Background(), V5); err != nil || res != Result5V {
		t.Fatalf("Negotiate() = %s, %v", res, err)
	}
	events := len(r.a.Events())
	sw := len(r.sw.Levels())
	if res, err := e.Negotiate(context.Background(), V5); err != nil || res != Result5V {
		t.Fatalf("Negotiate() = %s, %v", res, err)
	}
	if n := len(r.a.Events()); n != events {
		t.Fatalf("data line toggled: %d events, was %d", n, events)
	}
	if n := len(r.sw.Levels()); n != sw {
		t.Fatalf("switch toggled")
	}
	if got := r.reported(); len(got) != 1 {
		t.Fatalf("reported %v", got)
	}

	// Once VBUS left the band, the request is negotiated again.
	r.sup.Set(9 * physic.Volt)
	if res, err := e.Negotiate(context.Background(), V5); err != nil || res != Result5V {
		t.Fatalf("Negotiate() = %s, %v", res, err)
	}
	if n := len(r.a.Events()); n == events {
		t.Fatal("expected a new handshake")
	}
}

func TestNegotiateRetryBound(t *testing.T) {
	for _, mode := range []Mode{Blocking, TimerDriven} {
		t.Run(mode.String(), func(t *testing.T) {
			r := newRig()
			r.a.Respond = func(n int) int { return 0 }
			e := r.engine(t, mode, nil)
			start := r.clk.Elapsed()
			res, err := e.Negotiate(context.Background(), V9)
			if res != ResultFail || !errors.Is(err, protocol.ErrSpingTimeout) {
				t.Fatalf("Negotiate() = %s, %v", res, err)
			}
			if got := r.reported(); !reflect.DeepEqual(got, []Result{ResultFail}) {
				t.Fatalf("reported %v", got)
			}
			if n := r.a.Mpings(); n != protocol.RetryMax {
				t.Fatalf("%d attempts", n)
			}
			if s := e.Session(); s.Retries != protocol.RetryMax || protocol.CodeOf(s.Err) != protocol.SpingTimeout {
				t.Fatalf("unexpected session %+v", s)
			}
			if d := r.clk.Elapsed() - start; d < (protocol.RetryMax-1)*protocol.RetryDelay {
				t.Fatalf("retried too fast: %s", d)
			}
			if r.sw.Level() != gpio.Low {
				t.Fatal("switch left on")
			}
		})
	}
}

func TestNegotiateCableRemoved(t *testing.T) {
	r := newRig()
	r.a.Respond = func(n int) int { return 0 }
	r.a.OnMping = func(n int) {
		r.sup.Set(0)
	}
	e := r.engine(t, Blocking, nil)
	res, err := e.Negotiate(context.Background(), V9)
	if res != ResultFail || protocol.CodeOf(err) != protocol.CableAbsent {
		t.Fatalf("Negotiate() = %s, %v", res, err)
	}
	if n := r.a.Mpings(); n != 1 {
		t.Fatalf("%d attempts", n)
	}
	if s := e.Session(); s.Retries != 1 {
		t.Fatalf("%d retries", s.Retries)
	}
	if got := r.reported(); !reflect.DeepEqual(got, []Result{ResultFail}) {
		t.Fatalf("reported %v", got)
	}
}

func TestNegotiateNotConfirmed(t *testing.T) {
	r := newRig()
	r.sup.Hold(true)
	e := r.engine(t, Blocking, &Opts{RetryMax: 2, Rounds: 1})
	res, err := e.Negotiate(context.Background(), V9)
	if res != ResultFail || protocol.CodeOf(err) != protocol.NotConfirmed {
		t.Fatalf("Negotiate() = %s, %v", res, err)
	}
	if n := len(r.a.Requests()); n != 2 {
		t.Fatalf("%d requests", n)
	}
	// Each attempt sampled VBUS VBUSRetryMax times, plus the cable check.
	if n := r.sup.Reads(); n != 2*(protocol.VBUSRetryMax+1) {
		t.Fatalf("%d VBUS reads", n)
	}
}

func TestNegotiateSwitchError(t *testing.T) {
	r := newRig()
	errSw := errors.New("switch stuck")
	r.sw.SetErr(errSw)
	e := r.engine(t, Blocking, nil)
	res, err := e.Negotiate(context.Background(), V9)
	if res != ResultFail || !errors.Is(err, errSw) {
		t.Fatalf("Negotiate() = %s, %v", res, err)
	}
	if n := r.a.Mpings(); n != 0 {
		t.Fatalf("%d MPING", n)
	}

	r = newRig()
	r.sw.SetErr(errSw)
	e = r.engine(t, Blocking, &Opts{IgnoreLineErrors: true})
	if res, err := e.Negotiate(context.Background(), V9); res != Result9V || err != nil {
		t.Fatalf("Negotiate() = %s, %v", res, err)
	}
}

func TestNegotiateCanceled(t *testing.T) {
	r := newRig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.a.OnMping = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	e := r.engine(t, Blocking, nil)
	if res, err := e.Negotiate(ctx, V9); res != ResultFail || err != context.Canceled {
		t.Fatalf("Negotiate() = %s, %v", res, err)
	}
	if got := r.reported(); len(got) != 0 {
		t.Fatalf("reported %v", got)
	}
	if r.sw.Level() != gpio.Low {
		t.Fatal("switch left on")
	}
}

func TestDetach(t *testing.T) {
	for _, mode := range []Mode{Blocking, TimerDriven} {
		t.Run(mode.String(), func(t *testing.T) {
			r := newRig()
			e := r.engine(t, mode, nil)
			c := e.(interface{ ctrl() *controller }).ctrl()
			c.mu.Lock()
			ctx := c.ctx
			c.mu.Unlock()
			detached := make(chan struct{})
			r.a.OnMping = func(n int) {
				if n != 2 {
					return
				}
				go func() {
					e.Detach()
					close(detached)
				}()
				// Hold the handshake until Detach canceled it.
				<-ctx.Done()
			}
			if err := e.RequestVoltage(V9); err != nil {
				t.Fatal(err)
			}
			select {
			case <-detached:
			case <-time.After(10 * time.Second):
				t.Fatal("timed out")
			}
			if r.sw.Level() != gpio.Low {
				t.Fatal("switch left on")
			}
			if n := r.clk.Pending(); n != 0 {
				t.Fatalf("%d timers pending", n)
			}
			if got := r.reported(); len(got) != 0 {
				t.Fatalf("reported %v", got)
			}
			if s := e.Session(); s.Active || s.Rounds != 0 {
				t.Fatalf("unexpected session %+v", s)
			}
			// The line stays idle.
			events := len(r.a.Events())
			fired := r.clk.Fired()
			time.Sleep(20 * time.Millisecond)
			if n := len(r.a.Events()); n != events {
				t.Fatalf("line toggled after Detach: %d events, was %d", n, events)
			}
			if n := r.clk.Fired(); n != fired {
				t.Fatalf("timer fired after Detach")
			}

			// The engine is usable again.
			if res, err := e.Negotiate(context.Background(), V9); res != Result9V || err != nil {
				t.Fatalf("Negotiate() = %s, %v", res, err)
			}
		})
	}
}

func TestDetachRejectsWhileParking(t *testing.T) {
	for _, mode := range []Mode{Blocking, TimerDriven} {
		t.Run(mode.String(), func(t *testing.T) {
			r := newRig()
			e := r.engine(t, mode, nil)
			c := e.(interface{ ctrl() *controller }).ctrl()
			var reqErr, negErr error
			parked := false
			r.sw.OnOut = func(l gpio.Level) {
				if l != gpio.Low || parked {
					return
				}
				// Detach is deasserting the switch.
				parked = true
				reqErr = e.RequestVoltage(V9)
				_, negErr = e.Negotiate(context.Background(), V9)
			}
			e.Detach()
			if !parked {
				t.Fatal("switch not deasserted")
			}
			if !errors.Is(reqErr, ErrDetached) || !errors.Is(negErr, ErrDetached) {
				t.Fatalf("RequestVoltage() = %v, Negotiate() = %v", reqErr, negErr)
			}
			if got := r.sw.Levels(); !reflect.DeepEqual(got, []gpio.Level{gpio.Low}) {
				t.Fatalf("switch %v", got)
			}
			if c.line.Claimed() {
				t.Fatal("line claimed after Detach")
			}
			if n := r.a.Mpings(); n != 0 {
				t.Fatalf("%d MPINGs", n)
			}

			r.sw.OnOut = nil
			if res, err := e.Negotiate(context.Background(), V9); res != Result9V || err != nil {
				t.Fatalf("Negotiate() = %s, %v", res, err)
			}
			want := []gpio.Level{gpio.Low, gpio.High, gpio.Low}
			if got := r.sw.Levels(); !reflect.DeepEqual(got, want) {
				t.Fatalf("switch %v, want %v", got, want)
			}
		})
	}
}

func TestDetachIdle(t *testing.T) {
	r := newRig()
	e := r.engine(t, Blocking, nil)
	if err := e.Halt(); err != nil {
		t.Fatal(err)
	}
	if r.sw.Level() != gpio.Low {
		t.Fatal("switch left on")
	}
	if s := e.String(); s != "afc-blocking(AFC)" {
		t.Fatal(s)
	}
}

func TestNew(t *testing.T) {
	r := newRig()
	if _, err := New(Pins{}, r.sup, nil, nil); err != ErrNoPin {
		t.Fatal(err)
	}
	if _, err := New(Pins{Data: r.a}, nil, nil, nil); err != ErrNoVBUS {
		t.Fatal(err)
	}
	e, err := New(Pins{Data: r.a}, r.sup, nil, &Opts{Mode: TimerDriven})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*TimerEngine); !ok {
		t.Fatalf("%T", e)
	}
	e, err = New(Pins{Data: r.a}, r.sup, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*BlockingEngine); !ok {
		t.Fatalf("%T", e)
	}
}

func TestNormalize(t *testing.T) {
	if o := normalize(nil); o.Rounds != protocol.CommCount || o.Clock == nil {
		t.Fatalf("%+v", o)
	}
	o := normalize(&Opts{Rounds: 2, RetryDelay: time.Second, IgnoreLineErrors: true})
	if o.Rounds != 2 || o.RetryDelay != time.Second || !o.IgnoreLineErrors || o.RetryMax != protocol.RetryMax || o.UI != protocol.UI {
		t.Fatalf("%+v", o)
	}
}

func TestVoltage(t *testing.T) {
	data := []struct {
		v    Voltage
		mv   physic.ElectricPotential
		want bool
	}{
		{V5, 3500 * physic.MilliVolt, false},
		{V5, 3501 * physic.MilliVolt, true},
		{V5, 5499 * physic.MilliVolt, true},
		{V5, 5500 * physic.MilliVolt, false},
		{V9, 7500 * physic.MilliVolt, false},
		{V9, 7501 * physic.MilliVolt, true},
		{V9, 9 * physic.Volt, true},
		{Voltage(12), 12 * physic.Volt, false},
	}
	for i, line := range data {
		if got := line.v.InBand(line.mv); got != line.want {
			t.Errorf("#%d: %s.InBand(%s) = %t", i, line.v, line.mv, got)
		}
	}
	if b, ok := V5.Control(); !ok || b != 0x08 {
		t.Fatal(b, ok)
	}
	if b, ok := V9.Control(); !ok || b != 0x46 {
		t.Fatal(b, ok)
	}
	if _, ok := Voltage(0).Control(); ok {
		t.Fatal("expected failure")
	}
	if s := Voltage(3).String(); s != "Voltage(invalid)" {
		t.Fatal(s)
	}
	if s := V9.String(); s != "9V" {
		t.Fatal(s)
	}
	for r, s := range map[Result]string{ResultFail: "AFC_FAIL", Result5V: "AFC_5V", Result9V: "AFC_9V"} {
		if r.String() != s {
			t.Fatal(r.String())
		}
	}
	if TimerDriven.String() != "TimerDriven" || Blocking.String() != "Blocking" {
		t.Fatal("Mode.String()")
	}
}

//

type rig struct {
	clk     *afctest.Clock
	a       *afctest.Adapter
	sup     *afctest.Supply
	sw      *afctest.Switch
	results chan Result
}

func newRig() *rig {
	clk := &afctest.Clock{}
	sup := afctest.NewSupply(5 * physic.Volt)
	return &rig{
		clk:     clk,
		a:       &afctest.Adapter{N: "AFC", Clock: clk, Supply: sup},
		sup:     sup,
		sw:      &afctest.Switch{N: "SW"},
		results: make(chan Result, 16),
	}
}

func (r *rig) engine(t *testing.T, mode Mode, opts *Opts) Engine {
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	o.Mode = mode
	o.Clock = r.clk
	e, err := New(Pins{Data: r.a, Switch: r.sw}, r.sup, ReporterFunc(func(res Result) { r.results <- res }), &o)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func (c *controller) ctrl() *controller {
	return c
}

func (r *rig) reported() []Result {
	var out []Result
	for {
		select {
		case res := <-r.results:
			out = append(out, res)
		default:
			return out
		}
	}
}
