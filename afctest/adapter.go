// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package afctest

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"periph.io/x/afc/protocol"
)

// ReplyDelay is how long the adapter waits after the end of an MPING before
// it drives its SPING.
const ReplyDelay = 2 // ticks

// Event is a level driven by the engine on the data line.
type Event struct {
	At    time.Duration
	Level gpio.Level
}

// Adapter emulates a fast charge adapter on the data line.
//
// It is the data gpio.PinIO given to the engine. Every HIGH pulse of at least
// 12 UI is an MPING and is answered with a SPING. When the engine sent a
// frame since the adapter last answered, the MPING ends a request: the
// adapter decodes the frame, applies it to Supply and answers with a SPING
// followed by the frame echoed back.
type Adapter struct {
	// N is the pin name.
	N string
	// Clock is the time base. It must be the clock driving the engine.
	Clock *Clock
	// Supply, when set, follows the decoded requests.
	Supply *Supply
	// UI is the Unit Interval. Defaults to protocol.UI.
	UI time.Duration
	// Respond returns the width in UI of the SPING answering the nth MPING,
	// counting from 1. 0 leaves the MPING unanswered. nil answers every
	// MPING with a 16 UI SPING.
	Respond func(n int) int
	// OnMping is called after the nth MPING was detected, outside of the
	// adapter lock.
	OnMping func(n int)

	mu       sync.Mutex
	driving  bool
	level    gpio.Level
	rise     time.Duration
	mark     time.Duration
	events   []Event
	mpings   int
	requests []byte
	reply    []protocol.Pulse
	replyAt  time.Duration
	outErr   error
}

// Events returns the levels driven by the engine so far.
func (a *Adapter) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Event(nil), a.events...)
}

// Mpings returns the number of MPING detected so far.
func (a *Adapter) Mpings() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mpings
}

// Requests returns the control bytes decoded so far.
func (a *Adapter) Requests() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.requests...)
}

// SetOutErr makes Out fail with err. nil clears it.
func (a *Adapter) SetOutErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outErr = err
}

func (a *Adapter) String() string {
	return a.N
}

func (a *Adapter) Halt() error {
	return nil
}

func (a *Adapter) Name() string {
	return a.N
}

func (a *Adapter) Number() int {
	return -1
}

func (a *Adapter) Function() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.driving {
		return "Out/" + a.level.String()
	}
	return "In/" + a.readLocked().String()
}

// In releases the line to the adapter.
func (a *Adapter) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		return errors.New("afctest: edge detection is not supported")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.driving = false
	return nil
}

// Read returns the level driven by the adapter, LOW when idle.
func (a *Adapter) Read() gpio.Level {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.driving {
		return a.level
	}
	return a.readLocked()
}

func (a *Adapter) WaitForEdge(timeout time.Duration) bool {
	return false
}

func (a *Adapter) Pull() gpio.Pull {
	return gpio.PullDown
}

func (a *Adapter) DefaultPull() gpio.Pull {
	return gpio.PullDown
}

// Out drives the line from the engine side.
func (a *Adapter) Out(l gpio.Level) error {
	n := 0
	a.mu.Lock()
	if a.outErr != nil {
		err := a.outErr
		a.mu.Unlock()
		return err
	}
	now := a.Clock.Elapsed()
	wasHigh := a.driving && a.level == gpio.High
	a.driving = true
	a.level = l
	a.events = append(a.events, Event{At: now, Level: l})
	switch {
	case l == gpio.High && !wasHigh:
		a.rise = now
	case l == gpio.Low && wasHigh && now-a.rise >= a.ticks(protocol.UIs(12)):
		n = a.mpingLocked(now)
	}
	hook := a.OnMping
	a.mu.Unlock()
	if n != 0 && hook != nil {
		hook(n)
	}
	return nil
}

func (a *Adapter) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("afctest: PWM is not supported")
}

// mpingLocked answers the MPING that ended at now and returns its number.
func (a *Adapter) mpingLocked(now time.Duration) int {
	a.mpings++
	n := a.mpings
	width := 16
	if a.Respond != nil {
		width = a.Respond(n)
	}
	request, ok := a.requestLocked()
	a.mark = now
	if width <= 0 {
		return n
	}
	reply := []protocol.Pulse{{Level: gpio.High, Ticks: protocol.UIs(width)}}
	if ok {
		a.requests = append(a.requests, request)
		if a.Supply != nil {
			a.Supply.apply(request)
		}
		reply = append(reply, protocol.Pulse{Level: gpio.Low, Ticks: protocol.UIs(1)})
		reply = append(reply, protocol.Encode(request)...)
	}
	a.reply = reply
	a.replyAt = now + a.ticks(ReplyDelay)
	a.mark = a.replyAt + a.ticks(protocol.Len(reply))
	return n
}

// requestLocked decodes the frame the engine drove between the last answer
// and the MPING that just ended.
func (a *Adapter) requestLocked() (byte, bool) {
	start := -1
	for i, e := range a.events {
		if e.At > a.mark && e.At < a.rise && e.Level {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	t0 := a.events[start].At
	samples := make([]gpio.Level, protocol.FrameTicks)
	for i := range samples {
		at := t0 + a.ticks(protocol.Ticks(i)) + a.ticks(1)/2
		samples[i] = a.levelAt(at, start)
	}
	f, err := protocol.DecodeFrame(samples)
	if err != nil {
		return 0, false
	}
	return f.Data, true
}

// levelAt returns the level the engine drove at t, searching from event i.
func (a *Adapter) levelAt(t time.Duration, i int) gpio.Level {
	l := gpio.Low
	for ; i < len(a.events) && a.events[i].At <= t; i++ {
		l = a.events[i].Level
	}
	return l
}

func (a *Adapter) readLocked() gpio.Level {
	if a.reply == nil {
		return gpio.Low
	}
	now := a.Clock.Elapsed()
	if now < a.replyAt {
		return gpio.Low
	}
	at := a.replyAt
	for _, p := range a.reply {
		end := at + a.ticks(p.Ticks)
		if now < end {
			return p.Level
		}
		at = end
	}
	return gpio.Low
}

func (a *Adapter) ticks(t protocol.Ticks) time.Duration {
	ui := a.UI
	if ui <= 0 {
		ui = protocol.UI
	}
	return t.Duration(ui)
}

var _ gpio.PinIO = &Adapter{}
