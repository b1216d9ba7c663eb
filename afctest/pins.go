// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package afctest

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
)

// Supply is the VBUS output of the adapter.
//
// It starts at 5V. The adapter moves it when it decodes a request unless it
// is held.
type Supply struct {
	mu    sync.Mutex
	v     physic.ElectricPotential
	err   error
	hold  bool
	reads int
}

// NewSupply returns a Supply at v.
func NewSupply(v physic.ElectricPotential) *Supply {
	return &Supply{v: v}
}

// VBUS returns the current output voltage.
func (s *Supply) VBUS() (physic.ElectricPotential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.v, s.err
}

// Set forces the output voltage.
func (s *Supply) Set(v physic.ElectricPotential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
}

// SetErr makes VBUS fail with err. nil clears it.
func (s *Supply) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Hold prevents requests from changing the output.
func (s *Supply) Hold(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = hold
}

// Reads returns how many times VBUS was sampled.
func (s *Supply) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// apply switches the output for a control byte.
func (s *Supply) apply(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold {
		return
	}
	switch b {
	case 0x08:
		s.v = 5000 * physic.MilliVolt
	case 0x46:
		s.v = 9000 * physic.MilliVolt
	}
}

// Switch is a recording output pin.
type Switch struct {
	N string
	// OnOut is called after every successful Out, without locks held.
	OnOut func(l gpio.Level)

	mu     sync.Mutex
	levels []gpio.Level
	err    error
}

// Levels returns every level written so far.
func (s *Switch) Levels() []gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gpio.Level(nil), s.levels...)
}

// Level returns the last level written, Low if none.
func (s *Switch) Level() gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.levels) == 0 {
		return gpio.Low
	}
	return s.levels[len(s.levels)-1]
}

// SetErr makes Out fail with err. nil clears it.
func (s *Switch) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Switch) String() string {
	return s.N
}

func (s *Switch) Halt() error {
	return nil
}

func (s *Switch) Name() string {
	return s.N
}

func (s *Switch) Number() int {
	return -1
}

func (s *Switch) Function() string {
	return string(s.Func())
}

func (s *Switch) Func() pin.Func {
	return gpio.OUT
}

func (s *Switch) Out(l gpio.Level) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.levels = append(s.levels, l)
	hook := s.OnOut
	s.mu.Unlock()
	if hook != nil {
		hook(l)
	}
	return nil
}

func (s *Switch) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("afctest: PWM is not supported")
}

// Ctrl is a recording pin control.
type Ctrl struct {
	mu     sync.Mutex
	states []string
	err    error
}

// Select records state.
func (c *Ctrl) Select(state string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.states = append(c.states, state)
	return nil
}

// States returns the states selected so far.
func (c *Ctrl) States() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.states...)
}

// SetErr makes Select fail with err. nil clears it.
func (c *Ctrl) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

var _ gpio.PinOut = &Switch{}
