// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftdi

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Pin is a DBus pin of a Bench.
//
// It is immutable and stateless; the state lives in the Bench.
type Pin struct {
	n   string
	num int
	b   *Bench
}

// String implements conn.Resource.
func (p *Pin) String() string {
	return p.n
}

// Halt implements conn.Resource.
func (p *Pin) Halt() error {
	return nil
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return p.n
}

// Number implements pin.Pin.
func (p *Pin) Number() int {
	return p.num
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	return p.b.function(p.num)
}

// In implements gpio.PinIn.
//
// gpio.PullDown and gpio.Float are accepted on the assumption that an
// external resistor overrides the internal pull-up.
func (p *Pin) In(pull gpio.Pull, e gpio.Edge) error {
	if e != gpio.NoEdge {
		return errors.New("ftdi: edge triggering is not supported")
	}
	return p.b.in(p.num)
}

// Read implements gpio.PinIn.
func (p *Pin) Read() gpio.Level {
	return p.b.read(p.num)
}

// WaitForEdge implements gpio.PinIn.
func (p *Pin) WaitForEdge(t time.Duration) bool {
	return false
}

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull {
	// 200kΩ
	// http://www.ftdichip.com/Support/Documents/DataSheets/ICs/DS_FT232R.pdf
	// p. 24
	return gpio.PullUp
}

// Pull implements gpio.PinIn.
func (p *Pin) Pull() gpio.Pull {
	return gpio.PullUp
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	return p.b.out(p.num, l)
}

// PWM implements gpio.PinOut.
func (p *Pin) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("ftdi: PWM is not supported")
}

var _ gpio.PinIO = &Pin{}
