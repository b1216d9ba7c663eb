// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package line

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/pin"
)

// FuncCtrl is a PinCtrl for pins implementing pin.PinFunc.
//
// "active" selects gpio.OUT_LOW and "sleep" selects gpio.IN, which is what
// host GPIO drivers offer in place of a pin mux.
type FuncCtrl struct {
	Pin pin.PinFunc
}

// Select implements PinCtrl.
func (f *FuncCtrl) Select(state string) error {
	switch state {
	case StateActive:
		if fn := f.Pin.Func(); fn == gpio.OUT_HIGH || fn == gpio.OUT_LOW {
			// Already driving; do not glitch the line.
			return nil
		}
		return f.Pin.SetFunc(gpio.OUT_LOW)
	case StateSleep:
		return f.Pin.SetFunc(gpio.IN)
	default:
		return fmt.Errorf("line: unknown pin state %q", state)
	}
}
