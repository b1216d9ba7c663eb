// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftdi

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Info is the information gathered about the connected device.
type Info struct {
	// Type is the FTDI device type, e.g. "FT232R".
	Type string
	// VenID is the USB vendor ID, expected to be 0x0403.
	VenID uint16
	// DevID is the USB product ID.
	DevID uint16
}

// Bench is a FT232R whose DBus pins are used as GPIOs.
//
// Adafruit's cable only connects TX, RX, RTS and CTS. That is enough for the
// AFC data line and the cable switch.
type Bench struct {
	// Pin and their alias to the Dn pins for user convenience. Each pair points
	// to the exact same pin.
	D0, TX  gpio.PinIO
	D1, RX  gpio.PinIO
	D2, RTS gpio.PinIO
	D3, CTS gpio.PinIO
	D4, DTR gpio.PinIO
	D5, DSR gpio.PinIO
	D6, DCD gpio.PinIO
	D7, RI  gpio.PinIO

	index int
	name  string
	h     *handle
	pins  [8]Pin

	mu     sync.Mutex
	dmask  uint8 // 0 input, 1 output
	dvalue uint8 // last value written
}

// dnames are the UART names, as this is how all FT232R boards are marked.
var dnames = [...]string{"TX", "RX", "RTS", "CTS", "DTR", "DSR", "DCD", "RI"}

func newBench(h *handle, index int, name string) (*Bench, error) {
	if h.t != DevTypeFT232R {
		return nil, errors.New("ftdi: " + h.t.String() + " is not supported")
	}
	b := &Bench{index: index, name: name, h: h}
	for i := range b.pins {
		b.pins[i] = Pin{n: name + "." + dnames[i], num: i, b: b}
	}
	b.D0, b.TX = &b.pins[0], &b.pins[0]
	b.D1, b.RX = &b.pins[1], &b.pins[1]
	b.D2, b.RTS = &b.pins[2], &b.pins[2]
	b.D3, b.CTS = &b.pins[3], &b.pins[3]
	b.D4, b.DTR = &b.pins[4], &b.pins[4]
	b.D5, b.DSR = &b.pins[5], &b.pins[5]
	b.D6, b.DCD = &b.pins[6], &b.pins[6]
	b.D7, b.RI = &b.pins[7], &b.pins[7]
	// Everything as input.
	if err := h.SetBitMode(0, bitModeAsyncBitbang); err != nil {
		return nil, err
	}
	return b, nil
}

// String implements conn.Resource.
func (b *Bench) String() string {
	return b.name
}

// Halt implements conn.Resource.
//
// It turns every pin back into an input.
func (b *Bench) Halt() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setMaskLocked(0)
}

// Info returns information about the device.
func (b *Bench) Info(i *Info) {
	i.Type = b.h.t.String()
	i.VenID = b.h.venID
	i.DevID = b.h.devID
}

// Header returns the GPIO pins exposed on the chip.
func (b *Bench) Header() []gpio.PinIO {
	out := make([]gpio.PinIO, len(b.pins))
	for i := range b.pins {
		out[i] = &b.pins[i]
	}
	return out
}

func (b *Bench) function(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	mask := uint8(1 << uint(n))
	if b.dmask&mask != 0 {
		return "Out/" + gpio.Level(b.dvalue&mask != 0).String()
	}
	return "In/" + b.readLocked(n).String()
}

func (b *Bench) in(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setMaskLocked(b.dmask &^ (1 << uint(n)))
}

func (b *Bench) read(n int) gpio.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked(n)
}

func (b *Bench) readLocked(n int) gpio.Level {
	v, err := b.h.GetBitMode()
	if err != nil {
		logf("ftdi: %s: %v", b.pins[n].n, err)
		return gpio.Low
	}
	return v&(1<<uint(n)) != 0
}

func (b *Bench) out(n int, l gpio.Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mask := uint8(1 << uint(n))
	v := b.dvalue &^ mask
	if l {
		v |= mask
	}
	// Set the value before enabling the output so it doesn't glitch.
	if err := b.h.Write([]byte{v}); err != nil {
		return err
	}
	b.dvalue = v
	if err := b.setMaskLocked(b.dmask | mask); err != nil {
		return err
	}
	// Each write queues a sample in the read buffer; nothing consumes them.
	return b.h.Flush()
}

func (b *Bench) setMaskLocked(mask uint8) error {
	if mask == b.dmask {
		return nil
	}
	if err := b.h.SetBitMode(mask, bitModeAsyncBitbang); err != nil {
		return err
	}
	b.dmask = mask
	return nil
}

var _ conn.Resource = &Bench{}
