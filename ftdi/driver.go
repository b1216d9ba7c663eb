// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftdi

import (
	"strconv"
	"sync"

	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/d2xx"
)

// All enumerates the FT232R devices opened by the driver.
func All() []*Bench {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	out := make([]*Bench, len(drv.all))
	copy(out, drv.all)
	return out
}

//

// open opens a FTDI device.
func open(opener func(i int) (d2xx.Handle, d2xx.Err), i int) (*Bench, error) {
	h, err := openHandle(opener, i)
	if err != nil {
		return nil, err
	}
	if err := h.Init(); err != nil {
		// The device may be in an unexpected state, so try resetting it first.
		if err := h.Reset(); err != nil {
			_ = h.Close()
			return nil, err
		}
		if err := h.Init(); err != nil {
			_ = h.Close()
			return nil, err
		}
	}
	name := h.t.String()
	if i > 0 {
		// When more than one device is present, add "(index)" suffix.
		name += "(" + strconv.Itoa(i) + ")"
	}
	b, err := newBench(h, i, name)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	return b, nil
}

// register registers the pins of b in gpioreg.
func register(b *Bench, multi bool) error {
	for _, p := range b.Header() {
		if err := gpioreg.Register(p); err != nil {
			return err
		}
	}
	if !multi {
		// Register shorthands.
		prefix := len(b.name) + 1
		for _, p := range b.Header() {
			n := p.Name()
			if err := gpioreg.RegisterAlias(n[prefix:], n); err != nil {
				return err
			}
		}
	}
	return nil
}

// driver implements driver.Impl.
type driver struct {
	mu         sync.Mutex
	all        []*Bench
	d2xxOpen   func(i int) (d2xx.Handle, d2xx.Err)
	numDevices func() (int, error)
}

func (d *driver) String() string {
	return "ftdi-afc"
}

func (d *driver) Prerequisites() []string {
	return nil
}

func (d *driver) After() []string {
	return nil
}

// Init opens every FT232R connected.
//
// Devices that fail to open are skipped; the last error is returned.
func (d *driver) Init() (bool, error) {
	num, err := d.numDevices()
	if err != nil {
		return true, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	multi := num > 1
	for i := 0; i < num; i++ {
		b, err1 := open(d.d2xxOpen, i)
		if err1 != nil {
			logf("ftdi: device #%d: %v", i, err1)
			err = err1
			continue
		}
		d.all = append(d.all, b)
		if err1 = register(b, multi); err1 != nil {
			return true, err1
		}
	}
	return true, err
}

func (d *driver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = nil
	// open is mocked in tests.
	d.d2xxOpen = d2xx.Open
	// numDevices is mocked in tests.
	d.numDevices = numDevices
}

func init() {
	if d2xx.Available {
		drv.reset()
		drv.resetLog()
		driverreg.MustRegister(&drv)
	}
}

var drv driver
