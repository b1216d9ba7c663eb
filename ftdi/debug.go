// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build afc_ftdi_debug

package ftdi

import (
	"log"

	"periph.io/x/d2xx"
	"periph.io/x/d2xx/d2xxtest"
)

// logf is enabled when the build tag afc_ftdi_debug is specified.
func logf(fmt string, v ...any) {
	log.Printf(fmt, v...)
}

// resetLog wraps every handle to log the D2XX calls.
func (d *driver) resetLog() {
	d.d2xxOpen = func(i int) (d2xx.Handle, d2xx.Err) {
		h, e := d2xx.Open(i)
		if e != 0 {
			return h, e
		}
		return &d2xxtest.Log{H: h, Printf: logf}, e
	}
}
