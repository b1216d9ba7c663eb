// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package afc negotiates the VBUS voltage of an Adaptive Fast Charging
// adapter by bit-banging its single wire protocol on a GPIO pin.
//
// A negotiation routes the cable to the data pin, runs the handshake rounds,
// then polls VBUS until the requested voltage is observed. Failed attempts
// are retried unless the cable is gone. The outcome is sent to a Reporter.
//
// Two engines implement the same protocol: BlockingEngine busy-waits on a
// goroutine, TimerEngine steps the handshake from one-shot timers.
//
// Example
//
//	if _, err := afc.Init(); err != nil {
//		log.Fatal(err)
//	}
//	p := afc.Pins{Data: gpioreg.ByName("GPIO17"), Switch: gpioreg.ByName("GPIO27")}
//	e, err := afc.New(p, vbus.NewSysfs("usb"), afc.ReporterFunc(func(r afc.Result) {
//		log.Print(r)
//	}), nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer e.Halt()
//	if err := e.RequestVoltage(afc.V9); err != nil {
//		log.Fatal(err)
//	}
package afc
