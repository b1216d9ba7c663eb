// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ftdi exposes the data bus of FT232R USB adapters as GPIO pins, so
// an AFC engine can run from a workstation against an adapter on the bench.
//
// The D0~D7 pins are driven in asynchronous bit-bang mode: a write changes
// the outputs as soon as it reaches the chip and a read samples the pins
// instantly. Each access is a USB round trip, so the engine must be
// configured with a UI long enough to absorb the USB latency. Wire an
// external pull-down on the data line; the internal 200kΩ pull-ups cannot be
// disabled.
//
// The pins are registered in gpioreg as "FT232R.TX", "FT232R.RX", etc, and as
// "TX", "RX", etc when a single device is connected.
//
// Use build tag afc_ftdi_debug to log every D2XX call.
//
// # Datasheets
//
// http://www.ftdichip.com/Support/Documents/DataSheets/ICs/DS_FT232R.pdf
//
// http://www.ftdichip.com/Support/Documents/AppNotes/AN_232R-01_Bit_Bang_Mode_Available_For_FT232R_and_Ft245R.pdf
package ftdi
