// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package vbus reads the bus voltage of a USB charging port.
//
// Sysfs reads the voltage reported by a Linux power supply driver. Serial
// queries a bench meter over a serial port, for setups where the charger
// under test is not the host.
package vbus
