// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package afc

import (
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/host/v3"
)

// Init loads the host GPIO drivers, and the FTDI driver when the ftdi package
// is imported, then returns driverreg's state as-is.
//
// Call it once before resolving pins with gpioreg.ByName.
func Init() (*driverreg.State, error) {
	return host.Init()
}
