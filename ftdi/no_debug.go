// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !afc_ftdi_debug

package ftdi

func logf(fmt string, v ...any) {
}

func (d *driver) resetLog() {
}
