// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package clock

import "runtime"

// Realtime locks the calling goroutine to its OS thread. Memory locking and
// CPU affinity are only supported on linux.
func Realtime(cpu int) (func(), error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}
