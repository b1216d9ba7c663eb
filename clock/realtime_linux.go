// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package clock

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Realtime reduces the jitter of Delay on the calling goroutine.
//
// It locks the goroutine to its OS thread, pins that thread to cpu and locks
// the process memory so the busy-wait loop is not interrupted by page faults.
// The returned function undoes the thread binding. Memory stays locked.
//
// A negative cpu keeps the current affinity.
func Realtime(cpu int) (func(), error) {
	runtime.LockOSThread()
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("clock: mlockall: %w", err)
	}
	if cpu >= 0 {
		var set unix.CPUSet
		set.Zero()
		set.Set(cpu)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			runtime.UnlockOSThread()
			return nil, fmt.Errorf("clock: affinity cpu %d: %w", cpu, err)
		}
	}
	return runtime.UnlockOSThread, nil
}
