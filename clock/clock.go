// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package clock provides the timing primitives used to bit-bang the AFC line.
//
// Delay busy-waits and is used for UI scale pulses, Sleep yields and is used
// for millisecond scale pacing, AfterFunc arms a one-shot timer and is used by
// the timer driven engine.
package clock

import (
	"context"
	"time"

	"periph.io/x/host/v3/cpu"
)

// Clock is the timing collaborator of the AFC engine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Delay blocks the calling goroutine for d without yielding.
	Delay(d time.Duration)
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
	// AfterFunc calls f once in its own goroutine after d elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from happening. It returns false if the call
	// already started.
	Stop() bool
}

// Host is the Clock of the running host.
var Host Clock = host{}

type host struct{}

func (host) Now() time.Time {
	return time.Now()
}

func (host) Delay(d time.Duration) {
	cpu.Nanospin(d)
}

func (host) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (host) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
