// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package protocol

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// UI is the default Unit Interval.
const UI = 160 * time.Microsecond

// TicksPerUI is the number of ticks in one UI.
const TicksPerUI = 4

// Pulse widths and windows, in UI.
const (
	MpingUI       = 16
	SpingMinUI    = 10
	SpingMaxUI    = 20
	WaitSpingUI   = 16
	RecvDataUI    = 46
	RequestLeadUI = 2
)

// Session level constants.
const (
	// CommCount is the number of handshake rounds in one negotiation.
	CommCount = 9
	// RoundDelay is the pause between two handshake rounds.
	RoundDelay = 38 * time.Millisecond
	// RetryMax is the number of failed attempts after which a request is
	// reported as failed.
	RetryMax = 5
	// RetryDelay is the pause before a failed attempt is retried.
	RetryDelay = 100 * time.Millisecond
	// VBUSRetryMax is the number of VBUS samples taken while waiting for the
	// adapter to apply the requested voltage.
	VBUSRetryMax = 5
	// VBUSPollInterval is the pause between two VBUS samples.
	VBUSPollInterval = 20 * time.Millisecond
)

// Control bytes.
const (
	Control5V byte = 0x08
	Control9V byte = 0x46
)

// VBUS thresholds.
const (
	// VBUS5VMax is the upper bound of the 5V band.
	VBUS5VMax = 5500 * physic.MilliVolt
	// VBUS9VMin is the lower bound of the 9V band.
	VBUS9VMin = 7500 * physic.MilliVolt
	// CablePresentMin is the floor above which a cable is considered present.
	CablePresentMin = 3500 * physic.MilliVolt
)

// Ticks is a duration expressed in quarter UI.
type Ticks int

// UIs returns n UI as ticks.
func UIs(n int) Ticks {
	return Ticks(n * TicksPerUI)
}

// Duration converts t to a duration given the length of one UI.
func (t Ticks) Duration(ui time.Duration) time.Duration {
	return time.Duration(t) * ui / TicksPerUI
}

// RoundUI converts t to UI, rounding to the nearest UI.
func (t Ticks) RoundUI() int {
	return int(t+TicksPerUI/2) / TicksPerUI
}
