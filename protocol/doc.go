// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package protocol implements the physical layer of Adaptive Fast Charging
// (AFC), the single wire handshake used by wall adapters to switch VBUS
// between 5V and 9V.
//
// All timings are integer multiples of a Unit Interval (UI). The package
// works in ticks of a quarter UI so that both the UI wide data bits and the
// UI/4 framing pulses can be expressed exactly.
//
// A data byte is sent as:
//
//	start cycle | 8 data bits, MSB first | parity bit | guard | trailer
//
// The start cycle is 2 ticks: HIGH,LOW when the first data bit is 1 (short
// cycle) and HIGH,HIGH when it is 0 (long cycle). Each data bit and the
// parity bit occupy one UI at the bit level. The trailer is one UI wide pulse
// when the parity is even, and three UI/4 pulses when it is odd.
package protocol
