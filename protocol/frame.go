// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"math/bits"

	"periph.io/x/conn/v3/gpio"
)

// Pulse is a line level held for a number of ticks.
type Pulse struct {
	Level gpio.Level
	Ticks Ticks
}

// Frame layout, in ticks.
const (
	startTicks   = 2
	bitTicks     = TicksPerUI
	dataOffset   = startTicks
	parityOffset = dataOffset + 8*bitTicks
	guardOffset  = parityOffset + bitTicks
	// trailerOffset is where the trailer pulses begin.
	trailerOffset = guardOffset + 1
	// trailerTicks is the longest trailer (odd parity) plus the final LOW.
	trailerTicks = 6
	// FrameTicks is the number of ticks covered by an encoded byte.
	FrameTicks = trailerOffset + trailerTicks
)

// Parity returns true when b has an odd number of bits set.
func Parity(b byte) bool {
	return bits.OnesCount8(b)%2 == 1
}

// TrailerPulses returns the pulses closing a frame whose parity bit is
// parity.
//
// Even parity is marked by a single UI wide HIGH pulse, odd parity by three
// UI/4 HIGH pulses. Both are preceded by a one tick LOW guard and end LOW.
func TrailerPulses(parity bool) []Pulse {
	if !parity {
		return []Pulse{
			{gpio.Low, 1},
			{gpio.High, bitTicks},
			{gpio.Low, 1},
		}
	}
	return []Pulse{
		{gpio.Low, 1},
		{gpio.High, 1},
		{gpio.Low, 1},
		{gpio.High, 1},
		{gpio.Low, 1},
		{gpio.High, 1},
		{gpio.Low, 1},
	}
}

// StartCycle returns the pulses marking the start of a frame carrying b.
//
// A 1 as first bit is announced by a short cycle (HIGH then LOW), a 0 by a
// long one (HIGH for two ticks).
func StartCycle(b byte) []Pulse {
	if b&0x80 != 0 {
		return []Pulse{{gpio.High, 1}, {gpio.Low, 1}}
	}
	return []Pulse{{gpio.High, startTicks}}
}

// DataPulses returns the 8 data bits of b, MSB first, followed by the parity
// bit. Each pulse is one UI wide.
func DataPulses(b byte) []Pulse {
	p := make([]Pulse, 0, 9)
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		p = append(p, Pulse{gpio.Level(b&mask != 0), bitTicks})
	}
	return append(p, Pulse{gpio.Level(Parity(b)), bitTicks})
}

// Encode returns the pulses transmitting b.
//
// Consecutive pulses may share the same level; the caller drives them one
// after the other.
func Encode(b byte) []Pulse {
	p := StartCycle(b)
	p = append(p, DataPulses(b)...)
	return append(p, TrailerPulses(Parity(b))...)
}

// Len returns the total number of ticks covered by p.
func Len(p []Pulse) Ticks {
	var t Ticks
	for _, x := range p {
		t += x.Ticks
	}
	return t
}

// Samples expands p into one level per tick.
func Samples(p []Pulse) []gpio.Level {
	out := make([]gpio.Level, 0, Len(p))
	for _, x := range p {
		for range x.Ticks {
			out = append(out, x.Level)
		}
	}
	return out
}

// Frame is a decoded data byte.
type Frame struct {
	Data   byte
	Parity bool
}

// Decoding errors.
var (
	ErrFrameShort   = errors.New("protocol: frame truncated")
	ErrFrameStart   = errors.New("protocol: invalid start cycle")
	ErrFrameParity  = errors.New("protocol: parity mismatch")
	ErrFrameTrailer = errors.New("protocol: invalid trailer")
	ErrNoResponse   = errors.New("protocol: no response")
)

// DecodeFrame decodes a frame sampled once per tick. samples[0] must be the
// first tick of the start cycle.
func DecodeFrame(samples []gpio.Level) (Frame, error) {
	if len(samples) < trailerOffset+trailerTicks-1 {
		return Frame{}, ErrFrameShort
	}
	if !samples[0] {
		return Frame{}, ErrFrameStart
	}
	var f Frame
	for i := range 8 {
		// Sample in the middle of the bit.
		if samples[dataOffset+i*bitTicks+bitTicks/2] {
			f.Data |= 0x80 >> i
		}
	}
	short := !samples[1]
	if short != (f.Data&0x80 != 0) {
		return f, ErrFrameStart
	}
	f.Parity = bool(samples[parityOffset+bitTicks/2])
	if f.Parity != Parity(f.Data) {
		return f, ErrFrameParity
	}
	if samples[guardOffset] {
		return f, ErrFrameTrailer
	}
	trailer := samples[trailerOffset:]
	if len(trailer) > trailerTicks {
		trailer = trailer[:trailerTicks]
	}
	pulses, widest := highRuns(trailer)
	switch {
	case !f.Parity && pulses == 1 && widest == bitTicks:
	case f.Parity && pulses == 3 && widest == 1:
	default:
		return f, ErrFrameTrailer
	}
	return f, nil
}

// DecodeResponse decodes an adapter reply sampled once per tick from the
// moment the line was released: an optional idle period, a SPING, an idle
// gap, then a frame.
func DecodeResponse(samples []gpio.Level) (Frame, error) {
	i := 0
	for i < len(samples) && !samples[i] {
		i++
	}
	start := i
	for i < len(samples) && samples[i] {
		i++
	}
	if i == start || i == len(samples) {
		return Frame{}, ErrNoResponse
	}
	if err := ClassifySping(Ticks(i - start).RoundUI()); err != nil {
		return Frame{}, err
	}
	for i < len(samples) && !samples[i] {
		i++
	}
	if i == len(samples) {
		return Frame{}, ErrNoResponse
	}
	return DecodeFrame(samples[i:])
}

// ClassifySping validates the width of a SPING expressed in UI.
func ClassifySping(ui int) error {
	switch {
	case ui < SpingMinUI:
		return &Error{Code: SpingTooShort, UI: ui}
	case ui > SpingMaxUI:
		return &Error{Code: SpingTooLong, UI: ui}
	}
	return nil
}

// highRuns returns the number of HIGH runs in s and the length of the
// longest one.
func highRuns(s []gpio.Level) (n, widest int) {
	run := 0
	for _, l := range s {
		if l {
			if run == 0 {
				n++
			}
			run++
			widest = max(widest, run)
		} else {
			run = 0
		}
	}
	return n, widest
}
