// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"periph.io/x/afc/protocol"
	"periph.io/x/conn/v3/gpio"
)

func TestAnalyze(t *testing.T) {
	var w wave
	w.add(gpio.Low, 8)
	mping := w.add(gpio.High, protocol.UIs(protocol.MpingUI))
	w.add(gpio.Low, 8)
	sping := w.add(gpio.High, protocol.UIs(15))
	w.add(gpio.Low, protocol.UIs(protocol.RequestLeadUI))
	req := w.frame(protocol.Control9V)
	w.add(gpio.Low, 8)
	reply := w.add(gpio.High, protocol.UIs(12))
	w.add(gpio.Low, protocol.UIs(1))
	echo := w.frame(protocol.Control9V)
	w.add(gpio.Low, 20)
	g := w.add(gpio.High, 3)
	w.add(gpio.Low, 8)
	long := w.add(gpio.High, protocol.UIs(25))
	w.add(gpio.Low, 8)

	got := analyze(w.s)
	want := []event{
		{At: mping, Kind: ping, Width: protocol.UIs(16)},
		{At: sping, Kind: ping, Width: protocol.UIs(15)},
		{At: req, Kind: frame, Width: protocol.FrameTicks, Frame: protocol.Frame{Data: 0x46, Parity: true}},
		{At: reply, Kind: ping, Width: protocol.UIs(12)},
		{At: echo, Kind: frame, Width: protocol.FrameTicks, Frame: protocol.Frame{Data: 0x46, Parity: true}},
		{At: g, Kind: glitch, Width: 3},
		{At: long, Kind: ping, Width: protocol.UIs(25), Err: protocol.ErrSpingTooLong},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		g, x := got[i], want[i]
		if g.At != x.At || g.Kind != x.Kind || g.Width != x.Width || g.Frame != x.Frame {
			t.Errorf("#%d: got %+v, want %+v", i, g, x)
		}
		if (x.Err == nil) != (g.Err == nil) || (x.Err != nil && !errors.Is(g.Err, x.Err)) {
			t.Errorf("#%d: got error %v, want %v", i, g.Err, x.Err)
		}
	}
}

func TestAnalyzeBadFrame(t *testing.T) {
	var w wave
	w.add(gpio.Low, 4)
	w.add(gpio.High, protocol.UIs(16))
	w.add(gpio.Low, 8)
	start := w.frame(0x08)
	// Corrupt the parity bit.
	p := int(start) + 2 + 8*protocol.TicksPerUI
	for i := p; i < p+protocol.TicksPerUI; i++ {
		w.s[i] = !w.s[i]
	}
	w.add(gpio.Low, 8)
	got := analyze(w.s)
	if len(got) < 2 || got[1].Kind != frame || !errors.Is(got[1].Err, protocol.ErrFrameParity) {
		t.Fatalf("%+v", got)
	}
}

func TestResample(t *testing.T) {
	tick := 40 * time.Microsecond
	s := tick.Seconds()
	c := capture{
		Initial:     false,
		Begin:       1,
		End:         1 + 10.5*s,
		Transitions: []float64{1 + 2*s, 1 + 5*s},
	}
	got := c.resample(tick)
	want := []gpio.Level{gpio.Low, gpio.Low, gpio.High, gpio.High, gpio.High, gpio.Low, gpio.Low, gpio.Low, gpio.Low, gpio.Low}
	if len(got) != len(want) {
		t.Fatalf("%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("#%d: %v", i, got)
		}
	}
}

func TestOpenDigital(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("<SALEAE>")
	for _, v := range []any{
		int32(0),  // version
		int32(0),  // digital
		uint32(1), // initial state
		0.25,      // begin
		0.75,      // end
		uint64(2),
		0.5,
		0.6,
	} {
		if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	name := filepath.Join(t.TempDir(), "digital_0.bin")
	if err := os.WriteFile(name, b.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := opendigital(name)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Initial || c.Begin != 0.25 || c.End != 0.75 {
		t.Fatalf("%+v", c)
	}
	if len(c.Transitions) != 2 || c.Transitions[0] != 0.5 || c.Transitions[1] != 0.6 {
		t.Fatalf("%v", c.Transitions)
	}
	if _, err := opendigital(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatal("expected error")
	}
}

func TestWrite(t *testing.T) {
	c := capture{Begin: 0.5}
	events := []event{
		{At: 8, Kind: ping, Width: protocol.UIs(16)},
		{At: 100, Kind: frame, Frame: protocol.Frame{Data: 0x08, Parity: true}},
		{At: 200, Kind: glitch, Width: 2},
	}
	var b bytes.Buffer
	if err := write(&b, &c, protocol.UI, events); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 {
		t.Fatal(b.String())
	}
	if lines[0] != "t=0.500320\tping\t16 UI" {
		t.Errorf("%q", lines[0])
	}
	if lines[1] != "t=0.504000\tframe\tdata=0x08 parity=true" {
		t.Errorf("%q", lines[1])
	}
	if lines[2] != "t=0.508000\tglitch\t80µs" {
		t.Errorf("%q", lines[2])
	}
}

func TestClamp(t *testing.T) {
	if clamp(5, 0, 3) != 3 || clamp(-1, 0, 3) != 0 || clamp(2, 0, 3) != 2 {
		t.Fatal("clamp")
	}
	if nonzero(uint32(0)) || !nonzero(uint32(1)) || nonzero(false) || !nonzero(true) {
		t.Fatal("nonzero")
	}
}

//

// wave builds a sampled waveform, one level per tick.
type wave struct {
	s []gpio.Level
}

// add appends a run and returns its first tick.
func (w *wave) add(l gpio.Level, n protocol.Ticks) protocol.Ticks {
	at := protocol.Ticks(len(w.s))
	for range n {
		w.s = append(w.s, l)
	}
	return at
}

func (w *wave) frame(b byte) protocol.Ticks {
	at := protocol.Ticks(len(w.s))
	w.s = append(w.s, protocol.Samples(protocol.Encode(b))...)
	return at
}
