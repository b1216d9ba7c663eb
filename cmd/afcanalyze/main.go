// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command afcanalyze decodes the AFC traffic of a Saleae binary digital
// capture of the data line.
//
// Every HIGH run of at least MinPingUI is reported as a ping, with its width.
// A shorter run following a ping is decoded as a data frame.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/soypat/saleae"
	"golang.org/x/exp/constraints"
	"periph.io/x/afc/protocol"
	"periph.io/x/conn/v3/gpio"
)

// MinPingUI is the narrowest HIGH run reported as a ping. Data frames never
// hold the line HIGH for more than 8 UI.
const MinPingUI = 9

// maxGapUI is the widest idle period between a ping and the frame it
// announces.
const maxGapUI = 4

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "afcanalyze - Decode AFC frames from a Saleae binary digital capture.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	input := flag.String("f", "digital_0.bin", "Input filename: AFC data line.")
	ui := flag.Duration("ui", protocol.UI, "Unit Interval.")
	invert := flag.Bool("invert", false, "The probe sees the line inverted.")
	flag.Parse()
	if *ui <= 0 {
		log.Fatal("invalid UI ", *ui)
	}
	start := time.Now()
	c, err := opendigital(*input)
	if err != nil {
		log.Fatal(err)
	}
	c.Initial = c.Initial != *invert
	events := analyze(c.resample(*ui/protocol.TicksPerUI))
	if err := write(os.Stdout, c, *ui, events); err != nil {
		log.Fatal(err)
	}
	log.Println("decoded", len(events), "events in", time.Since(start))
}

func opendigital(filename string) (*capture, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return &capture{
		Initial:     nonzero(df.Header.InitialState),
		Begin:       df.Header.Begin,
		End:         df.Header.End,
		Transitions: df.Data,
	}, nil
}

// capture is a single digital channel, with times in seconds.
type capture struct {
	Initial     bool
	Begin       float64
	End         float64
	Transitions []float64
}

// resample returns the level at the centre of every tick of the capture.
func (c *capture) resample(tick time.Duration) []gpio.Level {
	s := tick.Seconds()
	n := int((c.End - c.Begin) / s)
	out := make([]gpio.Level, 0, clamp(n, 0, 1<<28))
	level := c.Initial
	j := 0
	for i := range cap(out) {
		t := c.Begin + (float64(i)+0.5)*s
		for j < len(c.Transitions) && c.Transitions[j] <= t {
			level = !level
			j++
		}
		out = append(out, gpio.Level(level))
	}
	return out
}

type kind uint8

const (
	ping kind = iota
	frame
	glitch
)

func (k kind) String() string {
	switch k {
	case ping:
		return "ping"
	case frame:
		return "frame"
	default:
		return "glitch"
	}
}

// event is a decoded element, positioned in ticks from the capture start.
type event struct {
	At    protocol.Ticks
	Kind  kind
	Width protocol.Ticks
	Frame protocol.Frame
	Err   error
}

// analyze splits samples taken once per tick into pings and frames.
func analyze(samples []gpio.Level) []event {
	var out []event
	// End of the last ping, -1 when no frame is expected.
	lastPing := -1
	i := 0
	for {
		for i < len(samples) && !samples[i] {
			i++
		}
		if i == len(samples) {
			return out
		}
		start := i
		for i < len(samples) && samples[i] {
			i++
		}
		w := protocol.Ticks(i - start)
		if w.RoundUI() >= MinPingUI {
			// MPING and SPING share the same width range.
			out = append(out, event{At: protocol.Ticks(start), Kind: ping, Width: w, Err: protocol.ClassifySping(w.RoundUI())})
			lastPing = i
			continue
		}
		if lastPing < 0 || start-lastPing > int(protocol.UIs(maxGapUI)) {
			out = append(out, event{At: protocol.Ticks(start), Kind: glitch, Width: w})
			continue
		}
		end := clamp(start+protocol.FrameTicks, start, len(samples))
		f, err := protocol.DecodeFrame(samples[start:end])
		out = append(out, event{At: protocol.Ticks(start), Kind: frame, Width: protocol.Ticks(end - start), Frame: f, Err: err})
		if err == nil {
			i = end
		}
		lastPing = -1
	}
}

func write(w io.Writer, c *capture, ui time.Duration, events []event) error {
	tick := ui / protocol.TicksPerUI
	for _, e := range events {
		t := c.Begin + (time.Duration(e.At) * tick).Seconds()
		var err error
		switch e.Kind {
		case ping:
			_, err = fmt.Fprintf(w, "t=%f\tping\t%d UI", t, e.Width.RoundUI())
		case frame:
			_, err = fmt.Fprintf(w, "t=%f\tframe\tdata=%#02x parity=%t", t, e.Frame.Data, e.Frame.Parity)
		default:
			_, err = fmt.Fprintf(w, "t=%f\tglitch\t%s", t, e.Width.Duration(ui))
		}
		if err != nil {
			return err
		}
		if e.Err != nil {
			fmt.Fprintf(w, "\t%v", e.Err)
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// nonzero reports whether v is set.
func nonzero[T comparable](v T) bool {
	var zero T
	return v != zero
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
