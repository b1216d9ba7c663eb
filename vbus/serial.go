// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vbus

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3/physic"
)

// DefaultQuery is the SCPI query for a DC voltage measurement.
const DefaultQuery = "MEAS:VOLT:DC?"

// Serial queries a line based bench meter.
//
// Each VBUS call writes Query followed by a newline and parses the reply line
// as a voltage in volts, with or without a trailing "V".
type Serial struct {
	// Query is the command sent for each measurement.
	Query string

	name string
	mu   sync.Mutex
	rw   io.ReadWriter
	r    *bufio.Reader
	c    io.Closer
}

// OpenSerial opens the meter on the serial port dev.
func OpenSerial(dev string, baud int) (*Serial, error) {
	c := &serial.Config{Name: dev, Baud: baud, ReadTimeout: time.Second}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("vbus: failed to open serial port %s: %w", dev, err)
	}
	s := NewSerial(p)
	s.name = dev
	s.c = p
	return s, nil
}

// NewSerial returns a meter talking over rw.
func NewSerial(rw io.ReadWriter) *Serial {
	return &Serial{Query: DefaultQuery, name: "meter", rw: rw, r: bufio.NewReader(rw)}
}

func (s *Serial) String() string {
	return "serial-vbus(" + s.name + ")"
}

// VBUS returns the voltage measured by the meter.
func (s *Serial) VBUS() (physic.ElectricPotential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.rw, s.Query+"\n"); err != nil {
		return 0, fmt.Errorf("%s: %w", s, err)
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s, err)
	}
	v, err := parseVolts(line)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s, err)
	}
	return v, nil
}

// Close closes the serial port.
func (s *Serial) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

func parseVolts(line string) (physic.ElectricPotential, error) {
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, "V")
	f, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalid, line)
	}
	return physic.ElectricPotential(math.Round(f * float64(physic.Volt))), nil
}
