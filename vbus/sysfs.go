// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vbus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// Sysfs reads /sys/class/power_supply/<name>/voltage_now.
type Sysfs struct {
	name string
	path string

	mu  sync.Mutex
	f   *os.File // never closed unless Close is called
	buf [24]byte
}

// NewSysfs returns the sensor of the power supply name, e.g. "usb".
//
// The file is opened on first use.
func NewSysfs(name string) *Sysfs {
	return &Sysfs{name: name, path: filepath.Join(root, name, "voltage_now")}
}

// Supplies returns the power supplies exposing a voltage.
func Supplies() ([]string, error) {
	items, err := filepath.Glob(filepath.Join(root, "*", "voltage_now"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, filepath.Base(filepath.Dir(item)))
	}
	return out, nil
}

func (s *Sysfs) String() string {
	return "sysfs-vbus(" + s.name + ")"
}

// VBUS returns the voltage reported by the driver.
func (s *Sysfs) VBUS() (physic.ElectricPotential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		f, err := os.Open(s.path)
		if err != nil {
			if os.IsPermission(err) {
				return 0, fmt.Errorf("%s: need more access, try as root or setup udev rules: %v", s, err)
			}
			return 0, fmt.Errorf("%s: %w", s, err)
		}
		s.f = f
	}
	n, err := seekRead(s.f, s.buf[:])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s, err)
	}
	uv, err := parseInt(s.buf[:n])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s, err)
	}
	return physic.ElectricPotential(uv) * physic.MicroVolt, nil
}

// Close releases the file handle.
func (s *Sysfs) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// root is overridden in tests.
var root = "/sys/class/power_supply"

var errInvalid = errors.New("invalid value")

// seekRead reads a pseudo-file from its start. sysfs attributes are only
// refreshed on a read at offset 0.
func seekRead(f io.ReadSeeker, b []byte) (int, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return f.Read(b)
}

// parseInt parses a newline terminated integer as found in sysfs.
func parseInt(raw []byte) (int64, error) {
	if len(raw) == 0 || raw[len(raw)-1] != '\n' {
		return 0, errInvalid
	}
	return strconv.ParseInt(string(raw[:len(raw)-1]), 10, 64)
}
