// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"testing"

	"periph.io/x/afc"
)

func TestParseVoltage(t *testing.T) {
	if v, err := parseVoltage(9); err != nil || v != afc.V9 {
		t.Fatal(v, err)
	}
	if v, err := parseVoltage(5); err != nil || v != afc.V5 {
		t.Fatal(v, err)
	}
	if _, err := parseVoltage(12); !errors.Is(err, afc.ErrVoltage) {
		t.Fatal(err)
	}
}

func TestOpenSensor(t *testing.T) {
	s, err := openSensor("sysfs:usb", 9600)
	if err != nil {
		t.Fatal(err)
	}
	if n := s.(interface{ String() string }).String(); n != "sysfs-vbus(usb)" {
		t.Fatal(n)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	for _, spec := range []string{"usb", "sysfs:", "i2c:0x40"} {
		if _, err := openSensor(spec, 9600); err == nil {
			t.Errorf("%q: expected error", spec)
		}
	}
}

func TestPins(t *testing.T) {
	if _, err := pins("", "", false); err == nil {
		t.Fatal("expected error")
	}
	if _, err := pins("NOT_A_PIN", "", false); err == nil {
		t.Fatal("expected error")
	}
}
