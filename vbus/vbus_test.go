// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vbus

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"periph.io/x/conn/v3/physic"
)

func TestSysfs(t *testing.T) {
	setRoot(t)
	p := writeSupply(t, "usb", "5012000\n")
	s := NewSysfs("usb")
	defer s.Close()
	v, err := s.VBUS()
	if err != nil {
		t.Fatal(err)
	}
	if v != 5012*physic.MilliVolt {
		t.Fatal(v)
	}
	// The value is read again on each call.
	if err := os.WriteFile(p, []byte("9001000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if v, err = s.VBUS(); err != nil || v != 9001*physic.MilliVolt {
		t.Fatal(v, err)
	}
	if s.String() != "sysfs-vbus(usb)" {
		t.Fatal(s.String())
	}
}

func TestSysfsErrors(t *testing.T) {
	setRoot(t)
	if _, err := NewSysfs("missing").VBUS(); !errors.Is(err, os.ErrNotExist) {
		t.Fatal(err)
	}
	writeSupply(t, "ac", "12")
	if _, err := NewSysfs("ac").VBUS(); !errors.Is(err, errInvalid) {
		t.Fatal(err)
	}
	writeSupply(t, "bad", "abc\n")
	if _, err := NewSysfs("bad").VBUS(); err == nil {
		t.Fatal("expected error")
	}
}

func TestSupplies(t *testing.T) {
	setRoot(t)
	writeSupply(t, "usb", "5000000\n")
	writeSupply(t, "battery", "3800000\n")
	if err := os.Mkdir(filepath.Join(root, "wireless"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := Supplies()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"battery", "usb"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("%v != %v", got, want)
	}
}

func TestSerial(t *testing.T) {
	data := []struct {
		reply string
		want  physic.ElectricPotential
	}{
		{"5.012\n", 5012 * physic.MilliVolt},
		{"+9.000E+00\r\n", 9 * physic.Volt},
		{"4.2V\n", 4200 * physic.MilliVolt},
	}
	for i, line := range data {
		rw := &meter{in: strings.NewReader(line.reply)}
		s := NewSerial(rw)
		v, err := s.VBUS()
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if v != line.want {
			t.Fatalf("#%d: %s != %s", i, v, line.want)
		}
		if q := rw.out.String(); q != DefaultQuery+"\n" {
			t.Fatalf("#%d: sent %q", i, q)
		}
	}
}

func TestSerialErrors(t *testing.T) {
	if _, err := NewSerial(&meter{in: strings.NewReader("OVLD\n")}).VBUS(); !errors.Is(err, errInvalid) {
		t.Fatal(err)
	}
	if _, err := NewSerial(&meter{in: strings.NewReader("")}).VBUS(); err == nil {
		t.Fatal("expected error")
	}
	if err := NewSerial(&meter{}).Close(); err != nil {
		t.Fatal(err)
	}
}

//

type meter struct {
	in  *strings.Reader
	out bytes.Buffer
}

func (m *meter) Read(b []byte) (int, error) {
	return m.in.Read(b)
}

func (m *meter) Write(b []byte) (int, error) {
	return m.out.Write(b)
}

func setRoot(t *testing.T) {
	old := root
	root = t.TempDir()
	t.Cleanup(func() { root = old })
}

func writeSupply(t *testing.T, name, content string) string {
	d := filepath.Join(root, name)
	if err := os.MkdirAll(d, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(d, "voltage_now")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}
