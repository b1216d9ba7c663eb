// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftdi

import (
	"errors"

	"periph.io/x/d2xx"
)

// bitMode is used by SetBitMode to change the chip behavior.
type bitMode uint8

const (
	// Resets all pins to their default value.
	bitModeReset bitMode = 0x00
	// Sets the DBus to asynchronous bit-bang.
	bitModeAsyncBitbang bitMode = 0x01
)

// DevType is the FTDI device type as reported by the USB descriptor.
type DevType uint32

// Device types that matter here.
const (
	DevTypeUnknown DevType = 3
	DevTypeFT232R  DevType = 5
	DevTypeFT232H  DevType = 8
)

func (d DevType) String() string {
	switch d {
	case DevTypeFT232R:
		return "FT232R"
	case DevTypeFT232H:
		return "FT232H"
	default:
		return "Unknown"
	}
}

// numDevices returns the number of detected devices.
func numDevices() (int, error) {
	num, e := d2xx.CreateDeviceInfoList()
	if e != 0 {
		return 0, toErr("GetNumDevices initialization failed", e)
	}
	return num, nil
}

// handle wraps a D2XX handle with Go errors.
//
// It is immutable after openHandle.
type handle struct {
	h     d2xx.Handle
	t     DevType
	venID uint16
	devID uint16
}

func openHandle(opener func(i int) (d2xx.Handle, d2xx.Err), i int) (*handle, error) {
	h, e := opener(i)
	if e != 0 {
		return nil, toErr("Open", e)
	}
	d := &handle{h: h}
	t, vid, did, e := h.GetDeviceInfo()
	if e != 0 {
		_ = d.Close()
		return nil, toErr("GetDeviceInfo", e)
	}
	d.t = DevType(t)
	d.venID = vid
	d.devID = did
	return d, nil
}

func (h *handle) Close() error {
	return toErr("Close", h.h.Close())
}

// Init sets up the USB transfers for low latency single byte accesses.
//
// It does not reset the device, to limit glitches on the pins.
func (h *handle) Init() error {
	if e := h.h.SetUSBParameters(65536, 0); e != 0 {
		return toErr("SetUSBParameters", e)
	}
	if e := h.h.SetTimeouts(1000, 1000); e != 0 {
		return toErr("SetTimeouts", e)
	}
	if e := h.h.SetChars(0, false, 0, false); e != 0 {
		return toErr("SetChars", e)
	}
	// Every byte is latency sensitive.
	if e := h.h.SetLatencyTimer(1); e != 0 {
		return toErr("SetLatencyTimer", e)
	}
	if e := h.h.SetFlowControl(); e != 0 {
		return toErr("SetFlowControl", e)
	}
	return h.Flush()
}

// Reset resets the device and puts every pin back as input.
func (h *handle) Reset() error {
	if e := h.h.ResetDevice(); e != 0 {
		return toErr("Reset", e)
	}
	if err := h.SetBitMode(0, bitModeReset); err != nil {
		return err
	}
	// The device may report a read error right after a reset.
	_ = h.Flush()
	return nil
}

// GetBitMode returns the instantaneous level of the DBus pins.
func (h *handle) GetBitMode() (byte, error) {
	l, e := h.h.GetBitMode()
	if e != 0 {
		return 0, toErr("GetBitMode", e)
	}
	return l, nil
}

// SetBitMode sets the mode of operation and which pins are outputs.
func (h *handle) SetBitMode(mask byte, mode bitMode) error {
	return toErr("SetBitMode", h.h.SetBitMode(mask, byte(mode)))
}

// SetBaudRate sets the rate at which bit-bang writes are clocked out.
func (h *handle) SetBaudRate(baud uint32) error {
	return toErr("SetBaudRate", h.h.SetBaudRate(baud))
}

// Flush discards the samples accumulated in the read buffer.
func (h *handle) Flush() error {
	var buf [128]byte
	for {
		p, e := h.h.GetQueueStatus()
		if e != 0 {
			return toErr("GetQueueStatus", e)
		}
		if p == 0 {
			return nil
		}
		n := min(int(p), len(buf))
		if _, e := h.h.Read(buf[:n]); e != 0 {
			return toErr("Read", e)
		}
	}
}

// Write blocks until b is written.
func (h *handle) Write(b []byte) error {
	for len(b) != 0 {
		n, e := h.h.Write(b)
		if e != 0 {
			return toErr("Write", e)
		}
		b = b[n:]
	}
	return nil
}

func toErr(s string, e d2xx.Err) error {
	if e == 0 {
		return nil
	}
	return errors.New("ftdi: " + s + ": " + e.String())
}
