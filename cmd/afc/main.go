// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command afc negotiates a charging voltage with an AFC adapter.
//
// The data and switch lines are named as gpioreg knows them, e.g. "GPIO17"
// on a Raspberry Pi or "FT232R.TX" on a FTDI cable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"periph.io/x/afc"
	"periph.io/x/afc/clock"
	_ "periph.io/x/afc/ftdi"
	"periph.io/x/afc/line"
	"periph.io/x/afc/vbus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/pin"
)

func main() {
	if err := mainImpl(); err != nil {
		log.Fatal(err)
	}
}

func mainImpl() error {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "afc - Negotiate VBUS with an Adaptive Fast Charging adapter.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	data := flag.String("data", "", "Data line pin name.")
	sw := flag.String("switch", "", "Cable switch pin name. Optional.")
	sensor := flag.String("vbus", "sysfs:usb", "VBUS sensor: sysfs:<power supply> or serial:<device>.")
	baud := flag.Int("baud", 9600, "Baud rate of a serial VBUS meter.")
	volts := flag.Int("v", 9, "Requested voltage, 5 or 9.")
	mode := flag.String("mode", "blocking", "Engine: blocking or timer.")
	ui := flag.Duration("ui", 0, "Unit Interval override.")
	cpu := flag.Int("cpu", -1, "Pin the handshake to this CPU and lock memory. -1 only locks the thread.")
	pinctrl := flag.Bool("pinctrl", true, "Switch the data pin function between rounds when supported.")
	timeout := flag.Duration("t", 10*time.Second, "Overall timeout.")
	list := flag.Bool("l", false, "List power supplies and exit.")
	verbose := flag.Bool("verbose", false, "Log handshake steps.")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}
	if *list {
		names, err := vbus.Supplies()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug - 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	v, err := parseVoltage(*volts)
	if err != nil {
		return err
	}
	opts := afc.DefaultOpts
	opts.UI = *ui
	opts.Logger = logger
	switch *mode {
	case "blocking":
		opts.Mode = afc.Blocking
	case "timer":
		opts.Mode = afc.TimerDriven
	default:
		return fmt.Errorf("unknown mode %q", *mode)
	}

	if _, err := afc.Init(); err != nil {
		return err
	}
	p, err := pins(*data, *sw, *pinctrl)
	if err != nil {
		return err
	}
	s, err := openSensor(*sensor, *baud)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := afc.New(p, s, nil, &opts)
	if err != nil {
		return err
	}
	defer e.Halt()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, *timeout)
	defer cancel()

	if opts.Mode == afc.Blocking {
		unlock, err := clock.Realtime(*cpu)
		if err != nil {
			logger.Warn("realtime scheduling unavailable", slog.Any("err", err))
		} else {
			defer unlock()
		}
	}
	start := time.Now()
	r, err := e.Negotiate(ctx, v)
	fmt.Printf("%s after %s (%d retries)\n", r, time.Since(start).Round(time.Millisecond), e.Session().Retries)
	return err
}

func parseVoltage(v int) (afc.Voltage, error) {
	switch v {
	case 5:
		return afc.V5, nil
	case 9:
		return afc.V9, nil
	default:
		return 0, fmt.Errorf("%w: %dV", afc.ErrVoltage, v)
	}
}

func pins(data, sw string, pinctrl bool) (afc.Pins, error) {
	var p afc.Pins
	if data == "" {
		return p, errors.New("-data is required")
	}
	if p.Data = gpioreg.ByName(data); p.Data == nil {
		return p, fmt.Errorf("invalid pin %q", data)
	}
	if sw != "" {
		s := gpioreg.ByName(sw)
		if s == nil {
			return p, fmt.Errorf("invalid pin %q", sw)
		}
		p.Switch = s
	}
	if pinctrl {
		if f, ok := realPin(p.Data).(pin.PinFunc); ok {
			p.Ctrl = &line.FuncCtrl{Pin: f}
		}
	}
	return p, nil
}

// realPin unwraps aliases registered in gpioreg.
func realPin(p gpio.PinIO) gpio.PinIO {
	if r, ok := p.(gpio.RealPin); ok {
		return r.Real()
	}
	return p
}

type sensor interface {
	afc.VBUSSensor
	io.Closer
}

func openSensor(spec string, baud int) (sensor, error) {
	kind, arg, ok := strings.Cut(spec, ":")
	if !ok || arg == "" {
		return nil, fmt.Errorf("invalid VBUS sensor %q", spec)
	}
	switch kind {
	case "sysfs":
		return vbus.NewSysfs(arg), nil
	case "serial":
		s, err := vbus.OpenSerial(arg, baud)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown VBUS sensor %q", kind)
	}
}
