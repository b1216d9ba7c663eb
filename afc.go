// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package afc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"periph.io/x/afc/clock"
	"periph.io/x/afc/handshake"
	"periph.io/x/afc/line"
	"periph.io/x/afc/protocol"
)

// Voltage is a VBUS level an adapter can be asked for.
type Voltage uint8

// Supported voltages.
const (
	V5 Voltage = 5
	V9 Voltage = 9
)

func (v Voltage) String() string {
	switch v {
	case V5:
		return "5V"
	case V9:
		return "9V"
	default:
		return "Voltage(invalid)"
	}
}

// Control returns the control byte requesting v.
func (v Voltage) Control() (byte, bool) {
	switch v {
	case V5:
		return protocol.Control5V, true
	case V9:
		return protocol.Control9V, true
	default:
		return 0, false
	}
}

// InBand reports whether vbus confirms that v is applied.
func (v Voltage) InBand(vbus physic.ElectricPotential) bool {
	switch v {
	case V5:
		return vbus > protocol.CablePresentMin && vbus < protocol.VBUS5VMax
	case V9:
		return vbus > protocol.VBUS9VMin
	default:
		return false
	}
}

// Result is the outcome of a negotiation.
type Result uint8

// Results.
const (
	ResultFail Result = iota
	Result5V
	Result9V
)

func (r Result) String() string {
	switch r {
	case Result5V:
		return "AFC_5V"
	case Result9V:
		return "AFC_9V"
	default:
		return "AFC_FAIL"
	}
}

func (v Voltage) result() Result {
	if v == V9 {
		return Result9V
	}
	return Result5V
}

// Reporter is notified once of the outcome of each negotiation.
type Reporter interface {
	Report(r Result)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(r Result)

// Report implements Reporter.
func (f ReporterFunc) Report(r Result) {
	f(r)
}

// VBUSSensor reads the bus voltage.
type VBUSSensor interface {
	VBUS() (physic.ElectricPotential, error)
}

// Mode selects how the handshake is executed.
type Mode uint8

const (
	// Blocking runs the handshake on the session goroutine, busy-waiting
	// between edges.
	Blocking Mode = iota
	// TimerDriven runs each handshake step from a one-shot timer.
	TimerDriven
)

func (m Mode) String() string {
	if m == TimerDriven {
		return "TimerDriven"
	}
	return "Blocking"
}

// Opts configures an engine.
//
// Zero fields take their value from DefaultOpts.
type Opts struct {
	Mode Mode
	// UI is the Unit Interval.
	UI time.Duration
	// Rounds is the number of handshake rounds per attempt.
	Rounds int
	// RoundDelay is the pause between rounds.
	RoundDelay time.Duration
	// RetryMax is the number of attempts before reporting a failure.
	RetryMax int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// VBUSRetryMax is the number of VBUS samples taken to confirm a voltage.
	VBUSRetryMax int
	// VBUSPollInterval is the pause before each VBUS sample.
	VBUSPollInterval time.Duration
	// SwitchSettle is the pause after routing the cable to the data line.
	SwitchSettle time.Duration
	// IgnoreLineErrors logs GPIO and pin control failures and carries on
	// instead of failing the attempt.
	IgnoreLineErrors bool
	// Clock is the time base. Defaults to clock.Host.
	Clock  clock.Clock
	Logger *slog.Logger
}

// DefaultOpts is the recommended configuration.
var DefaultOpts = Opts{
	Mode:             Blocking,
	UI:               protocol.UI,
	Rounds:           protocol.CommCount,
	RoundDelay:       protocol.RoundDelay,
	RetryMax:         protocol.RetryMax,
	RetryDelay:       protocol.RetryDelay,
	VBUSRetryMax:     protocol.VBUSRetryMax,
	VBUSPollInterval: protocol.VBUSPollInterval,
	SwitchSettle:     time.Millisecond,
	Clock:            clock.Host,
}

// Pins are the GPIO collaborators of an engine.
type Pins struct {
	// Data is the bidirectional AFC data line.
	Data gpio.PinIO
	// Switch routes the cable to Data while high. Optional.
	Switch gpio.PinOut
	// Ctrl selects the electrical configuration of Data. Optional.
	Ctrl line.PinCtrl
}

// Session is a snapshot of the negotiation in progress, or of the last one.
type Session struct {
	// Active is true while a negotiation runs.
	Active  bool
	Voltage Voltage
	State   handshake.State
	// Phase is the sub-step within State.
	Phase  int
	Byte   byte
	Parity bool
	// Rounds is the number of rounds completed in the current attempt.
	Rounds int
	// Retries is the number of failed attempts.
	Retries int
	Err     error
}

// Engine negotiates VBUS with an AFC adapter.
type Engine interface {
	conn.Resource
	// RequestVoltage starts a negotiation for v in the background. The
	// outcome is sent to the Reporter.
	RequestVoltage(v Voltage) error
	// Negotiate runs a negotiation for v on the calling goroutine and
	// returns its outcome.
	Negotiate(ctx context.Context, v Voltage) (Result, error)
	// Detach cancels any negotiation and returns the line to rest. Once it
	// returns nothing touches the line until the next request.
	Detach()
	// Session returns the state of the current or last negotiation.
	Session() Session
}

// Errors.
var (
	ErrVoltage  = errors.New("afc: unsupported voltage")
	ErrDetached = errors.New("afc: detached")
	ErrNoPin    = errors.New("afc: data pin is required")
	ErrNoVBUS   = errors.New("afc: VBUS sensor is required")
)

// New returns the engine selected by opts.Mode.
//
// r may be nil, in which case outcomes are only logged.
func New(p Pins, vbus VBUSSensor, r Reporter, opts *Opts) (Engine, error) {
	o := normalize(opts)
	if o.Mode == TimerDriven {
		return NewTimer(p, vbus, r, &o)
	}
	return NewBlocking(p, vbus, r, &o)
}

func normalize(opts *Opts) Opts {
	o := DefaultOpts
	if opts == nil {
		return o
	}
	d := *opts
	o.Mode = d.Mode
	o.IgnoreLineErrors = d.IgnoreLineErrors
	o.Logger = d.Logger
	if d.UI > 0 {
		o.UI = d.UI
	}
	if d.Rounds > 0 {
		o.Rounds = d.Rounds
	}
	if d.RoundDelay > 0 {
		o.RoundDelay = d.RoundDelay
	}
	if d.RetryMax > 0 {
		o.RetryMax = d.RetryMax
	}
	if d.RetryDelay > 0 {
		o.RetryDelay = d.RetryDelay
	}
	if d.VBUSRetryMax > 0 {
		o.VBUSRetryMax = d.VBUSRetryMax
	}
	if d.VBUSPollInterval > 0 {
		o.VBUSPollInterval = d.VBUSPollInterval
	}
	if d.SwitchSettle > 0 {
		o.SwitchSettle = d.SwitchSettle
	}
	if d.Clock != nil {
		o.Clock = d.Clock
	}
	return o
}
