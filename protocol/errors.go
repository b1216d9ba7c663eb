// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"strconv"
)

// Code categorizes why a handshake attempt failed.
type Code uint8

// Failure codes.
const (
	OK Code = iota
	// SpingTimeout means the line never went HIGH within the wait window
	// (SPING_ERR_1).
	SpingTimeout
	// SpingTooShort means the SPING was shorter than SpingMinUI (SPING_ERR_2).
	SpingTooShort
	// SpingTooLong means the SPING was longer than SpingMaxUI (SPING_ERR_3).
	SpingTooLong
	// MpingNotObserved means the line could not be driven for a MPING
	// (SPING_ERR_4).
	MpingNotObserved
	// LineIO means a GPIO or pinctrl call failed.
	LineIO
	// NotConfirmed means VBUS never settled in the requested band.
	NotConfirmed
	// CableAbsent means VBUS dropped below CablePresentMin.
	CableAbsent
)

const codeName = "OKSpingTimeoutSpingTooShortSpingTooLongMpingNotObservedLineIONotConfirmedCableAbsent"

var codeIndex = [...]uint8{0, 2, 14, 27, 39, 55, 61, 73, 84}

func (c Code) String() string {
	if c >= Code(len(codeIndex)-1) {
		return "Code(" + strconv.Itoa(int(c)) + ")"
	}
	return codeName[codeIndex[c]:codeIndex[c+1]]
}

// Error is a categorized protocol failure.
type Error struct {
	Code Code
	// UI is the measured width, when relevant.
	UI  int
	Err error
}

func (e *Error) Error() string {
	s := "protocol: " + e.Code.String()
	if e.Code == SpingTooShort || e.Code == SpingTooLong {
		s += " (" + strconv.Itoa(e.UI) + " UI)"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, &Error{Code: c}) match on the code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels usable with errors.Is.
var (
	ErrSpingTimeout     = &Error{Code: SpingTimeout}
	ErrSpingTooShort    = &Error{Code: SpingTooShort}
	ErrSpingTooLong     = &Error{Code: SpingTooLong}
	ErrMpingNotObserved = &Error{Code: MpingNotObserved}
	ErrLineIO           = &Error{Code: LineIO}
	ErrNotConfirmed     = &Error{Code: NotConfirmed}
	ErrCableAbsent      = &Error{Code: CableAbsent}
)

// CodeOf returns the Code carried by err, OK when err is nil and LineIO for
// errors that are not protocol errors.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return LineIO
}
