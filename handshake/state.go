// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package handshake

import (
	"strconv"

	"periph.io/x/afc/protocol"
)

// State is a phase of the AFC handshake.
type State uint8

// States, in the order a round goes through them.
//
// A Machine is Idle until its first Step. Rounds loop from Finish back to
// MpingStart.
const (
	Idle State = iota
	MpingStart
	MpingEnd
	WaitSping
	SpingStart
	SpingEnd
	RequestCtrl
	StartTransfer
	SendData
	EndTransfer
	SendEndMping
	WaitData
	RecvDataStart
	RecvDataEnd
	SendCfmMpingStart
	SendCfmMpingEnd
	WaitCfmSping
	RecvCfmSpingStart
	RecvCfmSpingEnd
	Finish
	// OK is reached once every round completed.
	OK
	// Error is reached when a round failed.
	Error
	numStates
)

var stateNames = [numStates]string{
	"Idle",
	"MpingStart",
	"MpingEnd",
	"WaitSping",
	"SpingStart",
	"SpingEnd",
	"RequestCtrl",
	"StartTransfer",
	"SendData",
	"EndTransfer",
	"SendEndMping",
	"WaitData",
	"RecvDataStart",
	"RecvDataEnd",
	"SendCfmMpingStart",
	"SendCfmMpingEnd",
	"WaitCfmSping",
	"RecvCfmSpingStart",
	"RecvCfmSpingEnd",
	"Finish",
	"OK",
	"Error",
}

func (s State) String() string {
	if s >= numStates {
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

// Terminal reports whether no further step follows s.
func (s State) Terminal() bool {
	return s == OK || s == Error
}

// Transition describes what happens in a state.
//
// Action runs the single line operation of the state. When the action
// completes the state, the machine moves to Next after Delay, plus any time
// the action itself asked for (the width of the pulse it just drove). Polling
// states repeat their action until it completes.
type Transition struct {
	From   State
	Action string
	Next   State
	Delay  protocol.Ticks
}

type actionFunc func(m *Machine) result

type entry struct {
	action string
	fn     actionFunc
	next   State
	delay  protocol.Ticks
}

// table is the AFC round. Finish overrides Next to loop or terminate.
var table = [numStates]entry{
	Idle:              {"start", (*Machine).start, MpingStart, 0},
	MpingStart:        {"mping-high", (*Machine).mpingHigh, MpingEnd, protocol.UIs(protocol.MpingUI)},
	MpingEnd:          {"mping-release", (*Machine).release, WaitSping, 1},
	WaitSping:         {"wait-sping", (*Machine).waitSping, SpingStart, 1},
	SpingStart:        {"measure-sping", (*Machine).measureSping, SpingEnd, 0},
	SpingEnd:          {"check-sping", (*Machine).checkSping, RequestCtrl, 0},
	RequestCtrl:       {"request", (*Machine).request, StartTransfer, protocol.UIs(protocol.RequestLeadUI)},
	StartTransfer:     {"start-cycle", (*Machine).drivePulses, SendData, 0},
	SendData:          {"data-bits", (*Machine).drivePulses, EndTransfer, 0},
	EndTransfer:       {"trailer", (*Machine).drivePulses, SendEndMping, protocol.UIs(1)},
	SendEndMping:      {"mping-high", (*Machine).mpingHigh, WaitData, protocol.UIs(protocol.MpingUI)},
	WaitData:          {"mping-release", (*Machine).release, RecvDataStart, 1},
	RecvDataStart:     {"sample-reply", (*Machine).sampleReply, RecvDataEnd, 0},
	RecvDataEnd:       {"decode-reply", (*Machine).decodeReply, SendCfmMpingStart, protocol.UIs(1)},
	SendCfmMpingStart: {"mping-high", (*Machine).mpingHigh, SendCfmMpingEnd, protocol.UIs(protocol.MpingUI)},
	SendCfmMpingEnd:   {"mping-release", (*Machine).release, WaitCfmSping, 1},
	WaitCfmSping:      {"wait-sping", (*Machine).waitSping, RecvCfmSpingStart, 1},
	RecvCfmSpingStart: {"measure-sping", (*Machine).measureSping, RecvCfmSpingEnd, 0},
	RecvCfmSpingEnd:   {"check-sping", (*Machine).checkSping, Finish, 0},
	Finish:            {"finish", (*Machine).finish, MpingStart, 0},
}

// Transitions returns the transition table, from Idle to Finish.
func Transitions() []Transition {
	var out []Transition
	for s := Idle; s <= Finish; s++ {
		e := table[s]
		out = append(out, Transition{From: s, Action: e.action, Next: e.next, Delay: e.delay})
	}
	return out
}
