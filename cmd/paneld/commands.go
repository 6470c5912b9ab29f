package main

import (
	"fmt"
	"strings"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// In this codebase, those are LED duty changes and printer G-code.
type Command interface {
	commandMarker()
	String() string
}

// CmdSetDuty sets the LED strip PWM duty cycle (0..100).
type CmdSetDuty struct {
	Percent int
}

func (CmdSetDuty) commandMarker() {}
func (c CmdSetDuty) String() string {
	return fmt.Sprintf("CmdSetDuty(percent=%d)", c.Percent)
}

// CmdJog moves one axis relative to the current position.
type CmdJog struct {
	Axis     string
	Distance float64
}

func (CmdJog) commandMarker() {}
func (c CmdJog) String() string {
	return fmt.Sprintf("CmdJog(axis=%s, distance=%g)", c.Axis, c.Distance)
}

// CmdHome homes the given axes.
type CmdHome struct {
	Axes []string
}

func (CmdHome) commandMarker() {}
func (c CmdHome) String() string {
	return fmt.Sprintf("CmdHome(axes=%s)", strings.Join(c.Axes, ","))
}

// CmdCancelPrint aborts the active print job.
type CmdCancelPrint struct{}

func (CmdCancelPrint) commandMarker() {}
func (CmdCancelPrint) String() string { return "CmdCancelPrint()" }

// CmdPublishState delivers a reducer-produced snapshot to an IPC requester.
type CmdPublishState struct {
	Snapshot StateSnapshot
	Reply    chan<- StateSnapshot
}

func (CmdPublishState) commandMarker() {}
func (CmdPublishState) String() string { return "CmdPublishState()" }
