package main

import "time"

// This file implements the reducer:
//
//   - Events: inputs (panel presses, IPC requests, ticks, effect observations)
//   - Commands: side effects requested by the reducer (LED duty, printer G-code)
//   - Reduce(): computes next state + commands, without performing I/O
//
// The daemon loop is responsible for executing Commands and feeding
// observations back as Events.

// ReducerConfig holds the policy knobs the reducer needs.
type ReducerConfig struct {
	StepPercent int     // brightness change per detent
	MoveXY      float64 // jog distance for X/Y in mm
	MoveZ       float64 // jog distance for Z in mm
	Rotary      RotaryPolicy
}

// ReduceResult is the output of Reduce(): next state plus a set of Commands to execute.
type ReduceResult struct {
	State    *DaemonState
	Commands []Command
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = &DaemonState{}
	}

	var cmds []Command

	at := time.Time{}
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		at = te.At
	}

	switch ev := e.(type) {
	case Tick:
		// Flush intents into commands (coalesced latest-wins).
		if d, ok := s.ConsumeDesiredDuty(); ok {
			cmds = append(cmds, CmdSetDuty{Percent: d})
		}

	case EncoderTurned:
		dir := 1
		if ev.Direction < 0 {
			dir = -1
		}
		if at.IsZero() {
			at = time.Now()
		}

		var sameDir int
		s.Rotary, sameDir = addStep(s.Rotary, dir, at, cfg.Rotary.Window)
		mult := cfg.Rotary.stepMultiplier(sameDir)

		step := cfg.StepPercent
		if step <= 0 {
			step = defaultBrightnessStepPct
		}
		s.LED.Brightness = clampPercent(s.LED.Brightness + dir*step*mult)
		// Turning the knob always shows the new level, even if the strip was off.
		s.SetDesiredDuty(s.LED.Brightness)

	case EncoderPressed:
		if s.effectiveDuty() > 0 {
			s.SetDesiredDuty(0)
		} else {
			s.SetDesiredDuty(s.LED.Brightness)
		}

	case ButtonPressed:
		if cmd, ok := buttonCommand(ev.Action, cfg); ok {
			cmds = append(cmds, cmd)
		}

	case RequestState:
		cmds = append(cmds, CmdPublishState{Snapshot: s.Snapshot(), Reply: ev.Reply})

	case LEDDutyObserved:
		s.SetObservedDuty(ev.Duty, ev.At)

	case PrinterCommandDone:
		s.SetPrinterResult(ev.Command, nil, ev.At)

	case CommandFailed:
		// Keep LED state as-is; the next intent retries naturally.
		if isPrinterCommand(ev.Command) {
			s.SetPrinterResult(ev.Command, ev.Err, ev.At)
		}

	case SensorObserved:
		s.SetSensorReading(ev)

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:    s,
		Commands: cmds,
	}
}

// buttonCommand maps a panel action to its printer command.
func buttonCommand(a PanelAction, cfg ReducerConfig) (Command, bool) {
	if j, ok := jogActions[a]; ok {
		dist := cfg.MoveXY
		if j.axis == "Z" {
			dist = cfg.MoveZ
		}
		return CmdJog{Axis: j.axis, Distance: j.sign * dist}, true
	}
	if axis, ok := homeActions[a]; ok {
		return CmdHome{Axes: []string{axis}}, true
	}
	if a == ActionStop {
		return CmdCancelPrint{}, true
	}
	return nil, false
}

func isPrinterCommand(c Command) bool {
	switch c.(type) {
	case CmdJog, CmdHome, CmdCancelPrint:
		return true
	}
	return false
}
