package main

import (
	"sort"
	"time"
)

// DaemonState is the top-level, daemon-owned state container.
//
// All reducer-owned state lives here. It holds what the outputs last
// reported (observed) next to what we want to apply (intent), so a coherent
// snapshot can be published to IPC clients.
type DaemonState struct {
	LED     LEDState
	Rotary  RotaryReducerState
	Printer PrinterState
	Sensors map[string]SensorReading

	Intent DaemonIntent
}

// LEDState tracks the strip brightness setting and the duty the driver last accepted.
//
// Brightness is the level the knob controls. Duty is what the strip is
// actually doing: 0 when switched off by the encoder button.
type LEDState struct {
	Brightness int

	Duty      int
	DutyKnown bool
	DutyAt    time.Time
}

// RotaryReducerState tracks recent rotary turns for reducer-side velocity detection.
type RotaryReducerState struct {
	RecentSteps []RotaryReducerStep
}

// RotaryReducerStep is one observed rotary detent at a given time.
// Direction is -1 or +1.
type RotaryReducerStep struct {
	At        time.Time
	Direction int
}

// PrinterState records the outcome of the last printer command.
type PrinterState struct {
	LastCommand string
	LastError   string
	At          time.Time
}

// SensorReading is the last poll of one humidity/temperature sensor.
type SensorReading struct {
	TempC    float64
	Humidity float64
	Error    string
	At       time.Time
}

// DaemonIntent captures pending intents that the Tick flushes into Commands.
type DaemonIntent struct {
	// DesiredDuty, if non-nil, is the LED duty to apply on the next Tick.
	// Repeated turns within one tick collapse into the latest value.
	DesiredDuty *int
}

// NewDaemonState returns the startup state. The default brightness is
// desired immediately so the strip lights up on the first Tick.
func NewDaemonState(brightness int) *DaemonState {
	s := &DaemonState{
		LED:     LEDState{Brightness: clampPercent(brightness)},
		Sensors: make(map[string]SensorReading),
	}
	s.SetDesiredDuty(s.LED.Brightness)
	return s
}

// SetDesiredDuty records an LED duty intent.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetDesiredDuty(percent int) {
	s.Intent.DesiredDuty = &percent
}

// ConsumeDesiredDuty consumes the duty intent, if present.
func (s *DaemonState) ConsumeDesiredDuty() (int, bool) {
	if s.Intent.DesiredDuty == nil {
		return 0, false
	}
	v := *s.Intent.DesiredDuty
	s.Intent.DesiredDuty = nil
	return v, true
}

// effectiveDuty is the duty the strip will have once pending intents are
// applied: the intent if present, else the observed duty.
func (s *DaemonState) effectiveDuty() int {
	if s.Intent.DesiredDuty != nil {
		return *s.Intent.DesiredDuty
	}
	if s.LED.DutyKnown {
		return s.LED.Duty
	}
	return 0
}

// SetObservedDuty updates the cached duty from the LED driver.
func (s *DaemonState) SetObservedDuty(percent int, now time.Time) {
	s.LED.Duty = percent
	s.LED.DutyKnown = true
	s.LED.DutyAt = now
}

// SetPrinterResult records the outcome of a printer command.
func (s *DaemonState) SetPrinterResult(cmd Command, err error, now time.Time) {
	s.Printer.LastCommand = cmd.String()
	s.Printer.LastError = ""
	if err != nil {
		s.Printer.LastError = err.Error()
	}
	s.Printer.At = now
}

// SetSensorReading stores a sensor poll result. A failed poll keeps the
// previous values and records the error.
func (s *DaemonState) SetSensorReading(ev SensorObserved) {
	if s.Sensors == nil {
		s.Sensors = make(map[string]SensorReading)
	}
	r := s.Sensors[ev.Name]
	if ev.Err != nil {
		r.Error = ev.Err.Error()
	} else {
		r.TempC = ev.TempC
		r.Humidity = ev.Humidity
		r.Error = ""
	}
	r.At = ev.At
	s.Sensors[ev.Name] = r
}

// ============================================================================
// Snapshot
// ============================================================================

// StateSnapshot is the JSON view of DaemonState sent to IPC clients.
type StateSnapshot struct {
	LED     LEDSnapshot      `json:"led"`
	Printer PrinterSnapshot  `json:"printer"`
	Sensors []SensorSnapshot `json:"sensors,omitempty"`
}

type LEDSnapshot struct {
	Brightness int  `json:"brightness"`
	Duty       int  `json:"duty"`
	DutyKnown  bool `json:"duty_known"`
	On         bool `json:"on"`
}

type PrinterSnapshot struct {
	LastCommand string    `json:"last_command,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	At          time.Time `json:"at,omitzero"`
}

type SensorSnapshot struct {
	Name     string    `json:"name"`
	TempC    float64   `json:"temp_c"`
	Humidity float64   `json:"humidity"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Snapshot copies the state into its wire form. Sensors are sorted by name.
func (s *DaemonState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		LED: LEDSnapshot{
			Brightness: s.LED.Brightness,
			Duty:       s.LED.Duty,
			DutyKnown:  s.LED.DutyKnown,
			On:         s.LED.DutyKnown && s.LED.Duty > 0,
		},
		Printer: PrinterSnapshot{
			LastCommand: s.Printer.LastCommand,
			LastError:   s.Printer.LastError,
			At:          s.Printer.At,
		},
	}
	for name, r := range s.Sensors {
		snap.Sensors = append(snap.Sensors, SensorSnapshot{
			Name:     name,
			TempC:    r.TempC,
			Humidity: r.Humidity,
			Error:    r.Error,
			At:       r.At,
		})
	}
	sort.Slice(snap.Sensors, func(i, j int) bool { return snap.Sensors[i].Name < snap.Sensors[j].Name })
	return snap
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
