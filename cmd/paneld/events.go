package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events - inputs to the reducer
// ============================================================================
// Input events come from the control panel (GPIO callbacks) and from IPC.
// Observation events come back from the effects layer after a Command ran.
// The central daemon loop consumes both and applies policy in Reduce().
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// TimedEvent stamps an input event with its arrival time.
// The daemon assigns timestamps so payload types stay clean.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// EncoderTurned is one decoded detent of the rotary encoder.
type EncoderTurned struct {
	Direction int `json:"direction"` // +1 clockwise, -1 counter-clockwise
}

func (EncoderTurned) eventMarker() {}

// EncoderPressed is a debounced press of the encoder's push switch.
type EncoderPressed struct{}

func (EncoderPressed) eventMarker() {}

// ButtonPressed is a debounced press of a panel button.
type ButtonPressed struct {
	Action PanelAction `json:"action"`
}

func (ButtonPressed) eventMarker() {}

// RequestState asks the daemon for a snapshot of its state.
// Reply must be buffered; the effects layer never blocks on it.
type RequestState struct {
	Reply chan<- StateSnapshot `json:"-"`
}

func (RequestState) eventMarker() {}

// ConfigReloaded carries new reducer policy after a config reload, and the
// default brightness the strip restarts at.
// It is handled by the daemon loop itself and never reaches Reduce().
type ConfigReloaded struct {
	Reducer    ReducerConfig
	Brightness int
}

func (ConfigReloaded) eventMarker() {}

// ==============================
// Observations
// ==============================

// LEDDutyObserved is emitted after the LED driver accepted a duty cycle.
type LEDDutyObserved struct {
	Duty int
	At   time.Time
}

func (LEDDutyObserved) eventMarker() {}

// PrinterCommandDone is emitted after the printer accepted a command.
type PrinterCommandDone struct {
	Command Command
	At      time.Time
}

func (PrinterCommandDone) eventMarker() {}

// CommandFailed is emitted when executing a Command fails.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// SensorObserved carries one poll of a humidity/temperature sensor.
type SensorObserved struct {
	Name     string
	TempC    float64
	Humidity float64
	Err      error
	At       time.Time
}

func (SensorObserved) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps events for JSON serialization/deserialization.
// Only the input events that make sense over IPC are supported.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	eventTypeEncoderTurn  = "encoder_turn"
	eventTypeEncoderPress = "encoder_press"
	eventTypeButton       = "button"
	eventTypeGetState     = "get_state"
)

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
//
// get_state decodes to a RequestState with a nil Reply; the IPC layer
// attaches the reply channel.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case eventTypeEncoderTurn:
		var e EncoderTurned
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal EncoderTurned: %w", err)
		}
		if e.Direction != 1 && e.Direction != -1 {
			return nil, fmt.Errorf("encoder_turn direction must be 1 or -1, got %d", e.Direction)
		}
		return e, nil

	case eventTypeEncoderPress:
		return EncoderPressed{}, nil

	case eventTypeButton:
		var e ButtonPressed
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal ButtonPressed: %w", err)
		}
		if _, err := ParsePanelAction(string(e.Action)); err != nil {
			return nil, err
		}
		return e, nil

	case eventTypeGetState:
		return RequestState{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case EncoderTurned:
		env.Type = eventTypeEncoderTurn
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal EncoderTurned: %w", err)
		}
		env.Data = data

	case EncoderPressed:
		env.Type = eventTypeEncoderPress

	case ButtonPressed:
		env.Type = eventTypeButton
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ButtonPressed: %w", err)
		}
		env.Data = data

	case RequestState:
		env.Type = eventTypeGetState

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
