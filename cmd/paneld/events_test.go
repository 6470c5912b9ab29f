package main

import (
	"strings"
	"testing"
)

func TestUnmarshalEvent_InputEvents(t *testing.T) {
	tests := []struct {
		in   string
		want Event
	}{
		{`{"type":"encoder_turn","data":{"direction":1}}`, EncoderTurned{Direction: 1}},
		{`{"type":"encoder_turn","data":{"direction":-1}}`, EncoderTurned{Direction: -1}},
		{`{"type":"encoder_press"}`, EncoderPressed{}},
		{`{"type":"button","data":{"action":"jog_z_minus"}}`, ButtonPressed{Action: ActionJogZMinus}},
	}

	for _, tt := range tests {
		got, err := UnmarshalEvent([]byte(tt.in))
		if err != nil {
			t.Fatalf("UnmarshalEvent(%s): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("UnmarshalEvent(%s) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestUnmarshalEvent_GetState(t *testing.T) {
	ev, err := UnmarshalEvent([]byte(`{"type":"get_state"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rs, ok := ev.(RequestState)
	if !ok {
		t.Fatalf("expected RequestState, got %T", ev)
	}
	if rs.Reply != nil {
		t.Fatalf("expected nil reply channel from the wire")
	}
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bad json", `{"type":`, "unmarshal envelope"},
		{"unknown type", `{"type":"reboot"}`, "unknown event type"},
		{"zero direction", `{"type":"encoder_turn","data":{"direction":0}}`, "direction must be"},
		{"big direction", `{"type":"encoder_turn","data":{"direction":3}}`, "direction must be"},
		{"missing turn data", `{"type":"encoder_turn"}`, "unmarshal EncoderTurned"},
		{"unknown action", `{"type":"button","data":{"action":"launch"}}`, "unknown panel action"},
	}

	for _, tt := range tests {
		_, err := UnmarshalEvent([]byte(tt.in))
		if err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: expected error containing %q, got %v", tt.name, tt.want, err)
		}
	}
}

func TestMarshalEvent_Envelope(t *testing.T) {
	data, err := MarshalEvent(ButtonPressed{Action: ActionHomeX})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `{"type":"button","data":{"action":"home_x"}}`; string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}

	data, err = MarshalEvent(EncoderPressed{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `{"type":"encoder_press"}`; string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestMarshalEvent_UnsupportedType(t *testing.T) {
	if _, err := MarshalEvent(Tick{}); err == nil {
		t.Fatalf("expected error for Tick")
	}
}
