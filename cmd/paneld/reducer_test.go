package main

import (
	"errors"
	"testing"
	"time"
)

func testReducerConfig() ReducerConfig {
	return ReducerConfig{
		StepPercent: 5,
		MoveXY:      10,
		MoveZ:       1,
		Rotary: RotaryPolicy{
			Window:     200 * time.Millisecond,
			Threshold:  3,
			Multiplier: 2,
		},
	}
}

// tickDuty reduces a Tick and returns the flushed duty, if any.
func tickDuty(t *testing.T, s *DaemonState, cfg ReducerConfig) (int, bool) {
	t.Helper()
	rr := Reduce(s, Tick{Now: time.Now()}, cfg)
	if len(rr.Commands) == 0 {
		return 0, false
	}
	if len(rr.Commands) != 1 {
		t.Fatalf("expected at most 1 command on tick, got %d: %v", len(rr.Commands), rr.Commands)
	}
	c, ok := rr.Commands[0].(CmdSetDuty)
	if !ok {
		t.Fatalf("expected CmdSetDuty, got %T", rr.Commands[0])
	}
	return c.Percent, true
}

// observe simulates the LED driver accepting the duty.
func observe(s *DaemonState, duty int, cfg ReducerConfig) {
	Reduce(s, LEDDutyObserved{Duty: duty, At: time.Now()}, cfg)
}

func TestReducer_Startup_AppliesDefaultBrightness(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(50)

	d, ok := tickDuty(t, s, cfg)
	if !ok || d != 50 {
		t.Fatalf("expected startup duty 50, got %d (ok=%v)", d, ok)
	}

	// Intent is consumed; the next tick emits nothing.
	if _, ok := tickDuty(t, s, cfg); ok {
		t.Fatalf("expected no command on second tick")
	}
}

func TestReducer_EncoderTurned_StepsBrightness(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(50)
	base := time.Now()

	rr := Reduce(s, TimedEvent{Event: EncoderTurned{Direction: 1}, At: base}, cfg)
	if len(rr.Commands) != 0 {
		t.Fatalf("turn should not emit commands directly, got %v", rr.Commands)
	}
	if rr.State.LED.Brightness != 55 {
		t.Fatalf("expected brightness 55, got %d", rr.State.LED.Brightness)
	}

	Reduce(s, TimedEvent{Event: EncoderTurned{Direction: -1}, At: base.Add(time.Second)}, cfg)
	if s.LED.Brightness != 50 {
		t.Fatalf("expected brightness 50, got %d", s.LED.Brightness)
	}
}

func TestReducer_EncoderTurned_Clamps(t *testing.T) {
	cfg := testReducerConfig()
	cfg.Rotary.Threshold = 0

	s := NewDaemonState(98)
	Reduce(s, TimedEvent{Event: EncoderTurned{Direction: 1}, At: time.Now()}, cfg)
	if s.LED.Brightness != 100 {
		t.Fatalf("expected clamp at 100, got %d", s.LED.Brightness)
	}

	s = NewDaemonState(3)
	Reduce(s, TimedEvent{Event: EncoderTurned{Direction: -1}, At: time.Now()}, cfg)
	if s.LED.Brightness != 0 {
		t.Fatalf("expected clamp at 0, got %d", s.LED.Brightness)
	}
}

func TestReducer_EncoderTurned_DefaultStep(t *testing.T) {
	cfg := testReducerConfig()
	cfg.StepPercent = 0

	s := NewDaemonState(50)
	Reduce(s, TimedEvent{Event: EncoderTurned{Direction: 1}, At: time.Now()}, cfg)
	if s.LED.Brightness != 50+defaultBrightnessStepPct {
		t.Fatalf("expected default step, got brightness %d", s.LED.Brightness)
	}
}

func TestReducer_EncoderTurned_VelocityMultiplier(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(20)
	base := time.Now()

	// Three detents within the window: the third one counts double.
	for i := 0; i < 3; i++ {
		Reduce(s, TimedEvent{Event: EncoderTurned{Direction: 1}, At: base.Add(time.Duration(i*20) * time.Millisecond)}, cfg)
	}
	if want := 20 + 5 + 5 + 10; s.LED.Brightness != want {
		t.Fatalf("expected brightness %d, got %d", want, s.LED.Brightness)
	}

	// A slow detent after the window has elapsed is back to 1x.
	Reduce(s, TimedEvent{Event: EncoderTurned{Direction: 1}, At: base.Add(time.Second)}, cfg)
	if want := 45; s.LED.Brightness != want {
		t.Fatalf("expected brightness %d, got %d", want, s.LED.Brightness)
	}
}

func TestReducer_TurnWhileOff_TurnsOn(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(50)
	tickDuty(t, s, cfg)
	observe(s, 50, cfg)

	// Switch off.
	Reduce(s, EncoderPressed{}, cfg)
	d, ok := tickDuty(t, s, cfg)
	if !ok || d != 0 {
		t.Fatalf("expected duty 0 after press, got %d (ok=%v)", d, ok)
	}
	observe(s, 0, cfg)

	// Turning while off shows the new brightness.
	Reduce(s, TimedEvent{Event: EncoderTurned{Direction: 1}, At: time.Now()}, cfg)
	d, ok = tickDuty(t, s, cfg)
	if !ok || d != 55 {
		t.Fatalf("expected duty 55 after turn, got %d (ok=%v)", d, ok)
	}
}

func TestReducer_EncoderPressed_Toggles(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(40)
	tickDuty(t, s, cfg)
	observe(s, 40, cfg)

	Reduce(s, EncoderPressed{}, cfg)
	if d, _ := tickDuty(t, s, cfg); d != 0 {
		t.Fatalf("expected off, got duty %d", d)
	}
	observe(s, 0, cfg)

	Reduce(s, EncoderPressed{}, cfg)
	if d, _ := tickDuty(t, s, cfg); d != 40 {
		t.Fatalf("expected duty 40 after second press, got %d", d)
	}
}

func TestReducer_EncoderPressed_UsesPendingIntent(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(40)

	// Startup intent (40) is still pending: a press before the first tick
	// turns the strip off rather than re-applying 40.
	Reduce(s, EncoderPressed{}, cfg)
	if d, _ := tickDuty(t, s, cfg); d != 0 {
		t.Fatalf("expected duty 0, got %d", d)
	}
}

func TestReducer_DutyIntent_Coalesced(t *testing.T) {
	cfg := testReducerConfig()
	cfg.Rotary.Threshold = 0
	s := NewDaemonState(50)
	base := time.Now()

	for i := 0; i < 4; i++ {
		Reduce(s, TimedEvent{Event: EncoderTurned{Direction: 1}, At: base.Add(time.Duration(i) * time.Millisecond)}, cfg)
	}

	d, ok := tickDuty(t, s, cfg)
	if !ok || d != 70 {
		t.Fatalf("expected single coalesced duty 70, got %d (ok=%v)", d, ok)
	}
}

func TestReducer_ButtonPressed_Commands(t *testing.T) {
	cfg := testReducerConfig()

	tests := []struct {
		action PanelAction
		want   Command
	}{
		{ActionJogXPlus, CmdJog{Axis: "X", Distance: 10}},
		{ActionJogXMinus, CmdJog{Axis: "X", Distance: -10}},
		{ActionJogYPlus, CmdJog{Axis: "Y", Distance: 10}},
		{ActionJogYMinus, CmdJog{Axis: "Y", Distance: -10}},
		{ActionJogZPlus, CmdJog{Axis: "Z", Distance: 1}},
		{ActionJogZMinus, CmdJog{Axis: "Z", Distance: -1}},
		{ActionStop, CmdCancelPrint{}},
	}

	for _, tt := range tests {
		s := NewDaemonState(50)
		rr := Reduce(s, ButtonPressed{Action: tt.action}, cfg)
		if len(rr.Commands) != 1 {
			t.Fatalf("%s: expected 1 command, got %d", tt.action, len(rr.Commands))
		}
		if rr.Commands[0] != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.action, tt.want, rr.Commands[0])
		}
	}
}

func TestReducer_ButtonPressed_Home(t *testing.T) {
	cfg := testReducerConfig()

	for action, axis := range map[PanelAction]string{ActionHomeX: "X", ActionHomeY: "Y", ActionHomeZ: "Z"} {
		rr := Reduce(NewDaemonState(50), ButtonPressed{Action: action}, cfg)
		if len(rr.Commands) != 1 {
			t.Fatalf("%s: expected 1 command, got %d", action, len(rr.Commands))
		}
		home, ok := rr.Commands[0].(CmdHome)
		if !ok {
			t.Fatalf("%s: expected CmdHome, got %T", action, rr.Commands[0])
		}
		if len(home.Axes) != 1 || home.Axes[0] != axis {
			t.Errorf("%s: expected axes [%s], got %v", action, axis, home.Axes)
		}
	}
}

func TestReducer_ButtonPressed_NotCoalesced(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(50)

	var cmds []Command
	for i := 0; i < 3; i++ {
		rr := Reduce(s, TimedEvent{Event: ButtonPressed{Action: ActionJogZMinus}, At: time.Now()}, cfg)
		cmds = append(cmds, rr.Commands...)
	}
	if len(cmds) != 3 {
		t.Fatalf("expected 3 jog commands, got %d", len(cmds))
	}
}

func TestReducer_ButtonPressed_UnknownActionIsNoop(t *testing.T) {
	rr := Reduce(NewDaemonState(50), ButtonPressed{Action: "launch_rocket"}, testReducerConfig())
	if len(rr.Commands) != 0 {
		t.Fatalf("expected no commands, got %v", rr.Commands)
	}
}

func TestReducer_RequestState_PublishesSnapshot(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(30)
	observe(s, 30, cfg)

	reply := make(chan StateSnapshot, 1)
	rr := Reduce(s, RequestState{Reply: reply}, cfg)
	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	pub, ok := rr.Commands[0].(CmdPublishState)
	if !ok {
		t.Fatalf("expected CmdPublishState, got %T", rr.Commands[0])
	}
	if pub.Snapshot.LED.Brightness != 30 || !pub.Snapshot.LED.On {
		t.Errorf("unexpected snapshot: %+v", pub.Snapshot.LED)
	}
}

func TestReducer_PrinterObservations(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(50)
	now := time.Now()

	Reduce(s, PrinterCommandDone{Command: CmdHome{Axes: []string{"X"}}, At: now}, cfg)
	if s.Printer.LastCommand != "CmdHome(axes=X)" || s.Printer.LastError != "" {
		t.Fatalf("unexpected printer state: %+v", s.Printer)
	}

	Reduce(s, CommandFailed{Command: CmdCancelPrint{}, Err: errors.New("offline"), At: now}, cfg)
	if s.Printer.LastCommand != "CmdCancelPrint()" || s.Printer.LastError != "offline" {
		t.Fatalf("unexpected printer state: %+v", s.Printer)
	}

	// LED failures leave the printer state alone.
	Reduce(s, CommandFailed{Command: CmdSetDuty{Percent: 10}, Err: errors.New("pwm"), At: now}, cfg)
	if s.Printer.LastError != "offline" {
		t.Fatalf("LED failure overwrote printer state: %+v", s.Printer)
	}
}

func TestReducer_SensorObserved(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState(50)

	Reduce(s, SensorObserved{Name: "E", TempC: 21.5, Humidity: 40, At: time.Now()}, cfg)
	Reduce(s, SensorObserved{Name: "E", Err: errors.New("checksum"), At: time.Now()}, cfg)

	r := s.Sensors["E"]
	if r.TempC != 21.5 || r.Humidity != 40 {
		t.Fatalf("failed read should keep previous values, got %+v", r)
	}
	if r.Error != "checksum" {
		t.Fatalf("expected error recorded, got %q", r.Error)
	}

	Reduce(s, SensorObserved{Name: "FB", TempC: 19, Humidity: 55, At: time.Now()}, cfg)
	snap := s.Snapshot()
	if len(snap.Sensors) != 2 || snap.Sensors[0].Name != "E" || snap.Sensors[1].Name != "FB" {
		t.Fatalf("expected sensors sorted by name, got %+v", snap.Sensors)
	}
}
