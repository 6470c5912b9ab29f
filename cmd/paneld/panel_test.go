package main

import (
	"errors"
	"io"
	"sync"
	"testing"

	"printerpanel/encoder"
)

// fakeEdgeSource is an in-memory encoder.Source for wiring tests.
type fakeEdgeSource struct {
	mu      sync.Mutex
	fns     map[encoder.Pin]encoder.EdgeFunc
	modes   map[encoder.Pin]encoder.EdgeMode
	failPin encoder.Pin
	closed  bool
}

func newFakeEdgeSource() *fakeEdgeSource {
	return &fakeEdgeSource{
		fns:     make(map[encoder.Pin]encoder.EdgeFunc),
		modes:   make(map[encoder.Pin]encoder.EdgeMode),
		failPin: -1,
	}
}

func (f *fakeEdgeSource) Level(encoder.Pin) (encoder.Level, error) {
	return encoder.Falling, nil
}

func (f *fakeEdgeSource) Watch(pin encoder.Pin, mode encoder.EdgeMode, fn encoder.EdgeFunc) (io.Closer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pin == f.failPin {
		return nil, errors.New("line busy")
	}
	f.fns[pin] = fn
	f.modes[pin] = mode
	return closerFunc(func() error {
		f.mu.Lock()
		delete(f.fns, pin)
		f.mu.Unlock()
		return nil
	}), nil
}

func (f *fakeEdgeSource) Close() error {
	f.closed = true
	return nil
}

func (f *fakeEdgeSource) edge(pin encoder.Pin, level encoder.Level, tick uint64) {
	f.mu.Lock()
	fn := f.fns[pin]
	f.mu.Unlock()
	if fn != nil {
		fn(pin, level, tick)
	}
}

func (f *fakeEdgeSource) watchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fns)
}

func drain(events chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBuildPanel_WatchesEveryEnabledInput(t *testing.T) {
	cfg := DefaultConfig()
	src := newFakeEdgeSource()

	p, err := buildPanel(&cfg, src, make(chan Event, 8), testLogger())
	if err != nil {
		t.Fatalf("buildPanel: %v", err)
	}
	defer p.Cancel()

	if got, want := src.watchCount(), len(cfg.inputPins()); got != want {
		t.Fatalf("expected %d watches, got %d", want, got)
	}
	if m := src.modes[encoder.Pin(cfg.Encoder.PinA)]; m != encoder.BothEdges {
		t.Errorf("expected encoder A on both edges, got %v", m)
	}
	if m := src.modes[encoder.Pin(cfg.Buttons.Stop.Pin)]; m != encoder.RisingEdge {
		t.Errorf("expected stop button on rising edge, got %v", m)
	}
}

func TestBuildPanel_EncoderDetentPostsTurn(t *testing.T) {
	cfg := DefaultConfig()
	src := newFakeEdgeSource()
	events := make(chan Event, 8)

	p, err := buildPanel(&cfg, src, events, testLogger())
	if err != nil {
		t.Fatalf("buildPanel: %v", err)
	}
	defer p.Cancel()

	a := encoder.Pin(cfg.Encoder.PinA)
	b := encoder.Pin(cfg.Encoder.PinB)

	// One clockwise detent: 00 -> 01 -> 11 -> 10 -> 00.
	src.edge(a, encoder.Rising, 1000)
	src.edge(b, encoder.Rising, 2000)
	src.edge(a, encoder.Falling, 3000)
	src.edge(b, encoder.Falling, 4000)

	got := drain(events)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %v", got)
	}
	if ev, ok := got[0].(EncoderTurned); !ok || ev.Direction != 1 {
		t.Fatalf("expected EncoderTurned{+1}, got %#v", got[0])
	}
}

func TestBuildPanel_ButtonsPostActions(t *testing.T) {
	cfg := DefaultConfig()
	src := newFakeEdgeSource()
	events := make(chan Event, 8)

	p, err := buildPanel(&cfg, src, events, testLogger())
	if err != nil {
		t.Fatalf("buildPanel: %v", err)
	}
	defer p.Cancel()

	src.edge(encoder.Pin(cfg.Buttons.Home.Y), encoder.Rising, 1000)
	src.edge(encoder.Pin(cfg.Encoder.PinSwitch), encoder.Rising, 1000)

	// Bounce inside the debounce window is dropped.
	src.edge(encoder.Pin(cfg.Buttons.Home.Y), encoder.Rising, 2000)

	got := drain(events)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %v", got)
	}
	if ev, ok := got[0].(ButtonPressed); !ok || ev.Action != ActionHomeY {
		t.Errorf("expected ButtonPressed{home_y}, got %#v", got[0])
	}
	if _, ok := got[1].(EncoderPressed); !ok {
		t.Errorf("expected EncoderPressed, got %#v", got[1])
	}
}

func TestBuildPanel_FullQueueDropsInput(t *testing.T) {
	cfg := DefaultConfig()
	src := newFakeEdgeSource()
	events := make(chan Event, 1)

	p, err := buildPanel(&cfg, src, events, testLogger())
	if err != nil {
		t.Fatalf("buildPanel: %v", err)
	}
	defer p.Cancel()

	// Neither send may block the edge goroutine.
	src.edge(encoder.Pin(cfg.Buttons.Stop.Pin), encoder.Rising, 1000)
	src.edge(encoder.Pin(cfg.Buttons.Home.X), encoder.Rising, 1000)

	if got := drain(events); len(got) != 1 {
		t.Fatalf("expected 1 queued event, got %d", len(got))
	}
}

func TestBuildPanel_DisabledGroupsNotWatched(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encoder.Enabled = false
	cfg.Buttons.XY.Enabled = false
	src := newFakeEdgeSource()

	p, err := buildPanel(&cfg, src, make(chan Event, 8), testLogger())
	if err != nil {
		t.Fatalf("buildPanel: %v", err)
	}
	defer p.Cancel()

	// home x/y/z, z+/z-, stop
	if got := src.watchCount(); got != 6 {
		t.Fatalf("expected 6 watches, got %d", got)
	}
}

func TestBuildPanel_FailureReleasesPartialPanel(t *testing.T) {
	cfg := DefaultConfig()
	src := newFakeEdgeSource()
	src.failPin = encoder.Pin(cfg.Buttons.Stop.Pin)

	p, err := buildPanel(&cfg, src, make(chan Event, 8), testLogger())
	if err == nil {
		p.Cancel()
		t.Fatalf("expected error")
	}
	if got := src.watchCount(); got != 0 {
		t.Fatalf("expected all watches released, got %d", got)
	}
}

func TestBuildPanel_CancelStopsEvents(t *testing.T) {
	cfg := DefaultConfig()
	src := newFakeEdgeSource()
	events := make(chan Event, 8)

	p, err := buildPanel(&cfg, src, events, testLogger())
	if err != nil {
		t.Fatalf("buildPanel: %v", err)
	}
	if err := p.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	src.edge(encoder.Pin(cfg.Buttons.Stop.Pin), encoder.Rising, 1000)
	if got := drain(events); len(got) != 0 {
		t.Fatalf("expected no events after cancel, got %v", got)
	}
}
