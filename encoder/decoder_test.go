package encoder

import (
	"errors"
	"testing"
)

const (
	testPinA Pin = 26
	testPinB Pin = 13
)

// stepRecorder collects step callbacks.
type stepRecorder struct {
	steps []int8
}

func (r *stepRecorder) step(dir int8) { r.steps = append(r.steps, dir) }

func (r *stepRecorder) sum() int {
	total := 0
	for _, s := range r.steps {
		total += int(s)
	}
	return total
}

func newTestDecoder(t *testing.T, initial uint8) (*Decoder, *stepRecorder) {
	t.Helper()
	src := newFakeSource()
	src.levels[testPinA] = Level(initial & 1)
	src.levels[testPinB] = Level(initial >> 1 & 1)
	rec := &stepRecorder{}
	d, err := NewDecoder(src, testPinA, testPinB, rec.step)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return d, rec
}

// walk moves the decoder through codes one line edge at a time.
func walk(t *testing.T, d *Decoder, codes ...uint8) {
	t.Helper()
	var tick uint64
	for _, next := range codes {
		cur := d.Code()
		switch cur ^ next {
		case 0:
		case 1:
			d.OnEdge(testPinA, Level(next&1), tick)
		case 2:
			d.OnEdge(testPinB, Level(next>>1&1), tick)
		default:
			t.Fatalf("walk: %d -> %d changes both lines; use Observe", cur, next)
		}
		tick += 1000
	}
}

func observe(d *Decoder, code uint8) {
	d.Observe(Level(code&1), Level(code>>1&1), 0)
}

// TestDecoder_ClockwiseDetent feeds A rise, B rise, A fall, B fall from rest.
func TestDecoder_ClockwiseDetent(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	d.OnEdge(testPinA, Rising, 0)
	if d.Code() != 1 {
		t.Fatalf("expected code=1 after A rise, got %d", d.Code())
	}
	d.OnEdge(testPinB, Rising, 1000)
	if d.Code() != 3 {
		t.Fatalf("expected code=3 after B rise, got %d", d.Code())
	}
	d.OnEdge(testPinA, Falling, 2000)
	if d.Code() != 2 {
		t.Fatalf("expected code=2 after A fall, got %d", d.Code())
	}
	if len(rec.steps) != 0 {
		t.Fatalf("expected no step before detent completes, got %v", rec.steps)
	}
	d.OnEdge(testPinB, Falling, 3000)

	if len(rec.steps) != 1 || rec.steps[0] != 1 {
		t.Fatalf("expected exactly one step(+1), got %v", rec.steps)
	}
	if d.Code() != 0 {
		t.Errorf("expected final code=0, got %d", d.Code())
	}
}

// TestDecoder_CounterClockwiseDetent tests the reverse sequence.
func TestDecoder_CounterClockwiseDetent(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	walk(t, d, 2, 3, 1, 0)

	if len(rec.steps) != 1 || rec.steps[0] != -1 {
		t.Fatalf("expected exactly one step(-1), got %v", rec.steps)
	}
}

// TestDecoder_MultipleDetents tests that each full cycle yields one step.
func TestDecoder_MultipleDetents(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	for i := 0; i < 5; i++ {
		walk(t, d, 1, 3, 2, 0)
	}
	walk(t, d, 2, 3, 1, 0)

	if len(rec.steps) != 6 {
		t.Fatalf("expected 6 steps, got %d (%v)", len(rec.steps), rec.steps)
	}
	if rec.sum() != 4 {
		t.Errorf("expected net +4, got %d", rec.sum())
	}
}

// TestDecoder_PartialRotation tests that turning half way and back emits nothing.
func TestDecoder_PartialRotation(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	walk(t, d, 1, 3, 1, 0)
	walk(t, d, 1, 0, 1, 0)

	if len(rec.steps) != 0 {
		t.Fatalf("expected no steps for partial movement, got %v", rec.steps)
	}
}

// TestDecoder_ContactBounce tests that chatter on one line mid-detent
// does not change the outcome.
func TestDecoder_ContactBounce(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	walk(t, d, 1, 0, 1, 3, 1, 3, 2, 3, 2, 0)

	if len(rec.steps) != 1 || rec.steps[0] != 1 {
		t.Fatalf("expected one step(+1) despite bounce, got %v", rec.steps)
	}
}

// TestDecoder_DuplicateEdgeIsNoop tests an edge that does not change the code.
func TestDecoder_DuplicateEdgeIsNoop(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	d.OnEdge(testPinA, Rising, 0)
	d.OnEdge(testPinA, Rising, 10)
	walk(t, d, 3, 2, 0)

	if len(rec.steps) != 1 || rec.steps[0] != 1 {
		t.Fatalf("expected one step(+1), got %v", rec.steps)
	}
}

// TestDecoder_GlitchBothLines tests that a jump of both lines is absorbed
// and the observed code is adopted.
func TestDecoder_GlitchBothLines(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	observe(d, 3)

	if len(rec.steps) != 0 {
		t.Fatalf("expected no step for 0->3 glitch, got %v", rec.steps)
	}
	if d.Code() != 3 {
		t.Errorf("expected code=3 after glitch (not rolled back), got %d", d.Code())
	}
}

// TestDecoder_GlitchThenValid tests a 1->2 glitch followed by a normal transition.
func TestDecoder_GlitchThenValid(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	walk(t, d, 1)
	observe(d, 2)
	if len(rec.steps) != 0 {
		t.Fatalf("expected no step for 1->2 glitch, got %v", rec.steps)
	}
	if d.Code() != 2 {
		t.Fatalf("expected code=2 after glitch, got %d", d.Code())
	}

	// 2 -> 0 is a valid single-line transition and is processed normally.
	walk(t, d, 0)
	if d.Code() != 0 {
		t.Fatalf("expected code=0, got %d", d.Code())
	}
	if len(rec.steps) != 0 {
		t.Fatalf("expected no step: the detent was incomplete, got %v", rec.steps)
	}

	// Decoding is fully back in sync for the next detent.
	walk(t, d, 1, 3, 2, 0)
	if len(rec.steps) != 1 || rec.steps[0] != 1 {
		t.Fatalf("expected one step(+1) after recovery, got %v", rec.steps)
	}
}

// TestDecoder_GlitchIntoRest tests that a glitch landing on the rest code
// discards credit instead of carrying it into the next detent.
func TestDecoder_GlitchIntoRest(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	walk(t, d, 1, 3)
	observe(d, 0)
	walk(t, d, 2, 3, 1, 0)

	if len(rec.steps) != 1 || rec.steps[0] != -1 {
		t.Fatalf("expected one step(-1), got %v", rec.steps)
	}
}

// TestDecoder_ObserveValidSequence tests that paired samples decode like edges.
func TestDecoder_ObserveValidSequence(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	for _, c := range []uint8{1, 3, 2, 0} {
		observe(d, c)
	}

	if len(rec.steps) != 1 || rec.steps[0] != 1 {
		t.Fatalf("expected one step(+1), got %v", rec.steps)
	}
}

// TestDecoder_CreditBoundedAwayFromRest loops through valid forward
// transitions broken by a glitch, never reaching rest, long enough to
// overflow an unbounded counter. The final clockwise arrival must still
// step forward.
func TestDecoder_CreditBoundedAwayFromRest(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	observe(d, 1)
	for i := 0; i < 64; i++ {
		observe(d, 3)
		observe(d, 2)
		observe(d, 1) // 2 -> 1 changes both lines
	}
	if len(rec.steps) != 0 {
		t.Fatalf("no step expected away from rest, got %v", rec.steps)
	}

	for _, c := range []uint8{3, 2, 0} {
		observe(d, c)
	}
	if len(rec.steps) != 1 || rec.steps[0] != 1 {
		t.Fatalf("expected one step(+1), got %v", rec.steps)
	}
}

// TestDecoder_InitialLevels tests that construction reads current levels.
func TestDecoder_InitialLevels(t *testing.T) {
	d, rec := newTestDecoder(t, 3)
	if d.Code() != 3 {
		t.Fatalf("expected initial code=3, got %d", d.Code())
	}

	// From mid-cycle, finishing the clockwise path reaches rest with only
	// two transitions of credit: no step.
	walk(t, d, 2, 0)
	if len(rec.steps) != 0 {
		t.Errorf("expected no step from a half detent, got %v", rec.steps)
	}
}

// TestDecoder_UnknownPin tests that edges for other pins are ignored.
func TestDecoder_UnknownPin(t *testing.T) {
	d, rec := newTestDecoder(t, 0)

	d.OnEdge(Pin(99), Rising, 0)

	if d.Code() != 0 || len(rec.steps) != 0 {
		t.Errorf("expected no effect from unknown pin, code=%d steps=%v", d.Code(), rec.steps)
	}
}

// TestDecoder_PanickingCallback tests that state is settled before the callback runs.
func TestDecoder_PanickingCallback(t *testing.T) {
	src := newFakeSource()
	calls := 0
	d, err := NewDecoder(src, testPinA, testPinB, func(int8) {
		calls++
		panic("consumer failed")
	})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected callback panic to propagate")
			}
		}()
		walk(t, d, 1, 3, 2, 0)
	}()

	if d.Code() != 0 {
		t.Fatalf("expected code=0 after failed callback, got %d", d.Code())
	}

	// The next detent decodes normally; the mutex was not left locked.
	func() {
		defer func() { _ = recover() }()
		walk(t, d, 1, 3, 2, 0)
	}()
	if calls != 2 {
		t.Errorf("expected 2 callback invocations, got %d", calls)
	}
}

// TestNewDecoder_Errors tests construction failures.
func TestNewDecoder_Errors(t *testing.T) {
	src := newFakeSource()
	if _, err := NewDecoder(src, 5, 5, nil); err == nil {
		t.Errorf("expected error for identical pins")
	}

	src.levelErr = errors.New("no such line")
	if _, err := NewDecoder(src, 5, 6, nil); err == nil {
		t.Errorf("expected error when level read fails")
	}
}

// TestTransitionTable checks the table against the gray-code ordering.
func TestTransitionTable(t *testing.T) {
	cw := map[uint8]uint8{0: 1, 1: 3, 3: 2, 2: 0}
	for old := uint8(0); old < 4; old++ {
		for next := uint8(0); next < 4; next++ {
			got := transitions[old<<2|next]
			var want int8
			switch {
			case old == next:
				want = none
			case cw[old] == next:
				want = forward
			case cw[next] == old:
				want = reverse
			default:
				want = invalid
			}
			if got != want {
				t.Errorf("transition %d->%d: expected %d, got %d", old, next, want, got)
			}
		}
	}
}
