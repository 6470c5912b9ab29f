package encoder

import (
	"fmt"
	"sync"
)

// StepFunc receives +1 (clockwise) or -1 (counter-clockwise) once per detent.
type StepFunc func(direction int8)

// Transition outcomes stored in the table.
const (
	none    int8 = 0
	forward int8 = 1
	reverse int8 = -1
	invalid int8 = 2
)

// transitions is indexed by old<<2 | new, where a code is A | B<<1.
// Clockwise rotation walks 0 -> 1 -> 3 -> 2 -> 0.
var transitions = [16]int8{
	// new:  0        1        2        3
	none, forward, reverse, invalid, // old 0
	reverse, none, invalid, forward, // old 1
	forward, invalid, none, reverse, // old 2
	invalid, reverse, forward, none, // old 3
}

// detentCredit is the number of valid transitions in one full detent.
const detentCredit = 4

// Decoder is a quadrature state machine for one rotary encoder.
//
// Noise is rejected structurally: a transition where both lines change at
// once cannot come from a real rotation, so it earns no credit. The observed
// code is still adopted so that a line that bounced without delivering its
// own edge never goes stale.
type Decoder struct {
	mu     sync.Mutex
	pinA   Pin
	pinB   Pin
	code   uint8
	credit int8
	step   StepFunc
}

// NewDecoder builds a decoder for lines a and b, seeding its state from the
// current line levels rather than waiting for the first edge.
func NewDecoder(r LevelReader, a, b Pin, step StepFunc) (*Decoder, error) {
	if a == b {
		return nil, fmt.Errorf("encoder lines must differ (both %d)", a)
	}
	la, err := r.Level(a)
	if err != nil {
		return nil, fmt.Errorf("read level of pin %d: %w", a, err)
	}
	lb, err := r.Level(b)
	if err != nil {
		return nil, fmt.Errorf("read level of pin %d: %w", b, err)
	}
	return &Decoder{
		pinA: a,
		pinB: b,
		code: uint8(la&1) | uint8(lb&1)<<1,
		step: step,
	}, nil
}

// Pins returns the A and B lines.
func (d *Decoder) Pins() (a, b Pin) { return d.pinA, d.pinB }

// Code returns the last observed 2-bit quadrature code.
func (d *Decoder) Code() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.code
}

// OnEdge feeds one edge into the state machine. Edges for other pins are ignored.
func (d *Decoder) OnEdge(pin Pin, level Level, tick uint64) {
	var bit uint8
	switch pin {
	case d.pinA:
		bit = 0
	case d.pinB:
		bit = 1
	default:
		return
	}
	d.fire(d.advance(func(old uint8) uint8 {
		return old&^(1<<bit) | uint8(level&1)<<bit
	}))
}

// Observe feeds a sample of both lines taken together. Sources that read the
// pair at once can report a change of both lines, which is rejected as a glitch.
func (d *Decoder) Observe(a, b Level, tick uint64) {
	code := uint8(a&1) | uint8(b&1)<<1
	d.fire(d.advance(func(uint8) uint8 { return code }))
}

func (d *Decoder) fire(dir int8) {
	if dir != 0 && d.step != nil {
		d.step(dir)
	}
}

// advance moves to the code produced by next under the lock and reports a
// completed detent, if any. The new code is always adopted.
func (d *Decoder) advance(next func(old uint8) uint8) int8 {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.code
	code := next(old)
	d.code = code

	t := transitions[old<<2|code]
	if t == forward || t == reverse {
		// Held within one detent so noise that never reaches rest cannot
		// accumulate past it.
		d.credit = max(-detentCredit, min(detentCredit, d.credit+t))
	}
	if code != 0 {
		return 0
	}

	// Back at the rest position: settle whatever credit was earned.
	credit := d.credit
	d.credit = 0
	if t == invalid {
		return 0
	}
	switch {
	case credit >= detentCredit:
		return 1
	case credit <= -detentCredit:
		return -1
	}
	return 0
}
