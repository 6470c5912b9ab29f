package encoder

import "sync"

// DefaultDebounce is the press debounce window in microsecond ticks.
const DefaultDebounce uint64 = 50000

// Button debounces rising edges on one line and invokes a pre-bound action.
//
// The first press after a quiet period fires immediately; further rising
// edges within the window are dropped.
type Button struct {
	mu        sync.Mutex
	pin       Pin
	threshold uint64
	action    func()

	armed bool // false until the first accepted press
	last  uint64
}

// NewButton returns a handler for pin. A zero threshold selects DefaultDebounce.
func NewButton(pin Pin, threshold uint64, action func()) *Button {
	if threshold == 0 {
		threshold = DefaultDebounce
	}
	return &Button{pin: pin, threshold: threshold, action: action}
}

// Pin returns the watched line.
func (b *Button) Pin() Pin { return b.pin }

// OnEdge handles one edge. Falling edges and other pins are ignored.
func (b *Button) OnEdge(pin Pin, level Level, tick uint64) {
	if pin != b.pin || level != Rising {
		return
	}
	if b.accept(tick) && b.action != nil {
		b.action()
	}
}

// accept applies the debounce gate and records an accepted press.
// Unsigned subtraction keeps the elapsed time correct across tick wraparound.
func (b *Button) accept(tick uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.armed && tick-b.last <= b.threshold {
		return false
	}
	b.armed = true
	b.last = tick
	return true
}
