package encoder

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrCanceled is returned by Watch after the panel has been canceled.
var ErrCanceled = errors.New("panel canceled")

// PairFunc receives both encoder line levels sampled after an edge on either.
type PairFunc func(a, b Level, tick uint64)

// PairWatcher is implemented by sources that can sample two lines together.
type PairWatcher interface {
	WatchPair(a, b Pin, fn PairFunc) (io.Closer, error)
}

// Panel owns the pin watches for one control-panel configuration and routes
// edges from the source to the registered handlers.
//
// A Panel is built fresh for every configuration and discarded after Cancel;
// it is never reset in place.
type Panel struct {
	src Watcher

	mu       sync.Mutex
	closed   bool
	routes   map[Pin]Handler
	watches  []io.Closer
	inflight sync.WaitGroup
}

// NewPanel returns an empty panel backed by src.
func NewPanel(src Watcher) *Panel {
	return &Panel{
		src:    src,
		routes: make(map[Pin]Handler),
	}
}

// Watch routes edges of the given mode on pin to h. A pin can have one handler.
func (p *Panel) Watch(pin Pin, mode EdgeMode, h Handler) error {
	if err := p.reserve(h, pin); err != nil {
		return err
	}
	w, err := p.src.Watch(pin, mode, p.dispatchFunc())
	return p.commit(w, err, pin)
}

// CanSamplePairs reports whether the source supports WatchPair.
func (p *Panel) CanSamplePairs() bool {
	_, ok := p.src.(PairWatcher)
	return ok
}

// WatchPair routes sampled level pairs of lines a and b to d.Observe.
func (p *Panel) WatchPair(a, b Pin, d *Decoder) error {
	pw, ok := p.src.(PairWatcher)
	if !ok {
		return errors.New("source cannot sample line pairs")
	}
	if err := p.reserve(d, a, b); err != nil {
		return err
	}
	w, err := pw.WatchPair(a, b, func(la, lb Level, tick uint64) {
		if !p.enter() {
			return
		}
		defer p.inflight.Done()
		d.Observe(la, lb, tick)
	})
	return p.commit(w, err, a, b)
}

// reserve installs routes before the source is asked to deliver, since a
// source may start calling back before its Watch returns.
func (p *Panel) reserve(h Handler, pins ...Pin) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrCanceled
	}
	for _, pin := range pins {
		if _, dup := p.routes[pin]; dup {
			return fmt.Errorf("pin %d already watched", pin)
		}
	}
	for _, pin := range pins {
		p.routes[pin] = h
	}
	return nil
}

func (p *Panel) commit(w io.Closer, err error, pins ...Pin) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		for _, pin := range pins {
			delete(p.routes, pin)
		}
		return fmt.Errorf("watch pins %v: %w", pins, err)
	}
	if p.closed {
		_ = w.Close()
		return ErrCanceled
	}
	p.watches = append(p.watches, w)
	return nil
}

// enter admits one callback unless the panel is canceled. Every true result
// must be paired with p.inflight.Done.
func (p *Panel) enter() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.inflight.Add(1)
	return true
}

// dispatchFunc adapts Dispatch to the source callback signature.
func (p *Panel) dispatchFunc() EdgeFunc {
	return func(pin Pin, level Level, tick uint64) {
		p.Dispatch(pin, level, tick)
	}
}

// Dispatch delivers one edge to the handler registered for pin. It reports
// false when the pin is unknown or the panel has been canceled.
func (p *Panel) Dispatch(pin Pin, level Level, tick uint64) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	h, ok := p.routes[pin]
	if !ok {
		p.mu.Unlock()
		return false
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	defer p.inflight.Done()
	h.OnEdge(pin, level, tick)
	return true
}

// Pins returns the watched pins in no particular order.
func (p *Panel) Pins() []Pin {
	p.mu.Lock()
	defer p.mu.Unlock()
	pins := make([]Pin, 0, len(p.routes))
	for pin := range p.routes {
		pins = append(pins, pin)
	}
	return pins
}

// Cancel stops all deliveries: no dispatch starts after Cancel begins, every
// watch is closed, and Cancel returns only once in-flight callbacks finish.
// It must not be called from inside a handler callback.
func (p *Panel) Cancel() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	watches := p.watches
	p.watches = nil
	p.routes = nil
	p.mu.Unlock()

	var errs []error
	for _, w := range watches {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.inflight.Wait()
	return errors.Join(errs...)
}
