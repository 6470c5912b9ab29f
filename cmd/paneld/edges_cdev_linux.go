//go:build linux

package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"printerpanel/encoder"
)

const gpioConsumer = "printerpanel"

// cdevSource delivers edges from the GPIO character device. Inputs are
// biased pull-down and filtered by the kernel debouncer (the glitch filter).
// go-gpiocdev runs a watcher goroutine per request, so callbacks for
// different pins may run concurrently.
type cdevSource struct {
	chip   string
	glitch time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	lines map[encoder.Pin]*gpiocdev.Line
	pairs map[encoder.Pin]*atomic.Pointer[gpiocdev.Lines]
}

func newCdevSource(cfg GPIOConfig, logger *slog.Logger) (*cdevSource, error) {
	// Probe the chip so a typo fails at startup rather than on first watch.
	c, err := gpiocdev.NewChip(cfg.Chip, gpiocdev.WithConsumer(gpioConsumer))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Chip, err)
	}
	logger.Debug("gpio chip", "name", c.Name, "label", c.Label, "lines", c.Lines())
	c.Close()

	return &cdevSource{
		chip:   cfg.Chip,
		glitch: time.Duration(cfg.GlitchFilterUS) * time.Microsecond,
		logger: logger,
		lines:  make(map[encoder.Pin]*gpiocdev.Line),
		pairs:  make(map[encoder.Pin]*atomic.Pointer[gpiocdev.Lines]),
	}, nil
}

func (s *cdevSource) inputOptions() []gpiocdev.LineReqOption {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithConsumer(gpioConsumer),
	}
	if s.glitch > 0 {
		opts = append(opts, gpiocdev.WithDebounce(s.glitch))
	}
	return opts
}

// Level reads the current level of a pin. Watched pins are read through
// their existing request; others are requested briefly.
func (s *cdevSource) Level(pin encoder.Pin) (encoder.Level, error) {
	s.mu.Lock()
	l := s.lines[pin]
	s.mu.Unlock()

	if l == nil {
		req, err := gpiocdev.RequestLine(s.chip, int(pin), s.inputOptions()...)
		if err != nil {
			return 0, fmt.Errorf("request line %d: %w", pin, err)
		}
		defer req.Close()
		l = req
	}

	v, err := l.Value()
	if err != nil {
		return 0, fmt.Errorf("read line %d: %w", pin, err)
	}
	return encoder.Level(v & 1), nil
}

// Watch requests one line with edge detection and forwards its events.
func (s *cdevSource) Watch(pin encoder.Pin, mode encoder.EdgeMode, fn encoder.EdgeFunc) (io.Closer, error) {
	var edge gpiocdev.LineReqOption
	switch mode {
	case encoder.RisingEdge:
		edge = gpiocdev.WithRisingEdge
	case encoder.FallingEdge:
		edge = gpiocdev.WithFallingEdge
	case encoder.BothEdges:
		edge = gpiocdev.WithBothEdges
	default:
		return nil, fmt.Errorf("pin %d: unknown edge mode %d", pin, mode)
	}

	opts := append(s.inputOptions(), edge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			fn(encoder.Pin(evt.Offset), cdevLevel(evt), cdevTick(evt))
		}))

	l, err := gpiocdev.RequestLine(s.chip, int(pin), opts...)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", pin, err)
	}

	s.mu.Lock()
	s.lines[pin] = l
	s.mu.Unlock()

	return closerFunc(func() error {
		s.mu.Lock()
		if s.lines[pin] == l {
			delete(s.lines, pin)
		}
		s.mu.Unlock()
		return l.Close()
	}), nil
}

// WatchPair requests both encoder lines together. Every edge on either line
// samples both levels, so a jump of both lines between events shows up as
// an invalid transition instead of two single-line steps.
func (s *cdevSource) WatchPair(a, b encoder.Pin, fn encoder.PairFunc) (io.Closer, error) {
	var req atomic.Pointer[gpiocdev.Lines]
	values := make([]int, 2)
	var sampleMu sync.Mutex

	handler := func(evt gpiocdev.LineEvent) {
		ls := req.Load()
		if ls == nil {
			// Event raced the request returning; the next edge resyncs.
			return
		}
		sampleMu.Lock()
		err := ls.Values(values)
		va, vb := values[0], values[1]
		sampleMu.Unlock()
		if err != nil {
			s.logger.Warn("failed to sample encoder lines", "error", err)
			return
		}
		fn(encoder.Level(va&1), encoder.Level(vb&1), cdevTick(evt))
	}

	opts := append(s.inputOptions(), gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(handler))
	ls, err := gpiocdev.RequestLines(s.chip, []int{int(a), int(b)}, opts...)
	if err != nil {
		return nil, fmt.Errorf("request lines %d,%d: %w", a, b, err)
	}
	req.Store(ls)

	s.mu.Lock()
	s.pairs[a] = &req
	s.pairs[b] = &req
	s.mu.Unlock()

	return closerFunc(func() error {
		s.mu.Lock()
		delete(s.pairs, a)
		delete(s.pairs, b)
		s.mu.Unlock()
		req.Store(nil)
		return ls.Close()
	}), nil
}

// Close releases any lines still requested.
func (s *cdevSource) Close() error {
	s.mu.Lock()
	lines := s.lines
	s.lines = make(map[encoder.Pin]*gpiocdev.Line)
	pairs := s.pairs
	s.pairs = make(map[encoder.Pin]*atomic.Pointer[gpiocdev.Lines])
	s.mu.Unlock()

	var firstErr error
	for _, l := range lines {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closed := make(map[*gpiocdev.Lines]bool)
	for _, p := range pairs {
		ls := p.Swap(nil)
		if ls == nil || closed[ls] {
			continue
		}
		closed[ls] = true
		if err := ls.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func cdevLevel(evt gpiocdev.LineEvent) encoder.Level {
	if evt.Type == gpiocdev.LineEventRisingEdge {
		return encoder.Rising
	}
	return encoder.Falling
}

// cdevTick converts the kernel event timestamp to microsecond ticks.
func cdevTick(evt gpiocdev.LineEvent) uint64 {
	return uint64(evt.Timestamp / time.Microsecond)
}
