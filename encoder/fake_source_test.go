package encoder

import (
	"errors"
	"io"
	"sync"
)

// fakeSource is an in-memory Source. Tests drive edges through edge().
type fakeSource struct {
	mu       sync.Mutex
	levels   map[Pin]Level
	fns      map[Pin]EdgeFunc
	pairs    map[[2]Pin]PairFunc
	closed   []Pin
	failPin  Pin
	levelErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		levels:  make(map[Pin]Level),
		fns:     make(map[Pin]EdgeFunc),
		pairs:   make(map[[2]Pin]PairFunc),
		failPin: -1,
	}
}

func (f *fakeSource) Level(pin Pin) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levelErr != nil {
		return 0, f.levelErr
	}
	return f.levels[pin], nil
}

func (f *fakeSource) Watch(pin Pin, mode EdgeMode, fn EdgeFunc) (io.Closer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pin == f.failPin {
		return nil, errors.New("line busy")
	}
	f.fns[pin] = fn
	return closerFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.fns, pin)
		f.closed = append(f.closed, pin)
		return nil
	}), nil
}

// edge delivers an edge if the pin is still watched.
func (f *fakeSource) edge(pin Pin, level Level, tick uint64) {
	f.mu.Lock()
	fn := f.fns[pin]
	f.levels[pin] = level
	f.mu.Unlock()
	if fn != nil {
		fn(pin, level, tick)
	}
}

func (f *fakeSource) watched(pin Pin) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.fns[pin]
	return ok
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

// pairSource adds line-pair sampling to fakeSource.
type pairSource struct {
	*fakeSource
}

func (p pairSource) WatchPair(a, b Pin, fn PairFunc) (io.Closer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := [2]Pin{a, b}
	p.pairs[key] = fn
	return closerFunc(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.pairs, key)
		return nil
	}), nil
}

func (p pairSource) sample(a, b Pin, la, lb Level, tick uint64) {
	p.mu.Lock()
	fn := p.pairs[[2]Pin{a, b}]
	p.mu.Unlock()
	if fn != nil {
		fn(la, lb, tick)
	}
}
