//go:build linux

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"printerpanel/encoder"
)

// sysfsSource delivers edges from the legacy /sys/class/gpio interface.
//
// All watched value files share one epoll instance and one goroutine,
// so callbacks never run concurrently. The kernel offers no bias or
// debounce here; pull-downs must be external.
type sysfsSource struct {
	dir    string
	logger *slog.Logger

	epfd   int
	wakefd int
	done   chan struct{}

	mu      sync.Mutex
	watched map[int]*sysfsLine // by value-file fd
	pins    map[encoder.Pin]*sysfsLine
	closed  bool
}

type sysfsLine struct {
	pin   encoder.Pin
	value *os.File
	fn    encoder.EdgeFunc
	buf   []byte
}

func newSysfsSource(cfg GPIOConfig, logger *slog.Logger) (*sysfsSource, error) {
	root := cfg.SysfsRoot
	if root == "" {
		root = "/sys/class"
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl_add wakefd: %w", err)
	}

	s := &sysfsSource{
		dir:     filepath.Join(root, "gpio"),
		logger:  logger,
		epfd:    epfd,
		wakefd:  wakefd,
		done:    make(chan struct{}),
		watched: make(map[int]*sysfsLine),
		pins:    make(map[encoder.Pin]*sysfsLine),
	}
	go s.loop()
	return s, nil
}

func (s *sysfsSource) pinDir(pin encoder.Pin) string {
	return filepath.Join(s.dir, fmt.Sprintf("gpio%d", pin))
}

// export exports pin and configures it as an input with the given edge.
func (s *sysfsSource) export(pin encoder.Pin, edge string) error {
	pd := s.pinDir(pin)
	if err := sysfsExport(filepath.Join(pd, "value"), filepath.Join(s.dir, "export"), int(pin)); err != nil {
		return err
	}
	if err := sysfsWrite(filepath.Join(pd, "direction"), "in"); err != nil {
		return fmt.Errorf("gpio%d direction: %w", pin, err)
	}
	if err := sysfsWrite(filepath.Join(pd, "edge"), edge); err != nil {
		return fmt.Errorf("gpio%d edge: %w", pin, err)
	}
	return nil
}

// Level reads the current level of a pin.
func (s *sysfsSource) Level(pin encoder.Pin) (encoder.Level, error) {
	s.mu.Lock()
	l := s.pins[pin]
	s.mu.Unlock()
	if l != nil {
		return l.read()
	}

	valuePath := filepath.Join(s.pinDir(pin), "value")
	if err := sysfsExport(valuePath, filepath.Join(s.dir, "export"), int(pin)); err != nil {
		return 0, err
	}
	b, err := os.ReadFile(valuePath)
	if err != nil {
		return 0, fmt.Errorf("read gpio%d: %w", pin, err)
	}
	return parseSysfsLevel(pin, b)
}

func (l *sysfsLine) read() (encoder.Level, error) {
	if _, err := l.value.ReadAt(l.buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read gpio%d: %w", l.pin, err)
	}
	return parseSysfsLevel(l.pin, l.buf)
}

func parseSysfsLevel(pin encoder.Pin, b []byte) (encoder.Level, error) {
	if len(b) > 0 {
		switch b[0] {
		case '0':
			return encoder.Falling, nil
		case '1':
			return encoder.Rising, nil
		}
	}
	return 0, fmt.Errorf("gpio%d: unknown value %q", pin, b)
}

// Watch exports pin with edge detection and adds it to the epoll set.
func (s *sysfsSource) Watch(pin encoder.Pin, mode encoder.EdgeMode, fn encoder.EdgeFunc) (io.Closer, error) {
	var edge string
	switch mode {
	case encoder.RisingEdge:
		edge = "rising"
	case encoder.FallingEdge:
		edge = "falling"
	case encoder.BothEdges:
		edge = "both"
	default:
		return nil, fmt.Errorf("pin %d: unknown edge mode %d", pin, mode)
	}

	if err := s.export(pin, edge); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(s.pinDir(pin), "value"), os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio%d: %w", pin, err)
	}
	l := &sysfsLine{pin: pin, value: f, fn: fn, buf: make([]byte, 2)}
	// The value must be read once before poll reports edges.
	if _, err := l.read(); err != nil {
		f.Close()
		return nil, err
	}

	fd := int(f.Fd())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f.Close()
		return nil, errors.New("gpio source closed")
	}
	s.watched[fd] = l
	s.pins[pin] = l
	s.mu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: int32(fd)}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		s.forget(fd, pin)
		f.Close()
		return nil, fmt.Errorf("epoll_ctl_add gpio%d: %w", pin, err)
	}

	return closerFunc(func() error { return s.unwatch(fd, l) }), nil
}

func (s *sysfsSource) forget(fd int, pin encoder.Pin) {
	s.mu.Lock()
	delete(s.watched, fd)
	delete(s.pins, pin)
	s.mu.Unlock()
}

func (s *sysfsSource) unwatch(fd int, l *sysfsLine) error {
	s.mu.Lock()
	if s.watched[fd] != l {
		s.mu.Unlock()
		return nil
	}
	delete(s.watched, fd)
	delete(s.pins, l.pin)
	s.mu.Unlock()

	_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	err := l.value.Close()
	_ = sysfsWrite(filepath.Join(s.pinDir(l.pin), "edge"), "none")
	if uerr := sysfsUnexport(filepath.Join(s.dir, "unexport"), int(l.pin)); uerr != nil {
		s.logger.Debug("gpio unexport failed", "pin", l.pin, "error", uerr)
	}
	return err
}

// loop waits for edges and dispatches them until the wake fd fires.
func (s *sysfsSource) loop() {
	defer close(s.done)

	const maxEvents = 16
	events := make([]unix.EpollEvent, maxEvents)

	for {
		n, err := unix.EpollWait(s.epfd, events, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			s.logger.Error("gpio epoll_wait failed", "error", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == s.wakefd {
				return
			}

			tick := monotonicMicros()

			s.mu.Lock()
			l := s.watched[fd]
			s.mu.Unlock()
			if l == nil {
				continue
			}

			level, err := l.read()
			if err != nil {
				s.logger.Warn("gpio read failed", "pin", l.pin, "error", err)
				continue
			}
			l.fn(l.pin, level, tick)
		}
	}
}

// Close stops the epoll loop and releases every watched pin.
func (s *sysfsSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	lines := make(map[int]*sysfsLine, len(s.watched))
	for fd, l := range s.watched {
		lines[fd] = l
	}
	s.mu.Unlock()

	var one [8]byte
	one[0] = 1
	if _, err := unix.Write(s.wakefd, one[:]); err != nil {
		s.logger.Warn("failed to wake gpio loop", "error", err)
	} else {
		<-s.done
	}

	var firstErr error
	for fd, l := range lines {
		if err := s.unwatch(fd, l); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	unix.Close(s.wakefd)
	unix.Close(s.epfd)
	return firstErr
}
