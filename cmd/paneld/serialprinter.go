package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// serialPollInterval bounds each blocking read so deadlines are honoured.
const serialPollInterval = 100 * time.Millisecond

var errSerialTimeout = errors.New("timed out waiting for ok")

// serialPort is the subset of serial.Port the printer needs.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialPrinter sends G-code to a directly attached printer (Marlin style
// firmware) and waits for "ok" after every line.
type SerialPrinter struct {
	mu      sync.Mutex
	port    serialPort
	reader  *bufio.Reader
	name    string
	timeout time.Duration
	logger  *slog.Logger
}

// OpenSerialPrinter opens the serial device at the given baud rate.
func OpenSerialPrinter(name string, baud int, timeout time.Duration, logger *slog.Logger) (*SerialPrinter, error) {
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	logger.Info("opened printer serial port", "port", name, "baud", baud)
	return newSerialPrinter(p, name, timeout, logger)
}

func newSerialPrinter(port serialPort, name string, timeout time.Duration, logger *slog.Logger) (*SerialPrinter, error) {
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &SerialPrinter{
		port:    port,
		reader:  bufio.NewReader(timeoutReader{port}),
		name:    name,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// timeoutReader turns the (0, nil) a serial read returns on timeout into an
// error so bufio does not spin.
type timeoutReader struct {
	r io.Reader
}

var errReadIdle = errors.New("serial read idle")

func (t timeoutReader) Read(b []byte) (int, error) {
	n, err := t.r.Read(b)
	if n == 0 && err == nil {
		return 0, errReadIdle
	}
	return n, err
}

// send writes each line and waits for its acknowledgement.
func (p *SerialPrinter) send(ctx context.Context, lines ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return errors.New("serial port closed")
	}

	for _, line := range lines {
		if _, err := io.WriteString(p.port, line+"\n"); err != nil {
			return fmt.Errorf("write %q: %w", line, err)
		}
		if err := p.waitOK(ctx); err != nil {
			return fmt.Errorf("%q: %w", line, err)
		}
		p.logger.Debug("serial gcode", "port", p.name, "line", line)
	}
	return nil
}

// waitOK reads response lines until "ok", an error report, or the deadline.
// Status chatter such as "echo:busy: processing" is skipped.
func (p *SerialPrinter) waitOK(ctx context.Context) error {
	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var partial strings.Builder
	for {
		chunk, err := p.reader.ReadString('\n')
		partial.WriteString(chunk)
		if err == nil {
			line := strings.TrimSpace(partial.String())
			partial.Reset()
			switch {
			case strings.HasPrefix(line, "ok"):
				return nil
			case strings.HasPrefix(line, "Error:") || strings.HasPrefix(line, "!!"):
				return fmt.Errorf("printer: %s", line)
			}
			continue
		}
		if !errors.Is(err, errReadIdle) {
			return fmt.Errorf("read: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return errSerialTimeout
		}
	}
}

// Jog moves one axis relative to its current position.
func (p *SerialPrinter) Jog(ctx context.Context, axis string, distance float64) error {
	if err := validAxis(axis); err != nil {
		return err
	}
	if err := p.send(ctx, jogGCode(axis, distance)...); err != nil {
		return fmt.Errorf("jog %s: %w", axis, err)
	}
	return nil
}

// Home homes the given axes.
func (p *SerialPrinter) Home(ctx context.Context, axes ...string) error {
	for _, a := range axes {
		if err := validAxis(a); err != nil {
			return err
		}
	}
	if err := p.send(ctx, homeGCode(axes...)); err != nil {
		return fmt.Errorf("home %v: %w", axes, err)
	}
	return nil
}

// Cancel aborts an SD/host print with M524.
func (p *SerialPrinter) Cancel(ctx context.Context) error {
	if err := p.send(ctx, "M524"); err != nil {
		return fmt.Errorf("cancel print: %w", err)
	}
	return nil
}

// Close closes the serial port.
func (p *SerialPrinter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}
