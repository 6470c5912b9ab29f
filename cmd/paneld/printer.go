package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// PrinterClient is the motion/job interface the effects layer drives.
// Implementations must be safe to call from the daemon goroutine only.
type PrinterClient interface {
	Jog(ctx context.Context, axis string, distance float64) error
	Home(ctx context.Context, axes ...string) error
	Cancel(ctx context.Context) error
	Close() error
}

// jogGCode returns the relative move for one axis, e.g. G91 / G1 X10.
func jogGCode(axis string, distance float64) []string {
	return []string{
		"G91",
		"G1 " + strings.ToUpper(axis) + strconv.FormatFloat(distance, 'f', -1, 64),
	}
}

// homeGCode returns the home command for the given axes, e.g. G28 X Y.
// No axes homes everything.
func homeGCode(axes ...string) string {
	if len(axes) == 0 {
		return "G28"
	}
	up := make([]string, len(axes))
	for i, a := range axes {
		up[i] = strings.ToUpper(a)
	}
	return "G28 " + strings.Join(up, " ")
}

func validAxis(axis string) error {
	switch strings.ToUpper(axis) {
	case "X", "Y", "Z":
		return nil
	default:
		return fmt.Errorf("invalid axis %q", axis)
	}
}

// newPrinterClient builds the configured printer backend.
func newPrinterClient(cfg PrinterConfig, logger *slog.Logger) (PrinterClient, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	switch cfg.Backend {
	case "octoprint":
		key, err := readSecretFile(cfg.APIKeyFile)
		if err != nil {
			return nil, err
		}
		return NewOctoPrintClient(cfg.URL, key, timeout, logger), nil
	case "moonraker":
		return NewMoonrakerClient(cfg.URL, logger, timeout)
	case "serial":
		return OpenSerialPrinter(cfg.SerialPort, cfg.BaudRate, timeout, logger)
	case "none", "":
		return nullPrinter{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown printer backend %q", cfg.Backend)
	}
}

// nullPrinter logs commands without a printer attached.
type nullPrinter struct {
	logger *slog.Logger
}

func (p nullPrinter) Jog(_ context.Context, axis string, distance float64) error {
	p.logger.Info("printer disabled; dropping jog", "gcode", strings.Join(jogGCode(axis, distance), "; "))
	return nil
}

func (p nullPrinter) Home(_ context.Context, axes ...string) error {
	p.logger.Info("printer disabled; dropping home", "gcode", homeGCode(axes...))
	return nil
}

func (p nullPrinter) Cancel(context.Context) error {
	p.logger.Info("printer disabled; dropping cancel")
	return nil
}

func (nullPrinter) Close() error { return nil }
