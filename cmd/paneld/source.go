package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"printerpanel/encoder"
)

// ErrNotSupported is returned by hardware backends on platforms without
// Linux GPIO/PWM interfaces.
var ErrNotSupported = errors.New("not supported on this platform")

// edgeSource is an encoder.Source the daemon owns and must close.
type edgeSource interface {
	encoder.Source
	io.Closer
}

// openEdgeSource opens the configured GPIO backend.
func openEdgeSource(cfg GPIOConfig, logger *slog.Logger) (edgeSource, error) {
	switch cfg.Backend {
	case "cdev", "":
		return openCdevSource(cfg, logger)
	case "sysfs":
		return openSysfsSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", cfg.Backend)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
