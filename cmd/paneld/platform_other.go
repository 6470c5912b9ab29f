//go:build !linux

package main

import "log/slog"

func openCdevSource(GPIOConfig, *slog.Logger) (edgeSource, error) {
	return nil, ErrNotSupported
}

func openSysfsSource(GPIOConfig, *slog.Logger) (edgeSource, error) {
	return nil, ErrNotSupported
}

func openSysfsPWM(string, int, int, int) (LEDDriver, error) {
	return nil, ErrNotSupported
}

func openSoftPWM(string, int, int) (LEDDriver, error) {
	return nil, ErrNotSupported
}
