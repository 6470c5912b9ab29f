//go:build linux

package main

import "log/slog"

func openCdevSource(cfg GPIOConfig, logger *slog.Logger) (edgeSource, error) {
	return newCdevSource(cfg, logger)
}

func openSysfsSource(cfg GPIOConfig, logger *slog.Logger) (edgeSource, error) {
	return newSysfsSource(cfg, logger)
}
