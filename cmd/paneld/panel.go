package main

import (
	"fmt"
	"log/slog"

	"printerpanel/encoder"
)

// buildPanel wires every enabled input from cfg onto a fresh encoder.Panel.
//
// Callbacks run on GPIO watcher goroutines, so they only translate the
// press or detent into an Event and post it without blocking. On any error
// the partially built panel is canceled before returning.
func buildPanel(cfg *Config, src encoder.Source, events chan<- Event, logger *slog.Logger) (*encoder.Panel, error) {
	post := func(ev Event) {
		select {
		case events <- ev:
		default:
			logger.Warn("event queue full, dropping panel input", "event", fmt.Sprintf("%T", ev))
		}
	}

	debounce := uint64(cfg.GPIO.DebounceUS)
	p := encoder.NewPanel(src)

	fail := func(err error) (*encoder.Panel, error) {
		if cerr := p.Cancel(); cerr != nil {
			logger.Warn("failed to release partial panel", "error", cerr)
		}
		return nil, err
	}

	if cfg.Encoder.Enabled {
		enc, err := encoder.NewEncoder(src, cfg.EncoderPins(), debounce,
			func(dir int8) { post(EncoderTurned{Direction: int(dir)}) },
			func() { post(EncoderPressed{}) },
		)
		if err != nil {
			return fail(fmt.Errorf("encoder: %w", err))
		}
		if err := enc.Attach(p); err != nil {
			return fail(fmt.Errorf("encoder: %w", err))
		}
		logger.Debug("encoder attached",
			"pin_a", cfg.Encoder.PinA,
			"pin_b", cfg.Encoder.PinB,
			"pin_switch", cfg.Encoder.PinSwitch,
			"paired_sampling", p.CanSamplePairs())
	}

	for _, b := range cfg.buttonPins() {
		action := b.action
		pin := encoder.Pin(b.pin)
		btn := encoder.NewButton(pin, debounce, func() { post(ButtonPressed{Action: action}) })
		if err := p.Watch(pin, encoder.RisingEdge, btn); err != nil {
			return fail(fmt.Errorf("%s: %w", b.name, err))
		}
		logger.Debug("button attached", "pin", b.pin, "action", string(action))
	}

	return p, nil
}
