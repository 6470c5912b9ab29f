package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LEDDriver drives the LED strip MOSFET.
type LEDDriver interface {
	SetDuty(percent int) error
	Duty() (int, error)
	Close() error
}

func checkDuty(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%d: invalid duty cycle percentage", percent)
	}
	return nil
}

// openLED builds the configured LED backend.
func openLED(cfg LEDConfig, gpio GPIOConfig, logger *slog.Logger) (LEDDriver, error) {
	if !cfg.Enabled {
		return &nullLED{}, nil
	}
	switch cfg.Backend {
	case "sysfs":
		root := gpio.SysfsRoot
		if root == "" {
			root = "/sys/class"
		}
		return openSysfsPWM(root, cfg.PWMChip, cfg.PWMChannel, cfg.FrequencyHz)
	case "soft":
		logger.Info("using software PWM for LED strip", "pin", cfg.Pin, "frequency_hz", cfg.FrequencyHz)
		return openSoftPWM(gpio.Chip, cfg.Pin, cfg.FrequencyHz)
	default:
		return nil, fmt.Errorf("unknown led backend %q", cfg.Backend)
	}
}

// nullLED remembers the duty without driving anything.
type nullLED struct {
	mu   sync.Mutex
	duty int
}

func (l *nullLED) SetDuty(percent int) error {
	if err := checkDuty(percent); err != nil {
		return err
	}
	l.mu.Lock()
	l.duty = percent
	l.mu.Unlock()
	return nil
}

func (l *nullLED) Duty() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.duty, nil
}

func (*nullLED) Close() error { return nil }

// ============================================================================
// Software PWM
// ============================================================================

// pinSetter is an output line; *gpiocdev.Line satisfies it.
type pinSetter interface {
	SetValue(int) error
	Close() error
}

// softPWM bit-bangs PWM on an output line from a goroutine. Duty changes
// take effect at the end of the current period. Duty 0 and 100 hold the
// line steady without waking up.
type softPWM struct {
	pin    pinSetter
	period time.Duration
	c      chan int
	done   chan struct{}

	mu     sync.Mutex
	duty   int
	closed bool
	err    error // first failed line write
}

func newSoftPWM(pin pinSetter, freqHz int) *softPWM {
	p := &softPWM{
		pin:    pin,
		period: time.Second / time.Duration(freqHz),
		c:      make(chan int, 1),
		done:   make(chan struct{}),
	}
	go p.handler()
	return p
}

func (p *softPWM) SetDuty(percent int) error {
	if err := checkDuty(percent); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("soft pwm closed")
	}
	if p.err != nil {
		return p.err
	}
	// Latest value wins.
	select {
	case <-p.c:
	default:
	}
	p.c <- percent
	p.duty = percent
	return nil
}

func (p *softPWM) Duty() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty, p.err
}

// Close stops the PWM goroutine, drives the line low and releases it.
func (p *softPWM) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.c)
	p.mu.Unlock()

	<-p.done
	return p.pin.Close()
}

func (p *softPWM) split(duty int) (on, off time.Duration) {
	on = p.period * time.Duration(duty) / 100
	return on, p.period - on
}

// handler runs the PWM until the message channel is closed.
func (p *softPWM) handler() {
	defer close(p.done)

	var on, off time.Duration
	current := -1
	set := func(v int) {
		if current == v {
			return
		}
		if err := p.pin.SetValue(v); err != nil {
			p.mu.Lock()
			if p.err == nil {
				p.err = fmt.Errorf("soft pwm set line %d: %w", v, err)
			}
			p.mu.Unlock()
			return
		}
		current = v
	}
	set(0)

	for {
		if on == 0 || off == 0 {
			if on == 0 {
				set(0)
			} else {
				set(1)
			}
			d, ok := <-p.c
			if !ok {
				set(0)
				return
			}
			on, off = p.split(d)
			continue
		}

		set(1)
		time.Sleep(on)
		set(0)
		time.Sleep(off)

		// Check for new parameters after each cycle.
		select {
		case d, ok := <-p.c:
			if !ok {
				set(0)
				return
			}
			on, off = p.split(d)
		default:
		}
	}
}
