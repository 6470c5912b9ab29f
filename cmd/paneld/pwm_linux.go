//go:build linux

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// sysfsPWM drives a hardware PWM channel through /sys/class/pwm.
type sysfsPWM struct {
	mu      sync.Mutex
	chipDir string
	dir     string
	channel int
	period  int64 // ns
	duty    int64 // ns
	dFile   *os.File
}

// openSysfsPWM exports and enables channel on pwmchipN at freqHz with
// duty 0.
func openSysfsPWM(root string, chip, channel, freqHz int) (LEDDriver, error) {
	if freqHz <= 0 {
		return nil, fmt.Errorf("invalid PWM frequency %d", freqHz)
	}
	p := &sysfsPWM{
		chipDir: filepath.Join(root, "pwm", fmt.Sprintf("pwmchip%d", chip)),
		channel: channel,
		period:  int64(time.Second) / int64(freqHz),
	}
	p.dir = filepath.Join(p.chipDir, fmt.Sprintf("pwm%d", channel))

	if err := sysfsExport(filepath.Join(p.dir, "period"), filepath.Join(p.chipDir, "export"), channel); err != nil {
		return nil, err
	}
	dName := filepath.Join(p.dir, "duty_cycle")
	if err := sysfsVerify(dName); err != nil {
		p.unexport()
		return nil, err
	}
	dFile, err := os.OpenFile(dName, os.O_RDWR, 0600)
	if err != nil {
		p.unexport()
		return nil, err
	}
	p.dFile = dFile

	// Duty cycle must never exceed the period, so zero it before setting the period.
	if err := p.writeDuty(0); err != nil {
		p.release()
		return nil, fmt.Errorf("pwm duty: %w", err)
	}
	if err := sysfsWrite(filepath.Join(p.dir, "period"), strconv.FormatInt(p.period, 10)+"\n"); err != nil {
		p.release()
		return nil, fmt.Errorf("pwm period: %w", err)
	}
	if err := sysfsWrite(filepath.Join(p.dir, "enable"), "1\n"); err != nil {
		p.release()
		return nil, fmt.Errorf("pwm enable: %w", err)
	}
	return p, nil
}

func (p *sysfsPWM) writeDuty(ns int64) error {
	if _, err := p.dFile.WriteAt([]byte(strconv.FormatInt(ns, 10)+"\n"), 0); err != nil {
		return err
	}
	p.duty = ns
	return nil
}

// SetDuty sets the duty cycle as a percentage of the period.
func (p *sysfsPWM) SetDuty(percent int) error {
	if err := checkDuty(percent); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dFile == nil {
		return fmt.Errorf("pwm%d closed", p.channel)
	}
	ns := p.period * int64(percent) / 100
	if ns == p.duty {
		return nil
	}
	return p.writeDuty(ns)
}

// Duty reads the duty cycle back from the kernel.
func (p *sysfsPWM) Duty() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dFile == nil {
		return 0, fmt.Errorf("pwm%d closed", p.channel)
	}
	buf := make([]byte, 32)
	n, err := p.dFile.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0, fmt.Errorf("read duty: %w", err)
	}
	ns, err := parseSysfsInt(buf[:n])
	if err != nil {
		return 0, fmt.Errorf("read duty: %w", err)
	}
	return int((ns*100 + p.period/2) / p.period), nil
}

// Close disables the channel and unexports it.
func (p *sysfsPWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dFile == nil {
		return nil
	}
	err := sysfsWrite(filepath.Join(p.dir, "enable"), "0\n")
	p.release()
	return err
}

func (p *sysfsPWM) release() {
	if p.dFile != nil {
		p.dFile.Close()
		p.dFile = nil
	}
	p.unexport()
}

func (p *sysfsPWM) unexport() {
	_ = sysfsUnexport(filepath.Join(p.chipDir, "unexport"), p.channel)
}

// parseSysfsInt parses the first line of an attribute file.
func parseSysfsInt(b []byte) (int64, error) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return strconv.ParseInt(string(bytes.TrimSpace(b)), 10, 64)
}

// openSoftPWM requests pin as an output and runs software PWM on it.
func openSoftPWM(chip string, pin, freqHz int) (LEDDriver, error) {
	if freqHz <= 0 {
		return nil, fmt.Errorf("invalid PWM frequency %d", freqHz)
	}
	l, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(gpioConsumer))
	if err != nil {
		return nil, fmt.Errorf("request output line %d: %w", pin, err)
	}
	return newSoftPWM(l, freqHz), nil
}
