package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// The kernel dht11 IIO driver (which also handles DHT22/AM2302) reports
// milli-degrees Celsius and milli-percent relative humidity. Single-wire
// reads fail routinely, so each poll retries a few times.
const (
	iioTempFile     = "in_temp_input"
	iioHumidityFile = "in_humidityrelative_input"

	sensorReadAttempts = 3
	sensorRetryDelay   = 2 * time.Second
)

// sensorPoller periodically reads IIO humidity/temperature devices and
// posts SensorObserved events.
type sensorPoller struct {
	devices    []SensorDevice
	interval   time.Duration
	retryDelay time.Duration
	events     chan<- Event
	logger     *slog.Logger
}

func newSensorPoller(cfg SensorsConfig, events chan<- Event, logger *slog.Logger) *sensorPoller {
	return &sensorPoller{
		devices:    cfg.Devices,
		interval:   time.Duration(cfg.IntervalSec) * time.Second,
		retryDelay: sensorRetryDelay,
		events:     events,
		logger:     logger,
	}
}

// run polls immediately, then every interval, until ctx is canceled.
func (p *sensorPoller) run(ctx context.Context) error {
	if len(p.devices) == 0 {
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.pollAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *sensorPoller) pollAll(ctx context.Context) {
	for _, d := range p.devices {
		ev := p.poll(ctx, d)
		if ctx.Err() != nil {
			return
		}
		if ev.Err != nil {
			p.logger.Warn("sensor read failed", "sensor", d.Name, "device", d.Device, "error", ev.Err)
		} else {
			p.logger.Debug("sensor read", "sensor", d.Name, "temp_c", ev.TempC, "humidity", ev.Humidity)
		}
		select {
		case p.events <- ev:
		default:
			p.logger.Warn("event queue full, dropping sensor reading", "sensor", d.Name)
		}
	}
}

func (p *sensorPoller) poll(ctx context.Context, d SensorDevice) SensorObserved {
	var err error
	for attempt := 0; attempt < sensorReadAttempts; attempt++ {
		var temp, hum float64
		temp, hum, err = readIIOSensor(d.Device)
		if err == nil {
			return SensorObserved{Name: d.Name, TempC: temp, Humidity: hum, At: time.Now()}
		}
		if attempt == sensorReadAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return SensorObserved{Name: d.Name, Err: ctx.Err(), At: time.Now()}
		case <-time.After(p.retryDelay):
		}
	}
	return SensorObserved{Name: d.Name, Err: err, At: time.Now()}
}

// readIIOSensor reads one temperature/humidity pair from an IIO device directory.
func readIIOSensor(dir string) (tempC, humidity float64, err error) {
	t, err := readIIOValue(filepath.Join(dir, iioTempFile))
	if err != nil {
		return 0, 0, err
	}
	h, err := readIIOValue(filepath.Join(dir, iioHumidityFile))
	if err != nil {
		return 0, 0, err
	}
	return float64(t) / 1000, float64(h) / 1000, nil
}

var errEmptyReading = errors.New("empty reading")

func readIIOValue(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(path), errEmptyReading)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}
