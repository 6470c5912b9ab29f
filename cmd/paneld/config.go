package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"printerpanel/encoder"
)

// Config is the top-level YAML configuration for the panel daemon.
//
// Defaults and validation are centralized here so the rest of the code can
// assume a well-formed config. The file is read, never written.
type Config struct {
	GPIO     GPIOConfig    `yaml:"gpio"`
	Encoder  EncoderConfig `yaml:"encoder"`
	Buttons  ButtonsConfig `yaml:"buttons"`
	Moves    MovesConfig   `yaml:"moves"`
	LED      LEDConfig     `yaml:"led"`
	Rotary   RotaryConfig  `yaml:"rotary"`
	Printer  PrinterConfig `yaml:"printer"`
	Sensors  SensorsConfig `yaml:"sensors"`
	Daemon   DaemonConfig  `yaml:"daemon"`
	IPC      IPCConfig     `yaml:"ipc"`
	Logging  LoggingConfig `yaml:"logging"`
}

type GPIOConfig struct {
	Backend        string `yaml:"backend"` // "cdev" or "sysfs"
	Chip           string `yaml:"chip"`
	SysfsRoot      string `yaml:"sysfs_root,omitempty"`
	GlitchFilterUS int    `yaml:"glitch_filter_us"`
	DebounceUS     int    `yaml:"debounce_us"`
}

type EncoderConfig struct {
	Enabled   bool `yaml:"enabled"`
	PinA      int  `yaml:"pin_a"`
	PinB      int  `yaml:"pin_b"`
	PinSwitch int  `yaml:"pin_switch"`
}

type ButtonsConfig struct {
	Home HomeButtons `yaml:"home"`
	XY   XYButtons   `yaml:"xy"`
	Z    ZButtons    `yaml:"z"`
	Stop StopButton  `yaml:"stop"`
}

type HomeButtons struct {
	Enabled bool `yaml:"enabled"`
	X       int  `yaml:"x"`
	Y       int  `yaml:"y"`
	Z       int  `yaml:"z"`
}

type XYButtons struct {
	Enabled bool `yaml:"enabled"`
	XPlus   int  `yaml:"x_plus"`
	XMinus  int  `yaml:"x_minus"`
	YPlus   int  `yaml:"y_plus"`
	YMinus  int  `yaml:"y_minus"`
}

type ZButtons struct {
	Enabled bool `yaml:"enabled"`
	ZPlus   int  `yaml:"z_plus"`
	ZMinus  int  `yaml:"z_minus"`
}

type StopButton struct {
	Enabled bool `yaml:"enabled"`
	Pin     int  `yaml:"pin"`
}

type MovesConfig struct {
	XYmm float64 `yaml:"xy_mm"`
	Zmm  float64 `yaml:"z_mm"`
}

type LEDConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Backend           string `yaml:"backend"` // "sysfs" or "soft"
	Pin               int    `yaml:"pin"`
	PWMChip           int    `yaml:"pwm_chip"`
	PWMChannel        int    `yaml:"pwm_channel"`
	FrequencyHz       int    `yaml:"frequency_hz"`
	DefaultBrightness int    `yaml:"default_brightness"`
	StepPercent       int    `yaml:"step_percent"`
}

type RotaryConfig struct {
	VelocityWindowMS   int `yaml:"velocity_window_ms"`
	VelocityThreshold  int `yaml:"velocity_threshold"`
	VelocityMultiplier int `yaml:"velocity_multiplier"`
}

type PrinterConfig struct {
	Backend    string `yaml:"backend"` // "octoprint", "moonraker", "serial" or "none"
	URL        string `yaml:"url,omitempty"`
	APIKeyFile string `yaml:"api_key_file,omitempty"`
	SerialPort string `yaml:"serial_port,omitempty"`
	BaudRate   int    `yaml:"baud_rate"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type SensorsConfig struct {
	IntervalSec int            `yaml:"interval_sec"`
	Devices     []SensorDevice `yaml:"devices,omitempty"`
}

// SensorDevice is one IIO humidity/temperature device (e.g. the kernel dht11 driver).
type SensorDevice struct {
	Name   string `yaml:"name"`
	Device string `yaml:"device"` // e.g. /sys/bus/iio/devices/iio:device0
}

type DaemonConfig struct {
	UpdateHz    int `yaml:"update_hz"`
	EventBuffer int `yaml:"event_buffer"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		GPIO: GPIOConfig{
			Backend:        "cdev",
			Chip:           defaultGPIOChip,
			GlitchFilterUS: defaultGlitchFilterUS,
			DebounceUS:     defaultDebounceUS,
		},
		Encoder: EncoderConfig{
			Enabled:   true,
			PinA:      defaultEncoderPinA,
			PinB:      defaultEncoderPinB,
			PinSwitch: defaultEncoderPinSwitch,
		},
		Buttons: ButtonsConfig{
			Home: HomeButtons{Enabled: true, X: defaultHomeXPin, Y: defaultHomeYPin, Z: defaultHomeZPin},
			XY: XYButtons{
				Enabled: true,
				XPlus:   defaultXPlusPin,
				XMinus:  defaultXMinusPin,
				YPlus:   defaultYPlusPin,
				YMinus:  defaultYMinusPin,
			},
			Z:    ZButtons{Enabled: true, ZPlus: defaultZPlusPin, ZMinus: defaultZMinusPin},
			Stop: StopButton{Enabled: true, Pin: defaultStopPin},
		},
		Moves: MovesConfig{
			XYmm: defaultMoveXY,
			Zmm:  defaultMoveZ,
		},
		LED: LEDConfig{
			Enabled:           true,
			Backend:           "sysfs",
			Pin:               defaultMosfetPin,
			PWMChip:           defaultPWMChip,
			PWMChannel:        defaultPWMChannel,
			FrequencyHz:       defaultPWMFrequencyHz,
			DefaultBrightness: defaultBrightness,
			StepPercent:       defaultBrightnessStepPct,
		},
		Rotary: RotaryConfig{
			VelocityWindowMS:   defaultRotaryVelocityWindowMS,
			VelocityThreshold:  defaultRotaryVelocityThreshold,
			VelocityMultiplier: defaultRotaryVelocityMultiplier,
		},
		Printer: PrinterConfig{
			Backend:   "none",
			BaudRate:  defaultSerialBaudRate,
			TimeoutMS: defaultPrinterTimeoutMS,
		},
		Sensors: SensorsConfig{
			IntervalSec: defaultSensorIntervalSec,
		},
		Daemon: DaemonConfig{
			UpdateHz:    defaultUpdateHz,
			EventBuffer: defaultEventBuffer,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: defaults only.
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries command-line overrides. Each override is only
// applied when its pointer is non-nil.
type FlagOverrides struct {
	GPIOBackend *string
	GPIOChip    *string

	PrinterBackend *string
	PrinterURL     *string
	SerialPort     *string

	IPCSocketPath *string
	LogLevel      *string
	LogFormat     *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.GPIOBackend != nil {
		cfg.GPIO.Backend = *o.GPIOBackend
	}
	if o.GPIOChip != nil {
		cfg.GPIO.Chip = *o.GPIOChip
	}
	if o.PrinterBackend != nil {
		cfg.Printer.Backend = *o.PrinterBackend
	}
	if o.PrinterURL != nil {
		cfg.Printer.URL = *o.PrinterURL
	}
	if o.SerialPort != nil {
		cfg.Printer.SerialPort = *o.SerialPort
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// GPIO
	switch c.GPIO.Backend {
	case "cdev":
		if c.GPIO.Chip == "" {
			return errors.New("gpio.chip must not be empty")
		}
	case "sysfs":
	default:
		return fmt.Errorf("gpio.backend must be %q or %q", "cdev", "sysfs")
	}
	if c.GPIO.GlitchFilterUS < 0 {
		return errors.New("gpio.glitch_filter_us must be >= 0")
	}
	if c.GPIO.DebounceUS <= 0 {
		return errors.New("gpio.debounce_us must be > 0")
	}

	// Every enabled input needs its own line.
	seen := make(map[int]string)
	for _, in := range c.inputPins() {
		if in.pin < 0 {
			return fmt.Errorf("%s must be >= 0", in.name)
		}
		if other, dup := seen[in.pin]; dup {
			return fmt.Errorf("%s and %s both use pin %d", other, in.name, in.pin)
		}
		seen[in.pin] = in.name
	}

	// Moves
	if c.Moves.XYmm <= 0 {
		return errors.New("moves.xy_mm must be > 0")
	}
	if c.Moves.Zmm <= 0 {
		return errors.New("moves.z_mm must be > 0")
	}

	// LED
	if c.LED.Enabled {
		switch c.LED.Backend {
		case "sysfs", "soft":
		default:
			return fmt.Errorf("led.backend must be %q or %q", "sysfs", "soft")
		}
		if c.LED.Backend == "soft" {
			if other, dup := seen[c.LED.Pin]; dup {
				return fmt.Errorf("led.pin %d is already used by %s", c.LED.Pin, other)
			}
		}
		if c.LED.FrequencyHz <= 0 {
			return errors.New("led.frequency_hz must be > 0")
		}
	}
	if c.LED.DefaultBrightness < 0 || c.LED.DefaultBrightness > 100 {
		return errors.New("led.default_brightness must be between 0 and 100")
	}
	if c.LED.StepPercent <= 0 || c.LED.StepPercent > 100 {
		return errors.New("led.step_percent must be between 1 and 100")
	}

	// Rotary
	if c.Rotary.VelocityWindowMS < 0 {
		return errors.New("rotary.velocity_window_ms must be >= 0")
	}
	if c.Rotary.VelocityThreshold < 0 {
		return errors.New("rotary.velocity_threshold must be >= 0")
	}
	if c.Rotary.VelocityMultiplier < 1 {
		return errors.New("rotary.velocity_multiplier must be >= 1")
	}

	// Printer
	switch c.Printer.Backend {
	case "none":
	case "octoprint", "moonraker":
		if c.Printer.URL == "" {
			return fmt.Errorf("printer.backend is %q but printer.url is empty", c.Printer.Backend)
		}
	case "serial":
		if c.Printer.SerialPort == "" {
			return errors.New("printer.backend is \"serial\" but printer.serial_port is empty")
		}
		if c.Printer.BaudRate <= 0 {
			return errors.New("printer.baud_rate must be > 0")
		}
	default:
		return fmt.Errorf("printer.backend must be one of none, octoprint, moonraker, serial (got %q)", c.Printer.Backend)
	}
	if c.Printer.TimeoutMS <= 0 {
		return errors.New("printer.timeout_ms must be > 0")
	}

	// Sensors
	if len(c.Sensors.Devices) > 0 && c.Sensors.IntervalSec <= 0 {
		return errors.New("sensors.interval_sec must be > 0")
	}
	names := make(map[string]bool)
	for i, d := range c.Sensors.Devices {
		if d.Name == "" {
			return fmt.Errorf("sensors.devices[%d].name is empty", i)
		}
		if d.Device == "" {
			return fmt.Errorf("sensors.devices[%d].device is empty", i)
		}
		if names[d.Name] {
			return fmt.Errorf("sensors.devices[%d].name %q is duplicated", i, d.Name)
		}
		names[d.Name] = true
	}

	// Daemon
	if c.Daemon.UpdateHz <= 0 || c.Daemon.UpdateHz > 1000 {
		return errors.New("daemon.update_hz must be between 1 and 1000")
	}
	if c.Daemon.EventBuffer <= 0 {
		return errors.New("daemon.event_buffer must be > 0")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return errors.New("logging.format must be \"text\" or \"json\"")
	}

	return nil
}

// namedPin is one enabled input line and the config key it came from.
type namedPin struct {
	name   string
	pin    int
	action PanelAction // empty for the encoder lines
}

// inputPins lists every enabled input line in a stable order.
func (c *Config) inputPins() []namedPin {
	var pins []namedPin
	if c.Encoder.Enabled {
		pins = append(pins,
			namedPin{"encoder.pin_a", c.Encoder.PinA, ""},
			namedPin{"encoder.pin_b", c.Encoder.PinB, ""},
			namedPin{"encoder.pin_switch", c.Encoder.PinSwitch, ""},
		)
	}
	pins = append(pins, c.buttonPins()...)
	return pins
}

// buttonPins lists the enabled push buttons and the action each is bound to.
func (c *Config) buttonPins() []namedPin {
	var pins []namedPin
	b := c.Buttons
	if b.Home.Enabled {
		pins = append(pins,
			namedPin{"buttons.home.x", b.Home.X, ActionHomeX},
			namedPin{"buttons.home.y", b.Home.Y, ActionHomeY},
			namedPin{"buttons.home.z", b.Home.Z, ActionHomeZ},
		)
	}
	if b.XY.Enabled {
		pins = append(pins,
			namedPin{"buttons.xy.x_plus", b.XY.XPlus, ActionJogXPlus},
			namedPin{"buttons.xy.x_minus", b.XY.XMinus, ActionJogXMinus},
			namedPin{"buttons.xy.y_plus", b.XY.YPlus, ActionJogYPlus},
			namedPin{"buttons.xy.y_minus", b.XY.YMinus, ActionJogYMinus},
		)
	}
	if b.Z.Enabled {
		pins = append(pins,
			namedPin{"buttons.z.z_plus", b.Z.ZPlus, ActionJogZPlus},
			namedPin{"buttons.z.z_minus", b.Z.ZMinus, ActionJogZMinus},
		)
	}
	if b.Stop.Enabled {
		pins = append(pins, namedPin{"buttons.stop.pin", b.Stop.Pin, ActionStop})
	}
	return pins
}

// EncoderPins converts the encoder section into core pin identifiers.
func (c *Config) EncoderPins() encoder.EncoderPins {
	return encoder.EncoderPins{
		A:      encoder.Pin(c.Encoder.PinA),
		B:      encoder.Pin(c.Encoder.PinB),
		Switch: encoder.Pin(c.Encoder.PinSwitch),
	}
}

// ToReducerConfig extracts the policy knobs the reducer needs.
func (c *Config) ToReducerConfig() ReducerConfig {
	return ReducerConfig{
		StepPercent: c.LED.StepPercent,
		MoveXY:      c.Moves.XYmm,
		MoveZ:       c.Moves.Zmm,
		Rotary: RotaryPolicy{
			Window:     time.Duration(c.Rotary.VelocityWindowMS) * time.Millisecond,
			Threshold:  c.Rotary.VelocityThreshold,
			Multiplier: c.Rotary.VelocityMultiplier,
		},
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like printer.api_key_file.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
