package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"printerpanel/encoder"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("paneld v%s\n", version)
	fmt.Println("3D printer control panel daemon (rotary encoder, buttons, LED strip, sensors)")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  paneld [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads a quadrature rotary encoder and panel buttons from GPIO, drives the")
	fmt.Println("  LED strip brightness, and sends jog/home/cancel commands to the printer.")
	fmt.Println("  The config file is reloaded on change or on SIGHUP.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (defaults are used when empty)")
	fmt.Println()
	fmt.Println("  -gpio-backend string")
	fmt.Println("        GPIO backend: cdev|sysfs (default \"cdev\")")
	fmt.Println()
	fmt.Println("  -gpio-chip string")
	fmt.Printf("        GPIO character device (default %q)\n", defaultGPIOChip)
	fmt.Println()
	fmt.Println("  -printer-backend string")
	fmt.Println("        Printer backend: none|octoprint|moonraker|serial (default \"none\")")
	fmt.Println()
	fmt.Println("  -printer-url string")
	fmt.Println("        OctoPrint base URL or Moonraker websocket URL")
	fmt.Println()
	fmt.Println("  -serial-port string")
	fmt.Println("        Serial device for the serial printer backend (e.g. /dev/ttyUSB0)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -log-format string")
	fmt.Println("        Log format: text, json (default \"text\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with a config file")
	fmt.Println("  paneld -config /etc/printerpanel.yaml")
	fmt.Println()
	fmt.Println("  # Talk to OctoPrint without a config file")
	fmt.Println("  paneld -printer-backend octoprint -printer-url http://octopi.local")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires access to /dev/gpiochipN (add user to the 'gpio' group)")
	fmt.Println("  - Hardware PWM needs the pwm overlay (dtoverlay=pwm,pin=19,func=2)")
	fmt.Println("  - Use panelctl to inject events and inspect state")
	fmt.Println()
}

func main() {
	// Check for version/help early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	// Parse command-line flags
	var (
		configPath     = flag.String("config", "", "Path to YAML config file")
		gpioBackend    = flag.String("gpio-backend", "", "GPIO backend: cdev|sysfs")
		gpioChip       = flag.String("gpio-chip", "", "GPIO character device")
		printerBackend = flag.String("printer-backend", "", "Printer backend: none|octoprint|moonraker|serial")
		printerURL     = flag.String("printer-url", "", "OctoPrint base URL or Moonraker websocket URL")
		serialPort     = flag.String("serial-port", "", "Serial device for the serial printer backend")
		ipcSocketPath  = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		logLevelStr    = flag.String("log-level", "", "Log level: error, warn, info, debug")
		logFormat      = flag.String("log-format", "", "Log format: text, json")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Only flags given on the command line override the config file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	pick := func(name string, v *string) *string {
		if set[name] {
			return v
		}
		return nil
	}
	overrides := FlagOverrides{
		GPIOBackend:    pick("gpio-backend", gpioBackend),
		GPIOChip:       pick("gpio-chip", gpioChip),
		PrinterBackend: pick("printer-backend", printerBackend),
		PrinterURL:     pick("printer-url", printerURL),
		SerialPort:     pick("serial-port", serialPort),
		IPCSocketPath:  pick("ipc-socket", ipcSocketPath),
		LogLevel:       pick("log-level", logLevelStr),
		LogFormat:      pick("log-format", logFormat),
	}

	cfg, err := loadConfig(*configPath, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Validate has already checked the level.
	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel, cfg.Logging.Format)

	if err := run(cfg, *configPath, overrides, logger); err != nil {
		logger.Error("paneld exited with error", "error", err)
		os.Exit(1)
	}
}

// loadConfig applies defaults, the optional file, and overrides, then validates.
func loadConfig(path string, overrides FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = LoadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
	}
	overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg Config, configPath string, overrides FlagOverrides, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan Event, cfg.Daemon.EventBuffer)

	led, err := openLED(cfg.LED, cfg.GPIO, logger)
	if err != nil {
		return fmt.Errorf("open led: %w", err)
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Warn("failed to close led", "error", err)
		}
	}()

	printer, err := newPrinterClient(cfg.Printer, logger)
	if err != nil {
		return fmt.Errorf("open printer: %w", err)
	}
	defer func() {
		if err := printer.Close(); err != nil {
			logger.Warn("failed to close printer client", "error", err)
		}
	}()

	inputs := &panelInputs{events: events, logger: logger}
	if err := inputs.start(&cfg); err != nil {
		return err
	}
	defer inputs.stop()

	fx := Effectors{
		LED:            led,
		Printer:        printer,
		PrinterTimeout: time.Duration(cfg.Printer.TimeoutMS) * time.Millisecond,
	}
	state := NewDaemonState(cfg.LED.DefaultBrightness)

	logger.Info("paneld starting",
		"version", version,
		"gpio_backend", cfg.GPIO.Backend,
		"led_backend", cfg.LED.Backend,
		"printer_backend", cfg.Printer.Backend,
		"sensors", len(cfg.Sensors.Devices))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, fx, cfg.ToReducerConfig(), state, cfg.Daemon.UpdateHz, logger)
		return nil
	})
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})
	g.Go(func() error {
		return newSensorPoller(cfg.Sensors, events, logger).run(gctx)
	})

	reload := make(chan struct{}, 1)
	if configPath != "" {
		g.Go(func() error {
			if err := watchConfigFile(gctx, configPath, reload, logger); err != nil {
				// Reload still works through SIGHUP.
				logger.Warn("config file watcher stopped", "error", err)
			}
			return nil
		})
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	current := cfg
loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case <-hup:
			if configPath == "" {
				logger.Warn("SIGHUP ignored: no config file")
				continue
			}
			logger.Info("SIGHUP received, reloading config")
		case <-reload:
			logger.Info("config file changed, reloading")
		}

		next, err := loadConfig(configPath, overrides)
		if err != nil {
			logger.Error("config reload failed, keeping current panel", "error", err)
			continue
		}
		warnRestartRequired(current, next, logger)

		if err := inputs.restart(&next); err != nil {
			logger.Error("failed to rebuild control panel", "error", err)
			continue
		}
		select {
		case events <- ConfigReloaded{Reducer: next.ToReducerConfig(), Brightness: next.LED.DefaultBrightness}:
		case <-gctx.Done():
		}
		current = next
		logger.Info("config reloaded")
	}

	logger.Info("shutting down")
	inputs.stop()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// panelInputs owns the current edge source and the panel built on it.
// Only the main goroutine touches it.
type panelInputs struct {
	events chan<- Event
	logger *slog.Logger

	src   edgeSource
	panel *encoder.Panel
}

func (in *panelInputs) start(cfg *Config) error {
	src, err := openEdgeSource(cfg.GPIO, in.logger)
	if err != nil {
		return fmt.Errorf("open gpio: %w", err)
	}
	panel, err := buildPanel(cfg, src, in.events, in.logger)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("build control panel: %w", err)
	}
	in.src, in.panel = src, panel
	in.logger.Info("control panel ready", "backend", cfg.GPIO.Backend, "pins", len(panel.Pins()))
	return nil
}

// restart discards the running panel and source, then builds new ones.
// Both are released first because the new source requests the same lines.
func (in *panelInputs) restart(cfg *Config) error {
	in.stop()
	return in.start(cfg)
}

func (in *panelInputs) stop() {
	if in.panel != nil {
		if err := in.panel.Cancel(); err != nil {
			in.logger.Warn("failed to cancel control panel", "error", err)
		}
		in.panel = nil
	}
	if in.src != nil {
		if err := in.src.Close(); err != nil {
			in.logger.Warn("failed to close gpio source", "error", err)
		}
		in.src = nil
	}
}

// warnRestartRequired logs sections that a reload does not apply.
// The LED step size is reducer policy and is applied live.
func warnRestartRequired(old, next Config, logger *slog.Logger) {
	ledHW := func(c LEDConfig) LEDConfig {
		c.StepPercent = 0
		c.DefaultBrightness = 0
		return c
	}
	sections := []struct {
		name string
		a, b any
	}{
		{"led", ledHW(old.LED), ledHW(next.LED)},
		{"printer", old.Printer, next.Printer},
		{"sensors", old.Sensors, next.Sensors},
		{"daemon", old.Daemon, next.Daemon},
		{"ipc", old.IPC, next.IPC},
		{"logging", old.Logging, next.Logging},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.a, s.b) {
			logger.Warn("config section changed, restart required to apply", "section", s.name)
		}
	}
}
