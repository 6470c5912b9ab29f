package main

// GPIO defaults (BCM numbering, matching the panel wiring harness)
const (
	defaultGPIOChip       = "gpiochip0"
	defaultGlitchFilterUS = 2000  // upstream glitch filter (µs)
	defaultDebounceUS     = 50000 // button press debounce window (µs)

	defaultEncoderPinA      = 26
	defaultEncoderPinB      = 13
	defaultEncoderPinSwitch = 6

	defaultHomeXPin = 22
	defaultHomeYPin = 27
	defaultHomeZPin = 17

	defaultXPlusPin  = 20
	defaultXMinusPin = 24
	defaultYPlusPin  = 21
	defaultYMinusPin = 23
	defaultZPlusPin  = 16
	defaultZMinusPin = 18

	defaultStopPin = 5
)

// LED strip defaults
const (
	defaultMosfetPin         = 19
	defaultPWMChip           = 0
	defaultPWMChannel        = 1 // GPIO19 is PWM1 on the BCM2835 family
	defaultPWMFrequencyHz    = 800
	defaultBrightness        = 50
	defaultBrightnessStepPct = 5
)

// Motion defaults (mm)
const (
	defaultMoveXY = 10.0
	defaultMoveZ  = 1.0
)

// Rotary velocity defaults
const (
	defaultRotaryVelocityWindowMS   = 200 // Time window for velocity detection (ms)
	defaultRotaryVelocityThreshold  = 3   // Detents in window to trigger velocity mode
	defaultRotaryVelocityMultiplier = 2   // Step multiplier for "fast spinning"
)

// Daemon/runtime defaults
const (
	defaultUpdateHz          = 20
	defaultEventBuffer       = 64
	defaultPrinterTimeoutMS  = 2000
	defaultSerialBaudRate    = 115200
	defaultSensorIntervalSec = 30
	defaultIPCSocketPath     = "/tmp/printerpanel.sock"
)
