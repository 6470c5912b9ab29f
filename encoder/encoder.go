package encoder

import "fmt"

// EncoderPins names the three lines of a rotary encoder with push switch.
type EncoderPins struct {
	A      Pin
	B      Pin
	Switch Pin
}

// Encoder pairs a quadrature Decoder with the debounced shaft switch.
// The two are electrically independent and share no state.
type Encoder struct {
	*Decoder
	Switch *Button
}

// NewEncoder builds the decoder for pins.A/pins.B and a Button on
// pins.Switch whose action is pressed.
func NewEncoder(r LevelReader, pins EncoderPins, threshold uint64, step StepFunc, pressed func()) (*Encoder, error) {
	if pins.Switch == pins.A || pins.Switch == pins.B {
		return nil, fmt.Errorf("encoder switch pin %d overlaps a quadrature line", pins.Switch)
	}
	d, err := NewDecoder(r, pins.A, pins.B, step)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		Decoder: d,
		Switch:  NewButton(pins.Switch, threshold, pressed),
	}, nil
}

// Attach registers the encoder lines on p. Sources that can sample both
// quadrature lines together get a single paired watch.
func (e *Encoder) Attach(p *Panel) error {
	a, b := e.Pins()
	if p.CanSamplePairs() {
		if err := p.WatchPair(a, b, e.Decoder); err != nil {
			return err
		}
		return p.Watch(e.Switch.Pin(), RisingEdge, e.Switch)
	}
	if err := p.Watch(a, BothEdges, e.Decoder); err != nil {
		return err
	}
	if err := p.Watch(b, BothEdges, e.Decoder); err != nil {
		return err
	}
	return p.Watch(e.Switch.Pin(), RisingEdge, e.Switch)
}
