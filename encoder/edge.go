// Package encoder turns raw GPIO edge events into clean control-panel input:
// signed rotary detent steps, debounced encoder switch presses and debounced
// push-button actions.
//
// Nothing in this package blocks, sleeps or performs I/O. Callbacks run
// synchronously on whatever goroutine delivered the edge, so they should
// hand work off quickly (for example with a non-blocking channel send).
package encoder

import (
	"fmt"
	"io"
)

// Pin identifies a GPIO line (BCM numbering / line offset on the chip).
type Pin int

// Level is the digital level a line settled at after an edge.
type Level uint8

const (
	Falling Level = 0 // line went low
	Rising  Level = 1 // line went high
)

func (l Level) String() string {
	switch l {
	case Falling:
		return "falling"
	case Rising:
		return "rising"
	default:
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
}

// EdgeMode selects which transitions a watch delivers.
type EdgeMode uint8

const (
	RisingEdge EdgeMode = iota + 1
	FallingEdge
	BothEdges
)

// EdgeFunc receives one edge event. tick is a monotonic timestamp in the
// source's time unit (microseconds for every source in this repository).
type EdgeFunc func(pin Pin, level Level, tick uint64)

// Handler consumes edges routed to it by a Panel.
type Handler interface {
	OnEdge(pin Pin, level Level, tick uint64)
}

// LevelReader reads the current level of a line.
type LevelReader interface {
	Level(pin Pin) (Level, error)
}

// Watcher registers an edge callback for a line. Closing the returned handle
// stops delivery for that line.
type Watcher interface {
	Watch(pin Pin, mode EdgeMode, fn EdgeFunc) (io.Closer, error)
}

// Source is the hardware side of the control panel.
type Source interface {
	LevelReader
	Watcher
}
