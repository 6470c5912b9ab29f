package main

import "time"

// RotaryPolicy configures "fast spinning" detection for the encoder.
// When Threshold detents in the same direction land within Window, each
// detent counts Multiplier times.
type RotaryPolicy struct {
	Window     time.Duration
	Threshold  int
	Multiplier int
}

// addStep records a new encoder detent at now and returns the updated state
// plus the count of recent detents in the same direction within the window.
//
// The returned slice reuses the input's backing array, so callers must treat
// the old state as consumed.
func addStep(st RotaryReducerState, direction int, now time.Time, window time.Duration) (RotaryReducerState, int) {
	cutoff := now.Add(-window)

	// Remove old steps outside the velocity window
	filtered := st.RecentSteps[:0]
	for _, s := range st.RecentSteps {
		if s.At.After(cutoff) {
			filtered = append(filtered, s)
		}
	}

	filtered = append(filtered, RotaryReducerStep{At: now, Direction: direction})
	st.RecentSteps = filtered

	sameDir := 0
	for _, s := range filtered {
		if s.Direction == direction {
			sameDir++
		}
	}
	return st, sameDir
}

// stepMultiplier applies the policy to a same-direction count.
func (p RotaryPolicy) stepMultiplier(sameDir int) int {
	if p.Threshold > 0 && p.Multiplier > 1 && sameDir >= p.Threshold {
		return p.Multiplier
	}
	return 1
}
