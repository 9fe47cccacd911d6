// SPDX-License-Identifier: MIT
package gesture

import (
	"math"

	"handbeat/internal/config"
)

// PinchTracker smooths raw pinch strength and applies on/off hysteresis,
// producing the start/hold/end events break mode consumes.
type PinchTracker struct {
	on, off   float64
	smoothing float64
	smoothed  float64
	pinching  bool
}

// NewPinchTracker builds a tracker from the resolved gesture config.
func NewPinchTracker(cfg config.GestureConfig) *PinchTracker {
	return &PinchTracker{on: cfg.PinchOn, off: cfg.PinchOff, smoothing: cfg.PinchSmoothing}
}

// Update feeds one sample. present is false when no hand is tracked, which
// ends a gesture in progress. ok is false when no event is due.
func (p *PinchTracker) Update(raw float64, present bool, pos *Vec3) (ev Event, ok bool) {
	if !present {
		p.smoothed = 0
		if p.pinching {
			p.pinching = false
			return Event{Phase: End}, true
		}
		return Event{}, false
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		raw = 0
	}
	raw = clamp(raw, 0, 1)
	p.smoothed += (raw - p.smoothed) * p.smoothing

	switch {
	case !p.pinching && p.smoothed >= p.on:
		p.pinching = true
		return Event{Phase: Start, Strength: p.smoothed, Position: pos}, true
	case p.pinching && p.smoothed <= p.off:
		p.pinching = false
		return Event{Phase: End}, true
	case p.pinching:
		return Event{Phase: Hold, Strength: p.smoothed, Position: pos}, true
	}
	return Event{}, false
}

// Pinching reports whether a gesture is in progress.
func (p *PinchTracker) Pinching() bool { return p.pinching }

// Strength returns the smoothed strength.
func (p *PinchTracker) Strength() float64 { return p.smoothed }
