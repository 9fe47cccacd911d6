// SPDX-License-Identifier: MIT
package analysis

import "math"

// Kick detection constants.
const (
	floorRate       = 0.12
	kickGain        = 6.0
	kickDecay       = 0.86
	maxPendingKicks = 32
)

// KickDetector derives a transient pulse from the bass band: the distance
// of bass above a slowly tracking floor, scaled and clamped to [0,1].
type KickDetector struct {
	floor float64
}

// Process advances the floor tracker by one tick and returns the audio
// kick pulse.
func (k *KickDetector) Process(bass float64) float64 {
	if math.IsNaN(bass) || math.IsInf(bass, 0) {
		bass = 0
	}
	k.floor += (bass - k.floor) * floorRate
	return clamp01((bass - k.floor) * kickGain)
}

// Floor returns the tracked bass floor.
func (k *KickDetector) Floor() float64 { return k.floor }

// SyntheticKick is the engine-driven pulse: it jumps to 1 when the audio
// clock reaches a triggered kick and decays by kickDecay every tick after.
// Kick times arrive ahead of playback from the sequencer, so they are held
// until due.
type SyntheticKick struct {
	env     float64
	pending []float64
}

// NewSyntheticKick returns an idle pulse.
func NewSyntheticKick() *SyntheticKick {
	return &SyntheticKick{pending: make([]float64, 0, maxPendingKicks)}
}

// Trigger registers a kick sounding at t.
func (s *SyntheticKick) Trigger(t float64) {
	if math.IsNaN(t) {
		return
	}
	if len(s.pending) == cap(s.pending) {
		// Oldest first; a full queue means ticks stopped, drop the oldest.
		copy(s.pending, s.pending[1:])
		s.pending = s.pending[:len(s.pending)-1]
	}
	s.pending = append(s.pending, t)
}

// Process advances one tick at audio time now and returns the pulse.
func (s *SyntheticKick) Process(now float64) float64 {
	due := false
	n := 0
	for _, t := range s.pending {
		if t <= now {
			due = true
			continue
		}
		s.pending[n] = t
		n++
	}
	s.pending = s.pending[:n]
	if due {
		s.env = 1
	} else {
		s.env *= kickDecay
	}
	return clamp01(s.env)
}

// Value returns the last computed pulse.
func (s *SyntheticKick) Value() float64 { return clamp01(s.env) }

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
