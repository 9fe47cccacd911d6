// SPDX-License-Identifier: MIT
package audio

import "math"

const signMask = 1 << 31

// Gate is a peak detector over float32 blocks. A disabled gate is always
// open.
type Gate struct {
	enabled   bool
	threshold float32
}

// NewGate returns an enabled gate with the given threshold. A threshold of
// zero disables it.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	g.enabled = threshold > 0
	return g
}

func (g *Gate) Enable() {
	g.enabled = true
}

func (g *Gate) Disable() {
	g.enabled = false
}

// Enabled reports whether the gate is checking levels.
func (g *Gate) Enabled() bool { return g.enabled }

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 || math.IsNaN(threshold) {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold = float32(threshold)
}

// Threshold returns the current gate threshold.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold)
}

// Open reports whether buf peaks above the threshold.
// Performance Critical (Hot Path):
// - No allocations
// - Absolute value by clearing the sign bit, no branch per sample
func (g *Gate) Open(buf []float32) bool {
	if !g.enabled {
		return true
	}
	return Peak(buf) > g.threshold
}

// Peak returns the largest absolute sample in buf.
func Peak(buf []float32) float32 {
	var peak float32
	for _, s := range buf {
		a := math.Float32frombits(math.Float32bits(s) &^ signMask)
		peak = max(peak, a)
	}
	return peak
}
