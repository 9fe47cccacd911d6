// SPDX-License-Identifier: MIT
package graph

import "math"

// CompressorSettings describes a feed-forward peak compressor. With a high
// ratio and zero knee it acts as the limiters on the break and final paths.
type CompressorSettings struct {
	ThresholdDB float64
	KneeDB      float64
	Ratio       float64
	Attack      float64 // seconds
	Release     float64 // seconds
}

// Limiter settings for the break path and the final output.
var (
	BreakLimiter = CompressorSettings{ThresholdDB: -8, KneeDB: 0, Ratio: 12, Attack: 0.002, Release: 0.12}
	FinalLimiter = CompressorSettings{ThresholdDB: -10, KneeDB: 0, Ratio: 20, Attack: 0.003, Release: 0.25}
)

type compressorUnit struct {
	s           CompressorSettings
	attackCoef  float64
	releaseCoef float64
	slope       float64
	env         float64 // current gain reduction in dB, >= 0
}

func newCompressorUnit(s CompressorSettings, rate float64) *compressorUnit {
	if s.Ratio < 1 {
		s.Ratio = 1
	}
	return &compressorUnit{
		s:           s,
		attackCoef:  math.Exp(-1 / (math.Max(s.Attack, 1e-5) * rate)),
		releaseCoef: math.Exp(-1 / (math.Max(s.Release, 1e-5) * rate)),
		slope:       1 - 1/s.Ratio,
	}
}

// reduction returns the static gain reduction in dB for an input level in dB.
func (c *compressorUnit) reduction(levelDB float64) float64 {
	over := levelDB - c.s.ThresholdDB
	knee := c.s.KneeDB
	switch {
	case knee > 0 && math.Abs(over) <= knee/2:
		x := over + knee/2
		return c.slope * x * x / (2 * knee)
	case over > 0:
		return c.slope * over
	default:
		return 0
	}
}

func (c *compressorUnit) process(buf []float64, _, _ float64) {
	env := c.env
	for i, x := range buf {
		a := math.Abs(x)
		target := 0.0
		if a > 1e-6 {
			target = c.reduction(20 * math.Log10(a))
		}
		if target > env {
			env = c.attackCoef*env + (1-c.attackCoef)*target
		} else {
			env = c.releaseCoef*env + (1-c.releaseCoef)*target
		}
		if env > 1e-6 {
			buf[i] = x * math.Pow(10, -env/20)
		}
	}
	c.env = env
}
