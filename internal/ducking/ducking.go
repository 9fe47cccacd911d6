// SPDX-License-Identifier: MIT
//
// Package ducking drives gain automation that dips a signal and brings it
// back: the per-kick sidechain on the music bus and the break-mode duck of
// the main mix.
package ducking

import (
	"math"

	"handbeat/internal/graph"
)

// Sidechain floors and release windows.
const (
	CalmFloor      = 0.92
	CalmRelease    = 0.18
	NormalRelease  = 0.22
	normalFloorTop = 0.55
	normalFloorMin = 0.2
	normalFloorMax = 0.7
)

// Sidechain ducks one gain param at every trigger: a step to the floor at
// the trigger instant, then a linear release back to unity.
type Sidechain struct {
	gain *graph.Param
	pump float64
	calm bool
}

// NewSidechain returns a Sidechain driving gain. pump deepens the normal
// floor; calm mode makes the duck nearly inaudible.
func NewSidechain(gain *graph.Param, pump float64, calm bool) *Sidechain {
	s := &Sidechain{gain: gain, calm: calm}
	s.SetPump(pump)
	return s
}

// SetCalm switches between the calm and normal duck.
func (s *Sidechain) SetCalm(calm bool) { s.calm = calm }

// SetPump changes the pump amount, clamped to [0,1]. Non-finite values are
// ignored.
func (s *Sidechain) SetPump(pump float64) {
	if math.IsNaN(pump) || math.IsInf(pump, 0) {
		return
	}
	s.pump = math.Max(0, math.Min(1, pump))
}

// Floor returns the gain the duck drops to.
func (s *Sidechain) Floor() float64 {
	if s.calm {
		return CalmFloor
	}
	return clamp(normalFloorTop-s.pump, normalFloorMin, normalFloorMax)
}

// Release returns the time taken to return to unity.
func (s *Sidechain) Release() float64 {
	if s.calm {
		return CalmRelease
	}
	return NormalRelease
}

// Trigger ducks at t. Automation after t from an earlier trigger is
// replaced.
func (s *Sidechain) Trigger(t float64) {
	if s.gain == nil || math.IsNaN(t) {
		return
	}
	s.gain.CancelScheduledValues(t)
	s.gain.SetValueAtTime(s.Floor(), t)
	s.gain.LinearRampToValueAtTime(1, t+s.Release())
}

// Ramper is the bus mutation surface of the graph.
type Ramper interface {
	RampBus(b graph.Bus, target, at, ramp float64)
}

// Group ducks a set of buses together relative to their stored baselines.
type Group struct {
	out      Ramper
	buses    []graph.Bus
	baseline []float64
}

// NewGroup returns a Group over buses. Each bus's baseline is the gain it
// is restored to.
func NewGroup(out Ramper, buses []graph.Bus, baselines []float64) *Group {
	g := &Group{out: out, buses: append([]graph.Bus(nil), buses...)}
	g.baseline = make([]float64, len(buses))
	for i := range g.buses {
		if i < len(baselines) && !math.IsNaN(baselines[i]) && !math.IsInf(baselines[i], 0) {
			g.baseline[i] = baselines[i]
		}
	}
	return g
}

// Baseline returns the stored baseline for b, or 0 if b is not in the group.
func (g *Group) Baseline(b graph.Bus) float64 {
	for i, x := range g.buses {
		if x == b {
			return g.baseline[i]
		}
	}
	return 0
}

// Duck ramps every bus to baseline*floor, holding the current trajectory at
// `at`. floor is clamped to [0,1]; NaN is ignored.
func (g *Group) Duck(floor, at, ramp float64) {
	if math.IsNaN(floor) {
		return
	}
	floor = clamp(floor, 0, 1)
	for i, b := range g.buses {
		g.out.RampBus(b, g.baseline[i]*floor, at, ramp)
	}
}

// Restore ramps every bus back to exactly its baseline.
func (g *Group) Restore(at, ramp float64) {
	for i, b := range g.buses {
		g.out.RampBus(b, g.baseline[i], at, ramp)
	}
}

// Scale ramps one bus to baseline*factor. Buses outside the group are
// ignored.
func (g *Group) Scale(b graph.Bus, factor, at, ramp float64) {
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	for i, x := range g.buses {
		if x == b {
			g.out.RampBus(b, g.baseline[i]*factor, at, ramp)
			return
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
