// SPDX-License-Identifier: MIT
package graph

import "math"

// MinRamp is the shortest ramp any bus change uses. Gains never step.
const MinRamp = 0.005

const (
	busMax   = 2.0
	maxDelay = 2.0 // seconds
)

// Bus names a summing gain stage.
type Bus int

const (
	MediaBus Bus = iota
	EngineBus
	BreakBus
	SumBus
	FinalOutput
	busCount
)

func (b Bus) String() string {
	switch b {
	case MediaBus:
		return "media-bus"
	case EngineBus:
		return "engine-bus"
	case BreakBus:
		return "break-bus"
	case SumBus:
		return "sum-bus"
	case FinalOutput:
		return "final-output"
	default:
		return "unknown-bus"
	}
}

// Target names an input voices can be attached to.
type Target int

const (
	EngineInput Target = iota // engine trim, not ducked
	MusicInput                // ducked music bus
	ReverbInput               // tiny reverb send
	BreakInput                // break overlay, before saturation
	targetCount
)

// ParamID names an automatable graph parameter other components may drive.
type ParamID int

const (
	MediaLowpass ParamID = iota
	BassShelfGain
	TrebleShelfGain
	DelayTime
	DelayFeedback
	DelaySendLevel
	GlueSendLevel
	ReverbSendLevel
	MusicDuck
	paramCount
)

// Param returns the handle for id, or nil before the graph is built.
func (g *Graph) Param(id ParamID) *Param {
	if id < 0 || id >= paramCount {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params[id]
}

// SetBusGain ramps bus to target starting now. See RampBus.
func (g *Graph) SetBusGain(b Bus, target, ramp float64) {
	g.RampBus(b, target, g.Now(), ramp)
}

// RampBus holds the bus trajectory at `at` and ramps linearly to target over
// ramp seconds. Non-finite targets are ignored; out-of-range targets are
// clamped to the bus range and ramps shorter than MinRamp are lengthened.
func (g *Graph) RampBus(b Bus, target, at, ramp float64) {
	if b < 0 || b >= busCount || math.IsNaN(target) || math.IsInf(target, 0) {
		return
	}
	if !finite(ramp) || ramp < MinRamp {
		ramp = MinRamp
	}
	if now := g.Now(); !finite(at) || at < now {
		at = now
	}
	p := g.busParam(b)
	if p == nil {
		return
	}
	p.RampTo(p.clamp(target), at, ramp)
}

// BusGain returns the bus gain as of the last rendered quantum.
func (g *Graph) BusGain(b Bus) float64 {
	p := g.busParam(b)
	if p == nil {
		return 0
	}
	return p.Value()
}

// BusGainAt evaluates the bus timeline at t.
func (g *Graph) BusGainAt(b Bus, t float64) float64 {
	p := g.busParam(b)
	if p == nil {
		return 0
	}
	return p.ValueAt(t)
}

func (g *Graph) busParam(b Bus) *Param {
	if b < 0 || b >= busCount {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bus[b] == nil {
		return nil
	}
	return g.bus[b].gain
}
