// SPDX-License-Identifier: MIT
package gesture

import (
	"math"

	"handbeat/internal/config"
	"handbeat/internal/graph"
)

// Mapping constants.
const (
	worldHalfSpan = 30.0  // hand world coords span -30..+30
	speedFull     = 140.0 // hand speed that maps to full feedback
	paramRamp     = 0.03  // seconds
	tempoMin      = 90
	tempoMax      = 160
)

// Graph is the parameter surface the router drives.
type Graph interface {
	Now() float64
	Param(id graph.ParamID) *graph.Param
}

// Targets is what one hand sample maps to.
type Targets struct {
	CutoffHz  float64
	DelayTime float64 // seconds
	Feedback  float64
	BPM       float64
}

// Router turns hand samples into parameter ramps and a tempo.
type Router struct {
	g        Graph
	cfg      config.GestureConfig
	feedback float64 // base delay feedback
	bpm      float64 // base tempo
	tempo    func(bpm float64)
	last     Targets
}

// NewRouter returns a router. tempo receives every computed BPM; it may be
// nil.
func NewRouter(g Graph, cfg config.GestureConfig, baseFeedback, baseBPM float64, tempo func(float64)) *Router {
	return &Router{g: g, cfg: cfg, feedback: baseFeedback, bpm: baseBPM, tempo: tempo}
}

// Map computes the targets for h without touching the graph.
func (r *Router) Map(h Hand) Targets {
	y01 := unit(h.Position.Y)
	x01 := unit(h.Position.X)
	speed01 := clamp(h.Velocity.Len()/speedFull, 0, 1)

	fMin, fMax := r.cfg.LPFMinHz, r.cfg.LPFMaxHz
	cutoff := fMin * math.Pow(fMax/fMin, y01)

	dMin, dMax := r.cfg.DelayMinMS/1000, r.cfg.DelayMaxMS/1000

	return Targets{
		CutoffHz:  clamp(cutoff, 20, 22050),
		DelayTime: dMin + (dMax-dMin)*x01,
		Feedback:  clamp(r.feedback*(0.7+0.3*speed01), 0, 0.95),
		BPM:       clamp(r.bpm*(1+0.2*(y01-0.5)), tempoMin, tempoMax),
	}
}

// Route maps h and applies it: short ramps on the lowpass, delay time and
// feedback, and the new tempo through the tempo callback.
func (r *Router) Route(h Hand) Targets {
	t := r.Map(h)
	now := r.g.Now()
	ramp := func(id graph.ParamID, v float64) {
		if p := r.g.Param(id); p != nil {
			p.RampTo(v, now, paramRamp)
		}
	}
	ramp(graph.MediaLowpass, t.CutoffHz)
	ramp(graph.DelayTime, t.DelayTime)
	ramp(graph.DelayFeedback, t.Feedback)
	if r.tempo != nil {
		r.tempo(t.BPM)
	}
	r.last = t
	return t
}

// Last returns the most recently applied targets.
func (r *Router) Last() Targets {
	return r.last
}

// unit maps a world coordinate onto [0,1]. Non-finite input reads as the
// center.
func unit(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return clamp((v+worldHalfSpan)/(2*worldHalfSpan), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
