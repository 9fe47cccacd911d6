// SPDX-License-Identifier: MIT
package breakmode

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"handbeat/internal/config"
	"handbeat/internal/control"
	"handbeat/internal/ducking"
	"handbeat/internal/graph"
	"handbeat/internal/synth"
)

const (
	baseMaster = 1.0
	baseEngine = 0.9
)

type rig struct {
	g   *graph.Graph
	m   *Machine
	man *control.Manual
}

func newRig(t *testing.T) *rig {
	t.Helper()
	g := graph.New(graph.Options{
		SampleRate:    44100,
		MasterGain:    baseMaster,
		TechnoGain:    baseEngine,
		LowpassHz:     18000,
		DelayTime:     0.09,
		DelayFeedback: 0.25,
		SatAmount:     0.6,
		Seed:          3,
	})
	if err := g.EnsureBuilt(); err != nil {
		t.Fatalf("EnsureBuilt: %v", err)
	}
	main := ducking.NewGroup(g,
		[]graph.Bus{graph.MediaBus, graph.EngineBus},
		[]float64{baseMaster, baseEngine})
	kit := synth.NewKit(g, synth.NewJitter(rand.NewPCG(1, 1)))
	man := control.NewManual()
	cfg := config.Default().Break
	m := New(g, cfg, main, kit, man.Timer, 25*time.Millisecond, 126)
	return &rig{g: g, m: m, man: man}
}

// run advances audio and control time together.
func (r *rig) run(seconds float64) {
	for elapsed := 0.0; elapsed < seconds; elapsed += 0.025 {
		r.g.Advance(0.025)
		r.man.Advance(25 * time.Millisecond)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func TestStartScenario(t *testing.T) {
	r := newRig(t)
	r.m.Start(0.5)

	gain, floor := r.m.Targets()
	if !approx(gain, 0.95) || !approx(floor, 0.825) {
		t.Fatalf("targets = (%v, %v), want (0.95, 0.825)", gain, floor)
	}
	if r.m.State() != Active {
		t.Fatalf("state = %v", r.m.State())
	}

	r.run(0.3)
	if got := r.g.BusGain(graph.MediaBus); !approx(got, baseMaster*0.825) {
		t.Errorf("media bus = %v, want %v", got, baseMaster*0.825)
	}
	if got := r.g.BusGain(graph.EngineBus); !approx(got, baseEngine*0.825) {
		t.Errorf("engine bus = %v, want %v", got, baseEngine*0.825)
	}
	if got := r.g.BusGain(graph.BreakBus); !approx(got, 0.95) {
		t.Errorf("break bus = %v, want 0.95", got)
	}
	if got := r.g.Param(graph.MediaLowpass).Value(); !approx(got, 16000) {
		t.Errorf("lowpass = %v, want bright cutoff", got)
	}
}

func TestEndRestoresBaselinesExactly(t *testing.T) {
	r := newRig(t)
	r.m.Start(1)
	r.run(0.5)
	r.m.Hold(0.2)
	r.run(0.2)
	r.m.End()
	if !r.m.Ducking(r.g.Now()) {
		t.Error("Ducking() false during the restore ramp")
	}
	r.run(0.4)

	if got := r.g.BusGain(graph.MediaBus); got != baseMaster {
		t.Errorf("media bus = %v, want exactly %v", got, baseMaster)
	}
	if got := r.g.BusGain(graph.EngineBus); got != baseEngine {
		t.Errorf("engine bus = %v, want exactly %v", got, baseEngine)
	}
	if got := r.g.BusGain(graph.BreakBus); got != 0 {
		t.Errorf("break bus = %v, want 0", got)
	}
	if r.m.Ducking(r.g.Now()) {
		t.Error("Ducking() still true after release")
	}
	if gain, floor := r.m.Targets(); gain != 0 || floor != 0 {
		t.Errorf("idle targets = (%v, %v)", gain, floor)
	}
}

func TestDoubleStartKeepsGroove(t *testing.T) {
	r := newRig(t)
	r.m.Start(0.4)
	r.run(0.6)
	before := r.m.Cursor()

	r.m.Start(0.9)
	after := r.m.Cursor()
	if after.Step != before.Step || after.NextDeadline != before.NextDeadline {
		t.Errorf("second Start moved the cursor: %+v -> %+v", before, after)
	}
	if gain, _ := r.m.Targets(); !approx(gain, 0.7+0.5*0.9) {
		t.Errorf("gain after second Start = %v", gain)
	}

	r.run(0.4)
	if c := r.m.Cursor(); c.NextDeadline <= after.NextDeadline {
		t.Errorf("groove stalled: %v <= %v", c.NextDeadline, after.NextDeadline)
	}
}

func TestRedundantTransitions(t *testing.T) {
	r := newRig(t)
	r.m.End()
	r.m.Hold(1)
	if r.m.State() != Idle || r.m.Ducking(r.g.Now()) {
		t.Fatal("End/Hold while idle changed state")
	}
	r.run(0.1)
	if got := r.g.BusGain(graph.BreakBus); got != 0 {
		t.Errorf("idle break bus = %v", got)
	}
	if got := r.g.BusGain(graph.MediaBus); got != baseMaster {
		t.Errorf("idle media bus = %v", got)
	}
}

func TestStrengthClamped(t *testing.T) {
	tests := []struct {
		in    float64
		gain  float64
		floor float64
	}{
		{-1, 0.7, 0.9},
		{2, 1.2, 0.75},
		{math.NaN(), 0.7, 0.9},
	}
	for _, tt := range tests {
		r := newRig(t)
		r.m.Start(tt.in)
		gain, floor := r.m.Targets()
		if !approx(gain, tt.gain) || !approx(floor, tt.floor) {
			t.Errorf("Start(%v) targets = (%v, %v), want (%v, %v)", tt.in, gain, floor, tt.gain, tt.floor)
		}
	}
}

func TestGrooveStopsOnEnd(t *testing.T) {
	r := newRig(t)
	r.m.Start(1)
	r.run(1)
	if r.g.ActiveVoices() == 0 {
		t.Fatal("overlay groove played nothing")
	}
	r.m.End()
	if r.man.Pending() != 0 {
		t.Errorf("%d overlay tasks still armed", r.man.Pending())
	}
	// Let every committed note finish; the crash tail is the longest.
	r.run(1.5)
	if n := r.g.ActiveVoices(); n != 0 {
		t.Errorf("%d voices left after the groove stopped", n)
	}
}
