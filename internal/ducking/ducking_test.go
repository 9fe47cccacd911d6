// SPDX-License-Identifier: MIT
package ducking

import (
	"math"
	"testing"

	"handbeat/internal/graph"
)

func TestSidechainFloor(t *testing.T) {
	tests := []struct {
		name    string
		pump    float64
		calm    bool
		floor   float64
		release float64
	}{
		{"calm", 0.3, true, 0.92, 0.18},
		{"normal no pump", 0, false, 0.55, 0.22},
		{"normal pump", 0.25, false, 0.3, 0.22},
		{"deep pump clamps", 1, false, 0.2, 0.22},
		{"negative pump clamps", -1, false, 0.55, 0.22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSidechain(nil, tt.pump, tt.calm)
			if got := s.Floor(); math.Abs(got-tt.floor) > 1e-12 {
				t.Errorf("floor = %v, want %v", got, tt.floor)
			}
			if got := s.Release(); got != tt.release {
				t.Errorf("release = %v, want %v", got, tt.release)
			}
		})
	}
}

func TestSidechainTrigger(t *testing.T) {
	p := graph.NewParam(1, 0, 1)
	s := NewSidechain(p, 0.25, false)
	s.Trigger(1)

	if got := p.ValueAt(0.5); got != 1 {
		t.Errorf("before trigger = %v", got)
	}
	if got := p.ValueAt(1); math.Abs(got-0.3) > 1e-12 {
		t.Errorf("at trigger = %v, want floor 0.3", got)
	}
	if got := p.ValueAt(1.11); math.Abs(got-0.65) > 1e-9 {
		t.Errorf("mid release = %v, want 0.65", got)
	}
	if got := p.ValueAt(1.22); math.Abs(got-1) > 1e-12 {
		t.Errorf("after release = %v", got)
	}

	// A later kick inside the release replaces the tail.
	s.SetCalm(true)
	s.Trigger(1.1)
	if got := p.ValueAt(1.1); got != CalmFloor {
		t.Errorf("retrigger floor = %v", got)
	}
	if got := p.ValueAt(1.28); math.Abs(got-1) > 1e-12 {
		t.Errorf("retrigger release end = %v", got)
	}
}

type rampCall struct {
	bus              graph.Bus
	target, at, ramp float64
}

type fakeRamper struct{ calls []rampCall }

func (f *fakeRamper) RampBus(b graph.Bus, target, at, ramp float64) {
	f.calls = append(f.calls, rampCall{b, target, at, ramp})
}

func TestGroupDuckAndRestore(t *testing.T) {
	f := &fakeRamper{}
	g := NewGroup(f, []graph.Bus{graph.MediaBus, graph.EngineBus}, []float64{0.8, 0.5})

	g.Duck(0.825, 2, 0.08)
	g.Restore(3, 0.18)
	g.Duck(math.NaN(), 4, 0.08)
	g.Duck(3, 5, 0.08)

	want := []rampCall{
		{graph.MediaBus, 0.8 * 0.825, 2, 0.08},
		{graph.EngineBus, 0.5 * 0.825, 2, 0.08},
		{graph.MediaBus, 0.8, 3, 0.18},
		{graph.EngineBus, 0.5, 3, 0.18},
		{graph.MediaBus, 0.8, 5, 0.08},
		{graph.EngineBus, 0.5, 5, 0.08},
	}
	if len(f.calls) != len(want) {
		t.Fatalf("calls = %+v", f.calls)
	}
	for i := range want {
		if f.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, f.calls[i], want[i])
		}
	}
	if g.Baseline(graph.EngineBus) != 0.5 || g.Baseline(graph.BreakBus) != 0 {
		t.Error("Baseline lookup")
	}
}

func TestGroupScale(t *testing.T) {
	f := &fakeRamper{}
	g := NewGroup(f, []graph.Bus{graph.MediaBus}, []float64{0.9})
	g.Scale(graph.MediaBus, 0.5, 1, 0.016)
	g.Scale(graph.BreakBus, 0.5, 1, 0.016)
	g.Scale(graph.MediaBus, math.Inf(1), 1, 0.016)
	if len(f.calls) != 1 || f.calls[0] != (rampCall{graph.MediaBus, 0.45, 1, 0.016}) {
		t.Errorf("calls = %+v", f.calls)
	}
}
