// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"handbeat/internal/config"
	"handbeat/internal/graph"
	"handbeat/pkg/utils"
)

const testRate = 44100.0

type sineSource struct {
	freq, amp float64
}

func (s sineSource) Snapshot(dst []float64) {
	utils.SineInto(dst, testRate, s.freq, s.amp)
}

// fillSource returns the same value for every sample.
type fillSource float64

func (f fillSource) Snapshot(dst []float64) {
	for i := range dst {
		dst[i] = float64(f)
	}
}

type fakeClock struct{ t float64 }

func (c *fakeClock) Now() float64 { return c.t }

type scaleCall struct {
	bus              graph.Bus
	factor, at, ramp float64
}

type fakeScaler struct{ calls []scaleCall }

func (f *fakeScaler) Scale(b graph.Bus, factor, at, ramp float64) {
	f.calls = append(f.calls, scaleCall{b, factor, at, ramp})
}

type gate bool

func (g gate) Ducking(float64) bool { return bool(g) }

func newTestAnalyzer(t *testing.T, src Source, clk Clock) *Analyzer {
	t.Helper()
	a, err := New(src, clk, testRate, config.Default().Analysis)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestBandsCoverEveryBinOnce(t *testing.T) {
	for n := 0; n <= 2048; n++ {
		b := NewBands(n)
		if b.BassEnd != int(math.Floor(0.1*float64(n))) || b.MidEnd != int(math.Floor(0.4*float64(n))) {
			t.Fatalf("N=%d: edges %d/%d", n, b.BassEnd, b.MidEnd)
		}
		if b.BassEnd < 0 || b.BassEnd > b.MidEnd || b.MidEnd > n {
			t.Fatalf("N=%d: edges out of order %+v", n, b)
		}
		// bass + mid + treble lengths sum to N with no overlap.
		if got := b.BassEnd + (b.MidEnd - b.BassEnd) + (n - b.MidEnd); got != n {
			t.Fatalf("N=%d: covered %d bins", n, got)
		}
	}
}

func TestBandsMeasure(t *testing.T) {
	b := NewBands(10)
	levels := []float64{1, 0.5, 0.5, 0.5, 0, 0, 0, 0, 0, 0}
	e := b.Measure(levels)
	if e.Bass != 1 || e.Mid != 0.5 || e.Treble != 0 {
		t.Errorf("energy = %+v", e)
	}
	if math.Abs(e.Level-0.25) > 1e-12 {
		t.Errorf("level = %v", e.Level)
	}

	empty := NewBands(0).Measure(nil)
	if empty != (Energy{}) {
		t.Errorf("empty bands = %+v", empty)
	}
}

func TestSpectrumPeak(t *testing.T) {
	s, err := NewSpectrum(SpectrumConfig{
		FFTSize:     1024,
		SampleRate:  testRate,
		Window:      Blackman,
		Smoothing:   0,
		MinDecibels: -100,
		MaxDecibels: -30,
	})
	if err != nil {
		t.Fatal(err)
	}
	block := make([]float64, 1024)
	sineSource{freq: s.FrequencyForBin(64), amp: 1}.Snapshot(block)
	levels := s.Process(block)
	if len(levels) != 512 || s.Bins() != 512 {
		t.Fatalf("bins = %d", len(levels))
	}
	// Neighbouring bins may clip to 1 as well.
	if peak := utils.PeakBin(levels, 0, len(levels)-1); peak < 62 || peak > 64 {
		t.Errorf("peak bin = %d, want 64 or a clipped neighbour", peak)
	}
	if levels[64] != 1 {
		t.Errorf("peak level = %v, want 1", levels[64])
	}
	if levels[400] != 0 {
		t.Errorf("far bin level = %v, want 0", levels[400])
	}
	for i, v := range levels {
		if v < 0 || v > 1 {
			t.Fatalf("bin %d level %v outside [0,1]", i, v)
		}
	}
}

func TestSpectrumRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SpectrumConfig
	}{
		{"size", SpectrumConfig{FFTSize: 1000, SampleRate: testRate, MinDecibels: -100, MaxDecibels: -30}},
		{"rate", SpectrumConfig{FFTSize: 1024, SampleRate: 0, MinDecibels: -100, MaxDecibels: -30}},
		{"range", SpectrumConfig{FFTSize: 1024, SampleRate: testRate, MinDecibels: -30, MaxDecibels: -30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSpectrum(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseWindowFunc(t *testing.T) {
	for name, want := range map[string]WindowFunc{
		"blackman": Blackman, "Hann": Hann, "hanning": Hann, "NUTTALL": Nuttall, "": Blackman,
	} {
		got, err := ParseWindowFunc(name)
		if err != nil || got != want {
			t.Errorf("ParseWindowFunc(%q) = %v, %v", name, got, err)
		}
	}
	if got, err := ParseWindowFunc("kaiser"); err == nil || got != Blackman {
		t.Errorf("unknown window = %v, %v", got, err)
	}
}

func TestKickPulseAlwaysInRange(t *testing.T) {
	inputs := []Source{
		fillSource(0), fillSource(1e9), fillSource(-1e9),
		fillSource(math.NaN()), fillSource(math.Inf(1)),
		sineSource{freq: 60, amp: 100},
	}
	for _, src := range inputs {
		a := newTestAnalyzer(t, src, &fakeClock{})
		for range 20 {
			f := a.Tick()
			for _, v := range f.Values() {
				if v < 0 || v > 1 || math.IsNaN(v) {
					t.Fatalf("feature %v outside [0,1] for %v", f, src)
				}
			}
		}
	}
}

func TestKickDetectorFloor(t *testing.T) {
	var k KickDetector
	if got := k.Process(0.5); math.Abs(got-1) > 1e-12 {
		t.Errorf("first transient = %v, want clamped 1", got)
	}
	if math.Abs(k.Floor()-0.06) > 1e-12 {
		t.Errorf("floor = %v, want 0.06", k.Floor())
	}
	// Steady bass lets the floor catch up and the pulse fade.
	var last float64
	for range 200 {
		last = k.Process(0.5)
	}
	if last > 1e-6 {
		t.Errorf("steady-state pulse = %v", last)
	}
}

func TestSyntheticKickWaitsForAudioClock(t *testing.T) {
	s := NewSyntheticKick()
	s.Trigger(1.0)
	if got := s.Process(0.9); got != 0 {
		t.Errorf("pulse before kick sounds = %v", got)
	}
	if got := s.Process(1.0); got != 1 {
		t.Errorf("pulse at kick = %v", got)
	}
	if got := s.Process(1.016); math.Abs(got-0.86) > 1e-12 {
		t.Errorf("pulse one tick later = %v", got)
	}
	if got := s.Process(1.033); math.Abs(got-0.86*0.86) > 1e-12 {
		t.Errorf("pulse two ticks later = %v", got)
	}
}

func TestSyntheticKickQueueBounded(t *testing.T) {
	s := NewSyntheticKick()
	for i := range 100 {
		s.Trigger(float64(i))
	}
	if len(s.pending) != maxPendingKicks {
		t.Errorf("pending = %d", len(s.pending))
	}
	if s.pending[0] != 100-maxPendingKicks {
		t.Errorf("oldest kept = %v", s.pending[0])
	}
}

func TestAnalyzerCombinesKicks(t *testing.T) {
	clk := &fakeClock{t: 2}
	a := newTestAnalyzer(t, fillSource(0), clk)
	a.Kick(2)
	f := a.Tick()
	if f.KickPulse != 1 {
		t.Errorf("kick pulse = %v, want engine kick", f.KickPulse)
	}
	if a.Features() != f {
		t.Error("Features() does not return the latest frame")
	}
}

func TestPump(t *testing.T) {
	tests := []struct {
		name    string
		ducking bool
		amount  float64
		want    []scaleCall
	}{
		{"idle", false, 0.15, []scaleCall{{graph.MediaBus, 0.85, 2, 1.0 / 60}}},
		{"capped", false, 5, []scaleCall{{graph.MediaBus, 1 - maxPump, 2, 1.0 / 60}}},
		{"break owns mix", true, 0.15, nil},
		{"disabled", false, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &fakeClock{t: 2}
			a := newTestAnalyzer(t, fillSource(0), clk)
			out := &fakeScaler{}
			a.SetPump(out, gate(tt.ducking), tt.amount)
			a.Kick(2)
			a.Tick()
			if len(out.calls) != len(tt.want) {
				t.Fatalf("calls = %+v", out.calls)
			}
			for i, c := range tt.want {
				got := out.calls[i]
				if got.bus != c.bus || math.Abs(got.factor-c.factor) > 1e-12 || got.at != c.at ||
					math.Abs(got.ramp-c.ramp) > 1e-9 {
					t.Errorf("call = %+v, want %+v", got, c)
				}
			}
		})
	}
}

func TestTickAllocations(t *testing.T) {
	a := newTestAnalyzer(t, sineSource{freq: 100, amp: 0.5}, &fakeClock{t: 1})
	a.SetPump(&fakeScaler{calls: make([]scaleCall, 0, 1024)}, gate(false), 0.15)
	allocs := testing.AllocsPerRun(100, func() { a.Tick() })
	if allocs > 0 {
		t.Errorf("Tick allocated %.1f times per run", allocs)
	}
}

func BenchmarkTick(b *testing.B) {
	a, err := New(sineSource{freq: 100, amp: 0.5}, &fakeClock{t: 1}, testRate, config.Default().Analysis)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		a.Tick()
	}
}
