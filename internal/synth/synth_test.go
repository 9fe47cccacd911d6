// SPDX-License-Identifier: MIT
package synth

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"handbeat/internal/graph"
)

type played struct {
	v       *graph.Voice
	targets []graph.Target
}

// recorder is a Player that keeps every voice instead of rendering it.
type recorder struct {
	voices []played
}

func (r *recorder) Play(v *graph.Voice, targets ...graph.Target) {
	r.voices = append(r.voices, played{v: v, targets: targets})
}

func (r *recorder) SampleRate() float64 { return 44100 }

func newKit(r *recorder) *Kit {
	return NewKit(r, NewJitter(rand.NewPCG(1, 2)))
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{40, 39}, // degree 4 is equidistant from 3 and 5; first wins
		{36, 36},
		{37, 36},
		{38, 38},
		{47, 46},
		{35, 34},
		{24, 24},
		{61, 60},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Quantize(tt.in, MinorScale, Root); got != tt.want {
			t.Errorf("Quantize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestQuantizeAlwaysInScale(t *testing.T) {
	for m := -24; m <= 127; m++ {
		q := Quantize(m, MinorScale, Root)
		deg := ((q-Root)%12 + 12) % 12
		if !slices.Contains(MinorScale, deg) {
			t.Fatalf("Quantize(%d) = %d, degree %d not in scale", m, q, deg)
		}
		if d := q - m; d < -1 || d > 1 {
			t.Fatalf("Quantize(%d) = %d moved by %d semitones", m, q, d)
		}
	}
}

func TestNoteToHz(t *testing.T) {
	for midi, want := range map[float64]float64{69: 440, 57: 220, 81: 880} {
		if got := NoteToHz(midi); !near(got, want, 1e-9) {
			t.Errorf("NoteToHz(%v) = %v, want %v", midi, got, want)
		}
	}
}

func TestPresetLookup(t *testing.T) {
	for _, name := range []string{"DeepChill", "FrenchTouch1998", "LoFiHouse", "PeakTimeTechno"} {
		t.Run(name, func(t *testing.T) {
			p, err := Lookup(name)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if p.Name != name {
				t.Errorf("name = %q", p.Name)
			}
			if p.ChordEvery <= 0 {
				t.Errorf("chordEvery = %d", p.ChordEvery)
			}
		})
	}
	if _, err := Lookup("Trance"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("unknown preset err = %v", err)
	}
	if Default().Name != "DeepChill" {
		t.Errorf("default preset = %q", Default().Name)
	}
}

func TestPresetsReturnsCopy(t *testing.T) {
	ps := Presets()
	ps[0].HatDensity = 99
	if Default().HatDensity == 99 {
		t.Error("Presets exposed the internal table")
	}
}

func TestVoicingClamped(t *testing.T) {
	v := Voicing{
		HatDensity:    2,
		OpenHatChance: -1,
		ClapLevel:     9,
		BassCutoff:    10,
		BassVelocity:  math.NaN(),
	}.Clamped()
	want := Voicing{HatDensity: 1, OpenHatChance: 0, ClapLevel: 1.5, BassCutoff: 120, BassVelocity: 0.05}
	if v != want {
		t.Errorf("Clamped() = %+v, want %+v", v, want)
	}
}

func TestKickEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		calm   bool
		peak   float64
		attack float64
		click  float64
	}{
		{"normal", false, 0.9, 0.002, 0.2},
		{"calm", true, 0.6, 0.004, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			newKit(r).Kick(1, tt.calm)
			if len(r.voices) != 2 {
				t.Fatalf("voices = %d, want body + click", len(r.voices))
			}
			body, click := r.voices[0], r.voices[1]
			for _, p := range r.voices {
				if !slices.Equal(p.targets, []graph.Target{graph.EngineInput}) {
					t.Errorf("kick routed to %v, want engine input only", p.targets)
				}
			}
			if got := body.v.Frequency.ValueAt(1); !near(got, 190, 1e-9) {
				t.Errorf("start pitch = %v", got)
			}
			if got := body.v.Frequency.ValueAt(1.11); !near(got, 45, 1e-9) {
				t.Errorf("end pitch = %v", got)
			}
			if got := body.v.Gain.ValueAt(1 + tt.attack); !near(got, tt.peak, 1e-9) {
				t.Errorf("peak = %v, want %v", got, tt.peak)
			}
			if got := click.v.Gain.ValueAt(1); !near(got, tt.click, 1e-9) {
				t.Errorf("click = %v, want %v", got, tt.click)
			}
			if got := body.v.StopTime(); !near(got, 1.35, 1e-9) {
				t.Errorf("body stop = %v", got)
			}
		})
	}
}

func TestHatLevels(t *testing.T) {
	tests := []struct {
		name    string
		open    bool
		calm    bool
		density float64
		amp     float64
		stop    float64
	}{
		{"closed", false, false, 1, 0.11, 0.06},
		{"open", true, false, 1, 0.16, 0.17},
		{"closed calm", false, true, 1, 0.08, 0.055},
		{"open calm", true, true, 0.5, 0.06, 0.14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			newKit(r).Hat(0, tt.open, tt.density, tt.calm)
			if len(r.voices) != 1 {
				t.Fatalf("voices = %d", len(r.voices))
			}
			p := r.voices[0]
			if got := p.v.Gain.ValueAt(0); !near(got, tt.amp, 1e-9) {
				t.Errorf("amp = %v, want %v", got, tt.amp)
			}
			if got := p.v.StopTime(); !near(got, tt.stop, 1e-9) {
				t.Errorf("stop = %v, want %v", got, tt.stop)
			}
			if !slices.Equal(p.targets, []graph.Target{graph.MusicInput, graph.ReverbInput}) {
				t.Errorf("targets = %v", p.targets)
			}
		})
	}
}

func TestHatZeroDensitySilent(t *testing.T) {
	r := &recorder{}
	newKit(r).Hat(0, false, 0, false)
	if len(r.voices) != 0 {
		t.Errorf("zero density played %d voices", len(r.voices))
	}
}

func TestClapBursts(t *testing.T) {
	r := &recorder{}
	newKit(r).Clap(2, 1, true)
	if len(r.voices) != len(clapBursts) {
		t.Fatalf("bursts = %d, want %d", len(r.voices), len(clapBursts))
	}
	for i, p := range r.voices {
		at := 2 + clapBursts[i]
		want := 0.22 / float64(i+1) * 0.7
		if got := p.v.Gain.ValueAt(at); !near(got, want, 1e-9) {
			t.Errorf("burst %d level = %v, want %v", i, got, want)
		}
	}
}

func TestBreakKitLevels(t *testing.T) {
	tests := []struct {
		name   string
		play   func(k *Kit)
		attack float64
		peak   float64
	}{
		{"kick", func(k *Kit) { k.BreakKick(0, 0.55) }, 0.004, 1.2 * 0.55},
		{"snare", func(k *Kit) { k.BreakSnare(0, 0.5) }, 0.004, 1.2 * 0.5},
		{"hat", func(k *Kit) { k.BreakHat(0, 0.35) }, 0.003, 0.9 * 0.35},
		{"crash", func(k *Kit) { k.Crash(0, 0.22) }, 0.02, 1.5 * 0.22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			tt.play(newKit(r))
			if len(r.voices) != 1 {
				t.Fatalf("voices = %d", len(r.voices))
			}
			p := r.voices[0]
			if got := p.v.Gain.ValueAt(0); got != 0 {
				t.Errorf("onset = %v, want 0", got)
			}
			if got := p.v.Gain.ValueAt(tt.attack); !near(got, tt.peak, 1e-9) {
				t.Errorf("peak = %v, want %v", got, tt.peak)
			}
			if !slices.Equal(p.targets, []graph.Target{graph.BreakInput}) {
				t.Errorf("targets = %v", p.targets)
			}
		})
	}
}

func TestCrashSkippedAtZeroLevel(t *testing.T) {
	r := &recorder{}
	k := newKit(r)
	k.Crash(0, 0)
	k.Crash(0, -1)
	if len(r.voices) != 0 {
		t.Errorf("crash played %d voices at level <= 0", len(r.voices))
	}
}

func TestBassRetrigger(t *testing.T) {
	r := &recorder{}
	b := NewBass(r)
	if len(r.voices) != 1 {
		t.Fatalf("bass voices = %d", len(r.voices))
	}
	b.Trigger(1, 43, 0.22, 0.2, 400)
	b.Trigger(1.5, 36, 0.22, 0.2, 400)

	v := r.voices[0].v
	if got := v.Frequency.ValueAt(1.2); !near(got, NoteToHz(43), 1e-9) {
		t.Errorf("pitch during first note = %v", got)
	}
	if got := v.Frequency.ValueAt(1.5); !near(got, NoteToHz(36), 1e-9) {
		t.Errorf("pitch at retrigger = %v, want no glide", got)
	}
	if got := v.Gain.ValueAt(1.51); !near(got, 0.2, 1e-9) {
		t.Errorf("velocity after attack = %v", got)
	}
	if len(r.voices) != 1 {
		t.Error("retrigger allocated a new voice")
	}
}

func TestChordsTrigger(t *testing.T) {
	r := &recorder{}
	c := NewChords(r)
	if len(r.voices) != 2 {
		t.Fatalf("chord voices = %d", len(r.voices))
	}
	c.Trigger(0, 33, 0.16, 0.18)
	if got := r.voices[0].v.Frequency.ValueAt(0); !near(got, NoteToHz(33), 1e-9) {
		t.Errorf("root = %v", got)
	}
	if got := r.voices[1].v.Frequency.ValueAt(0); !near(got, NoteToHz(40), 1e-9) {
		t.Errorf("fifth = %v", got)
	}
	if got := r.voices[0].v.Gain.ValueAt(0.01); !near(got, 0.18, 1e-9) {
		t.Errorf("velocity = %v", got)
	}
}

func TestJitter(t *testing.T) {
	a := NewJitter(rand.NewPCG(9, 9))
	b := NewJitter(rand.NewPCG(9, 9))
	for range 100 {
		x, y := a.Apply(1, 0.004), b.Apply(1, 0.004)
		if x != y {
			t.Fatal("same seed produced different jitter")
		}
		if x < 1-0.004 || x >= 1+0.004 {
			t.Fatalf("jittered time %v outside +/-4 ms", x)
		}
	}
	if got := a.Apply(2, 0); got != 2 {
		t.Errorf("zero amplitude moved time to %v", got)
	}
}
