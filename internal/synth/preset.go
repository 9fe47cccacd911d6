// SPDX-License-Identifier: MIT
package synth

import (
	"errors"
	"math"
)

// ErrUnknownPreset is returned by Lookup for names not in the table.
var ErrUnknownPreset = errors.New("synth: unknown preset")

// Steps is the length of every pattern: one bar of sixteenths.
const Steps = 16

// Preset is an immutable groove bundle. A zero in BassPattern is a rest.
type Preset struct {
	Name          string
	HatDensity    float64
	OpenHatChance float64
	ClapLevel     float64
	BassCutoff    float64 // Hz
	BassVelocity  float64
	BassPattern   [Steps]int
	ChordRoots    [Steps]int
	ChordEvery    int
	Jitter        float64 // seconds, +/- uniform
}

var presets = []Preset{
	{
		Name:          "DeepChill",
		HatDensity:    0.55,
		OpenHatChance: 0.06,
		ClapLevel:     0.65,
		BassCutoff:    320,
		BassVelocity:  0.14,
		BassPattern:   [Steps]int{36, 0, 43, 0, 36, 0, 41, 0, 36, 0, 43, 0, 36, 0, 41, 0},
		ChordRoots:    [Steps]int{36, 36, 36, 36, 33, 33, 33, 33, 31, 31, 31, 31, 33, 33, 33, 33},
		ChordEvery:    4,
		Jitter:        0.004,
	},
	{
		Name:          "FrenchTouch1998",
		HatDensity:    0.95,
		OpenHatChance: 0.10,
		ClapLevel:     1.2,
		BassCutoff:    520,
		BassVelocity:  0.24,
		BassPattern:   [Steps]int{36, 36, 43, 36, 36, 36, 43, 36, 36, 36, 43, 36, 36, 36, 43, 36},
		ChordRoots:    [Steps]int{36, 36, 36, 36, 36, 36, 36, 36, 34, 34, 34, 34, 36, 36, 36, 36},
		ChordEvery:    4,
		Jitter:        0.003,
	},
	{
		Name:          "LoFiHouse",
		HatDensity:    0.8,
		OpenHatChance: 0.2,
		ClapLevel:     1.0,
		BassCutoff:    420,
		BassVelocity:  0.20,
		BassPattern:   [Steps]int{36, 0, 43, 0, 36, 0, 41, 0, 36, 0, 43, 0, 36, 0, 41, 0},
		ChordRoots:    [Steps]int{36, 36, 36, 36, 35, 35, 35, 35, 33, 33, 33, 33, 36, 36, 36, 36},
		ChordEvery:    2,
		Jitter:        0.006,
	},
	{
		Name:          "PeakTimeTechno",
		HatDensity:    1.0,
		OpenHatChance: 0.08,
		ClapLevel:     1.3,
		BassCutoff:    680,
		BassVelocity:  0.28,
		BassPattern:   [Steps]int{36, 36, 43, 36, 38, 36, 45, 36, 41, 36, 43, 36, 38, 36, 45, 36},
		ChordRoots:    [Steps]int{36, 36, 36, 36, 38, 38, 38, 38, 41, 41, 41, 41, 38, 38, 38, 38},
		ChordEvery:    2,
		Jitter:        0.002,
	},
}

// Presets returns every preset in table order; DeepChill is first and is the default.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Lookup returns the preset with the given name.
func Lookup(name string) (Preset, error) {
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, ErrUnknownPreset
}

// Default returns the DeepChill preset.
func Default() Preset {
	return presets[0]
}

// Voicing is the mutable synthesis parameter set derived from a preset.
type Voicing struct {
	HatDensity    float64
	OpenHatChance float64
	ClapLevel     float64
	BassCutoff    float64
	BassVelocity  float64
}

// Voicing returns the preset's synthesis parameters, clamped.
func (p Preset) Voicing() Voicing {
	return Voicing{
		HatDensity:    p.HatDensity,
		OpenHatChance: p.OpenHatChance,
		ClapLevel:     p.ClapLevel,
		BassCutoff:    p.BassCutoff,
		BassVelocity:  p.BassVelocity,
	}.Clamped()
}

// Clamped limits every field to its safe range. NaN collapses to the
// bottom of the range.
func (v Voicing) Clamped() Voicing {
	return Voicing{
		HatDensity:    clamp(v.HatDensity, 0, 1),
		OpenHatChance: clamp(v.OpenHatChance, 0, 1),
		ClapLevel:     clamp(v.ClapLevel, 0, 1.5),
		BassCutoff:    clamp(v.BassCutoff, 120, 3000),
		BassVelocity:  clamp(v.BassVelocity, 0.05, 0.6),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
