// SPDX-License-Identifier: MIT
package synth

import (
	"math"
	"math/rand/v2"
)

// MinorScale is the natural minor scale in semitones above the root.
var MinorScale = []int{0, 2, 3, 5, 7, 8, 10}

// Root is the fixed pitch the bass line is quantized against (C2).
const Root = 36

// Quantize snaps midi to the nearest member of scale, keeping its octave
// relative to root. Ties go to the degree that comes first in scale.
func Quantize(midi int, scale []int, root int) int {
	if len(scale) == 0 {
		return midi
	}
	off := midi - root
	oct := floorDiv(off, 12)
	deg := ((off % 12) + 12) % 12
	nearest, best := scale[0], math.MaxInt
	for _, s := range scale {
		d := s - deg
		if d < 0 {
			d = -d
		}
		if d < best {
			best, nearest = d, s
		}
	}
	return root + oct*12 + nearest
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// NoteToHz converts a MIDI note number to its equal-tempered frequency.
func NoteToHz(midi float64) float64 {
	return 440 * math.Pow(2, (midi-69)/12)
}

// Jitter perturbs trigger times by a small uniform offset and supplies the
// random draws the sequencers need. It is not safe for concurrent use; it
// lives on the control thread.
type Jitter struct {
	rng *rand.Rand
}

// NewJitter returns a Jitter drawing from src. Tests pass a seeded PCG.
func NewJitter(src rand.Source) *Jitter {
	return &Jitter{rng: rand.New(src)}
}

// Apply returns t moved by a uniform offset in [-amp, amp).
func (j *Jitter) Apply(t, amp float64) float64 {
	if amp <= 0 || math.IsNaN(amp) {
		return t
	}
	return t + (j.rng.Float64()*2-1)*amp
}

// Chance reports true with probability p.
func (j *Jitter) Chance(p float64) bool {
	return j.rng.Float64() < p
}

// Seed returns a fresh seed for a noise voice.
func (j *Jitter) Seed() uint64 {
	return j.rng.Uint64()
}
