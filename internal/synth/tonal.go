// SPDX-License-Identifier: MIT
package synth

import "handbeat/internal/graph"

// Bass is a persistent monophonic sawtooth through a lowpass filter.
type Bass struct {
	osc *graph.Voice
	lpf *graph.Biquad
}

// NewBass builds the bass voice and attaches it to the music bus. It is
// silent until the first Trigger.
func NewBass(out Player) *Bass {
	v := graph.NewVoice(graph.Sawtooth, 65.4)
	lpf := v.AddFilter(graph.Lowpass, out.SampleRate(), 200, 0.7071)
	out.Play(v, graph.MusicInput)
	return &Bass{osc: v, lpf: lpf}
}

// Trigger retriggers the voice at t. Pitch and cutoff change at the same
// instant as the attack, so there is no glide.
func (b *Bass) Trigger(t float64, midi int, length, velocity, cutoff float64) {
	b.osc.Frequency.SetValueAtTime(NoteToHz(float64(midi)), t)
	b.lpf.Frequency.SetValueAtTime(cutoff, t)
	g := b.osc.Gain
	g.CancelScheduledValues(t)
	g.SetValueAtTime(silent, t)
	g.ExponentialRampToValueAtTime(velocity, t+0.01)
	g.ExponentialRampToValueAtTime(silent, t+length)
}

// Chords is a persistent pair of saws playing a chord's root and fifth.
type Chords struct {
	root, fifth       *graph.Voice
	rootLPF, fifthLPF *graph.Biquad
}

// NewChords builds the chord voices, feeding the music bus and the reverb send.
func NewChords(out Player) *Chords {
	c := &Chords{}
	c.root, c.rootLPF = chordVoice(out)
	c.fifth, c.fifthLPF = chordVoice(out)
	return c
}

func chordVoice(out Player) (*graph.Voice, *graph.Biquad) {
	v := graph.NewVoice(graph.Sawtooth, NoteToHz(Root))
	lpf := v.AddFilter(graph.Lowpass, out.SampleRate(), 1200, 0.7)
	out.Play(v, graph.MusicInput, graph.ReverbInput)
	return v, lpf
}

// Trigger sets a minor chord on rootMidi at t: root and fifth, lowpass swept
// 900 -> 1800 Hz over dur, 10 ms attack to velocity.
func (c *Chords) Trigger(t float64, rootMidi int, dur, velocity float64) {
	notes := MinorTriad(rootMidi)
	voices := [2]struct {
		v    *graph.Voice
		lpf  *graph.Biquad
		note int
	}{
		{c.root, c.rootLPF, notes[0]},
		{c.fifth, c.fifthLPF, notes[2]},
	}
	for _, s := range voices {
		s.v.Frequency.SetValueAtTime(NoteToHz(float64(s.note)), t)

		f := s.lpf.Frequency
		f.CancelScheduledValues(t)
		f.SetValueAtTime(900, t)
		f.LinearRampToValueAtTime(1800, t+dur)

		g := s.v.Gain
		g.CancelScheduledValues(t)
		g.SetValueAtTime(silent, t)
		g.ExponentialRampToValueAtTime(velocity, t+0.01)
		g.ExponentialRampToValueAtTime(silent, t+dur)
	}
}

// MinorTriad returns the root, minor third and fifth above rootMidi.
func MinorTriad(rootMidi int) [3]int {
	return [3]int{rootMidi, rootMidi + 3, rootMidi + 7}
}
