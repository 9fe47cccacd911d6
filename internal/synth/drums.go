// SPDX-License-Identifier: MIT
//
// Package synth holds the sound recipes: each one builds short-lived voices
// for a trigger time, schedules their envelopes and hands them to the graph.
// Bass and chords are persistent voices retriggered in place.
package synth

import "handbeat/internal/graph"

// Player is the part of the graph the recipes need.
type Player interface {
	Play(v *graph.Voice, targets ...graph.Target)
	SampleRate() float64
}

// silent is the envelope floor used by exponential decays.
const silent = 0.0001

// Kit triggers one-shot percussion.
type Kit struct {
	out  Player
	rand *Jitter
}

// NewKit returns a Kit playing into out. rand seeds the noise voices.
func NewKit(out Player, rand *Jitter) *Kit {
	return &Kit{out: out, rand: rand}
}

// Kick plays the main kick at t: a sine swept 190 -> 45 Hz plus a square
// click. Both go to the engine trim so the music duck never touches them.
func (k *Kit) Kick(t float64, calm bool) {
	peak, attack, click := 0.9, 0.002, 0.2
	if calm {
		peak, attack, click = 0.6, 0.004, 0.05
	}

	body := graph.NewVoice(graph.Sine, 190)
	body.Frequency.SetValueAtTime(190, t)
	body.Frequency.ExponentialRampToValueAtTime(45, t+0.11)
	body.Gain.SetValueAtTime(silent, t)
	body.Gain.ExponentialRampToValueAtTime(peak, t+attack)
	body.Gain.ExponentialRampToValueAtTime(silent, t+0.28)
	body.Start(t)
	body.Stop(t + 0.35)

	sq := graph.NewVoice(graph.Square, 440)
	sq.Gain.SetValueAtTime(click, t)
	sq.Gain.ExponentialRampToValueAtTime(silent, t+0.02)
	sq.Start(t)
	sq.Stop(t + 0.03)

	k.out.Play(body, graph.EngineInput)
	k.out.Play(sq, graph.EngineInput)
}

// Hat plays a closed or open hat scaled by density into the music bus and
// the reverb send.
func (k *Kit) Hat(t float64, open bool, density float64, calm bool) {
	cutoff := 8000.0
	dur, amp := 0.04, 0.11
	switch {
	case open && calm:
		dur, amp = 0.12, 0.12
	case open:
		dur, amp = 0.15, 0.16
	case calm:
		dur, amp = 0.035, 0.08
	}
	if calm {
		cutoff = 6000
	}
	amp *= clamp(density, 0, 1)
	if amp <= 0 {
		return
	}

	v := graph.NewNoiseVoice(k.rand.Seed())
	v.AddFilter(graph.Highpass, k.out.SampleRate(), cutoff, 0.7071)
	v.Gain.SetValueAtTime(amp, t)
	v.Gain.ExponentialRampToValueAtTime(silent, t+dur)
	v.Start(t)
	v.Stop(t + dur + 0.02)
	k.out.Play(v, graph.MusicInput, graph.ReverbInput)
}

// clapBursts are the onsets of the layered noise bursts forming one clap.
var clapBursts = [...]float64{0, 0.012, 0.024, 0.038}

// Clap plays four bandpassed noise bursts, each quieter than the last.
func (k *Kit) Clap(t, level float64, calm bool) {
	level = clamp(level, 0, 1.5)
	if calm {
		level *= 0.7
	}
	if level <= 0 {
		return
	}
	for i, off := range clapBursts {
		at := t + off
		v := graph.NewNoiseVoice(k.rand.Seed())
		v.AddFilter(graph.Bandpass, k.out.SampleRate(), 1500, 0.6)
		v.Gain.SetValueAtTime(0.22/float64(i+1)*level, at)
		v.Gain.ExponentialRampToValueAtTime(silent, at+0.12)
		v.Start(at)
		v.Stop(at + 0.14)
		k.out.Play(v, graph.MusicInput, graph.ReverbInput)
	}
}

// BreakKick plays the overlay kick: 190 -> 48 Hz through a 25 Hz highpass.
func (k *Kit) BreakKick(t, g float64) {
	if g <= 0 {
		return
	}
	v := graph.NewVoice(graph.Sine, 190)
	v.AddFilter(graph.Highpass, k.out.SampleRate(), 25, 0.7071)
	v.Frequency.SetValueAtTime(190, t)
	v.Frequency.ExponentialRampToValueAtTime(48, t+0.11)
	k.envelope(v, t, 1.2*g, 0.004, 0.22)
	v.Stop(t + 0.26)
	k.out.Play(v, graph.BreakInput)
}

// BreakSnare plays a 1.8 kHz bandpassed noise hit.
func (k *Kit) BreakSnare(t, g float64) {
	if g <= 0 {
		return
	}
	v := graph.NewNoiseVoice(k.rand.Seed())
	v.AddFilter(graph.Bandpass, k.out.SampleRate(), 1800, 0.9)
	k.envelope(v, t, 1.2*g, 0.004, 0.14)
	v.Stop(t + 0.25)
	k.out.Play(v, graph.BreakInput)
}

// BreakHat plays a 9 kHz highpassed noise tick.
func (k *Kit) BreakHat(t, g float64) {
	if g <= 0 {
		return
	}
	v := graph.NewNoiseVoice(k.rand.Seed())
	v.AddFilter(graph.Highpass, k.out.SampleRate(), 9000, 0.7071)
	k.envelope(v, t, 0.9*g, 0.003, 0.05)
	v.Stop(t + 0.12)
	k.out.Play(v, graph.BreakInput)
}

// Crash plays the break entry cue. Levels at or below zero play nothing.
func (k *Kit) Crash(t, g float64) {
	if g <= 0 {
		return
	}
	v := graph.NewNoiseVoice(k.rand.Seed())
	v.AddFilter(graph.Highpass, k.out.SampleRate(), 5500, 0.7071)
	k.envelope(v, t, 1.5*g, 0.02, 1.0)
	v.Stop(t + 1.2)
	k.out.Play(v, graph.BreakInput)
}

// envelope schedules a linear attack to peak and an exponential decay that
// reaches 1e-3 at t+decay.
func (k *Kit) envelope(v *graph.Voice, t, peak, attack, decay float64) {
	v.Gain.SetValueAtTime(0, t)
	v.Gain.LinearRampToValueAtTime(peak, t+attack)
	v.Gain.ExponentialRampToValueAtTime(1e-3, t+decay)
	v.Start(t)
}
