// SPDX-License-Identifier: MIT
package graph

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Waveform selects a Voice's signal source.
type Waveform uint8

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Noise
)

// Voice is a signal generator with an optional filter chain and a gain
// envelope: source -> filters -> Gain. It is built and automated on the
// control thread, then handed to Graph.Play; from then on its Params lock the
// graph. A voice whose stop time has passed is dropped by the renderer.
type Voice struct {
	Wave      Waveform
	Frequency *Param // Hz, ignored for Noise
	Gain      *Param

	filters []*Biquad
	start   float64
	stop    float64

	phase   float64
	noise   *rand.PCG
	targets []*node

	buf   []float64
	freqs []float64
	gains []float64
}

// NewVoice returns an unbound voice at freq Hz with zero gain. It starts at
// time 0 and never stops until Start/Stop say otherwise.
func NewVoice(w Waveform, freq float64) *Voice {
	return &Voice{
		Wave:      w,
		Frequency: NewParam(freq, 0, 24000),
		Gain:      NewParam(0, 0, 4),
		stop:      math.Inf(1),
		buf:       make([]float64, Quantum),
		freqs:     make([]float64, Quantum),
		gains:     make([]float64, Quantum),
	}
}

// NewNoiseVoice returns a white-noise voice drawing from a PCG stream seeded
// with seed.
func NewNoiseVoice(seed uint64) *Voice {
	v := NewVoice(Noise, 0)
	v.noise = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return v
}

// AddFilter appends a biquad stage and returns it for automation.
func (v *Voice) AddFilter(kind FilterType, rate, freq, q float64) *Biquad {
	b := NewBiquad(kind, rate, freq, q)
	v.filters = append(v.filters, b)
	return b
}

// Start sets the time the source begins producing signal.
func (v *Voice) Start(t float64) {
	if finite(t) {
		v.start = t
	}
}

// Stop sets the time after which the voice is silent and released.
func (v *Voice) Stop(t float64) {
	if finite(t) {
		v.stop = t
	}
}

// StopTime reports when the voice will be released.
func (v *Voice) StopTime() float64 {
	return v.stop
}

func (v *Voice) bind(mu *sync.Mutex, c *clock) {
	v.Frequency.bind(mu, c)
	v.Gain.bind(mu, c)
	for _, f := range v.filters {
		for _, p := range f.params() {
			p.bind(mu, c)
		}
	}
}

// render produces one block into v.buf. Samples before start and at or after
// stop are silent.
func (v *Voice) render(t0, dt float64) []float64 {
	n := Quantum
	buf, freqs, gains := v.buf[:n], v.freqs[:n], v.gains[:n]
	v.Frequency.fill(freqs, t0, dt)
	v.Gain.fill(gains, t0, dt)
	for k := range buf {
		t := t0 + float64(k)*dt
		if t < v.start || t >= v.stop {
			buf[k] = 0
			continue
		}
		buf[k] = v.sample(freqs[k], dt)
	}
	for _, f := range v.filters {
		f.process(buf, t0, dt)
	}
	for k := range buf {
		buf[k] *= gains[k]
	}
	return buf
}

func (v *Voice) sample(freq, dt float64) float64 {
	if v.Wave == Noise {
		if v.noise == nil {
			return 0
		}
		return float64(v.noise.Uint64()>>11)/(1<<53)*2 - 1
	}
	ph := v.phase
	v.phase += freq * dt
	v.phase -= math.Floor(v.phase)
	switch v.Wave {
	case Square:
		if ph < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*ph - 1
	default:
		return math.Sin(2 * math.Pi * ph)
	}
}
