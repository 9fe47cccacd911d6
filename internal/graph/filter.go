// SPDX-License-Identifier: MIT
package graph

import "math"

// FilterType selects the biquad response.
type FilterType uint8

const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
	LowShelf
	HighShelf
)

func (f FilterType) String() string {
	switch f {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	case Bandpass:
		return "bandpass"
	case LowShelf:
		return "lowshelf"
	case HighShelf:
		return "highshelf"
	default:
		return "unknown"
	}
}

// Biquad is a second order IIR section using the RBJ cookbook formulas,
// processed in transposed direct form II. Coefficients are recomputed only
// when one of the automated inputs changes value.
type Biquad struct {
	Type      FilterType
	Frequency *Param // Hz
	Q         *Param
	Gain      *Param // dB, shelves only

	rate               float64
	b0, b1, b2, a1, a2 float64
	z1, z2             float64
	lastF, lastQ       float64
	lastG              float64

	freqs, qs, gains []float64
}

// NewBiquad returns an unbound filter for the given sample rate.
func NewBiquad(kind FilterType, rate, freq, q float64) *Biquad {
	nyq := rate / 2
	b := &Biquad{
		Type:      kind,
		Frequency: NewParam(freq, 10, nyq*0.999),
		Q:         NewParam(q, 0.0001, 100),
		Gain:      NewParam(0, -40, 40),
		rate:      rate,
		lastF:     math.NaN(),
		freqs:     make([]float64, Quantum),
		qs:        make([]float64, Quantum),
		gains:     make([]float64, Quantum),
	}
	return b
}

func (b *Biquad) params() []*Param {
	return []*Param{b.Frequency, b.Q, b.Gain}
}

func (b *Biquad) design(f, q, g float64) {
	b.lastF, b.lastQ, b.lastG = f, q, g
	w0 := 2 * math.Pi * f / b.rate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.Type {
	case Lowpass:
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = b0
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case Highpass:
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = b0
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case Bandpass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case LowShelf, HighShelf:
		A := math.Pow(10, g/40)
		// Shelf slope S = 1.
		sa := 2 * math.Sqrt(A) * (sinw / 2 * math.Sqrt2)
		if b.Type == LowShelf {
			b0 = A * ((A + 1) - (A-1)*cosw + sa)
			b1 = 2 * A * ((A - 1) - (A+1)*cosw)
			b2 = A * ((A + 1) - (A-1)*cosw - sa)
			a0 = (A + 1) + (A-1)*cosw + sa
			a1 = -2 * ((A - 1) + (A+1)*cosw)
			a2 = (A + 1) + (A-1)*cosw - sa
		} else {
			b0 = A * ((A + 1) + (A-1)*cosw + sa)
			b1 = -2 * A * ((A - 1) + (A+1)*cosw)
			b2 = A * ((A + 1) + (A-1)*cosw - sa)
			a0 = (A + 1) - (A-1)*cosw + sa
			a1 = 2 * ((A - 1) - (A+1)*cosw)
			a2 = (A + 1) - (A-1)*cosw - sa
		}
	}
	b.b0, b.b1, b.b2 = b0/a0, b1/a0, b2/a0
	b.a1, b.a2 = a1/a0, a2/a0
}

func (b *Biquad) process(buf []float64, t0, dt float64) {
	n := len(buf)
	freqs, qs, gains := b.freqs[:n], b.qs[:n], b.gains[:n]
	b.Frequency.fill(freqs, t0, dt)
	b.Q.fill(qs, t0, dt)
	b.Gain.fill(gains, t0, dt)
	z1, z2 := b.z1, b.z2
	for k, x := range buf {
		if freqs[k] != b.lastF || qs[k] != b.lastQ || gains[k] != b.lastG {
			b.design(freqs[k], qs[k], gains[k])
		}
		y := b.b0*x + z1
		z1 = b.b1*x - b.a1*y + z2
		z2 = b.b2*x - b.a2*y
		buf[k] = y
	}
	// Flush denormals once the tail has decayed.
	if math.Abs(z1) < 1e-20 {
		z1 = 0
	}
	if math.Abs(z2) < 1e-20 {
		z2 = 0
	}
	b.z1, b.z2 = z1, z2
}

// Response returns the filter's magnitude response at freq for its current
// settings. Useful for inspecting a design without rendering audio.
func (b *Biquad) Response(freq float64) float64 {
	b.design(b.Frequency.value, b.Q.value, b.Gain.value)
	w := 2 * math.Pi * freq / b.rate
	// H(e^jw) = (b0 + b1 z^-1 + b2 z^-2) / (1 + a1 z^-1 + a2 z^-2)
	c1, s1 := math.Cos(w), math.Sin(w)
	c2, s2 := math.Cos(2*w), math.Sin(2*w)
	nr := b.b0 + b.b1*c1 + b.b2*c2
	ni := -b.b1*s1 - b.b2*s2
	dr := 1 + b.a1*c1 + b.a2*c2
	di := -b.a1*s1 - b.a2*s2
	return math.Sqrt((nr*nr + ni*ni) / (dr*dr + di*di))
}
