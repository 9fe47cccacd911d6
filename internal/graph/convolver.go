// SPDX-License-Identifier: MIT
package graph

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/dsp/fourier"
)

// convolverUnit is a uniformly partitioned overlap-save FFT convolver. The
// impulse response is cut into Quantum-sized partitions, each transformed once
// at construction; every quantum costs one forward and one inverse FFT of size
// 2*Quantum plus a complex multiply-accumulate per partition.
type convolverUnit struct {
	fft   *fourier.FFT
	parts [][]complex128 // partition spectra
	fdl   [][]complex128 // frequency-domain delay line of input spectra
	head  int
	scale float64 // undoes the unnormalised inverse transform

	window []float64 // previous block followed by current block
	acc    []complex128
	out    []float64
}

func newConvolverUnit(ir []float64) *convolverUnit {
	const b = Quantum
	n := 2 * b
	c := &convolverUnit{
		fft:    fourier.NewFFT(n),
		window: make([]float64, n),
		acc:    make([]complex128, n/2+1),
		out:    make([]float64, n),
	}

	// Measure the round-trip gain instead of assuming the library's convention.
	probe := make([]float64, n)
	probe[0] = 1
	round := c.fft.Sequence(nil, c.fft.Coefficients(nil, probe))
	c.scale = 1 / round[0]

	parts := (len(ir) + b - 1) / b
	if parts == 0 {
		parts = 1
	}
	seg := make([]float64, n)
	for p := range parts {
		clear(seg)
		lo := p * b
		hi := min(lo+b, len(ir))
		if lo < hi {
			copy(seg, ir[lo:hi])
		}
		c.parts = append(c.parts, c.fft.Coefficients(nil, seg))
		c.fdl = append(c.fdl, make([]complex128, n/2+1))
	}
	return c
}

func (c *convolverUnit) process(buf []float64, _, _ float64) {
	const b = Quantum
	if len(buf) != b {
		// Partial quanta never reach the convolver; the renderer always
		// works in whole quanta.
		return
	}
	copy(c.window, c.window[b:])
	copy(c.window[b:], buf)

	c.head--
	if c.head < 0 {
		c.head = len(c.fdl) - 1
	}
	c.fft.Coefficients(c.fdl[c.head], c.window)

	clear(c.acc)
	for p, h := range c.parts {
		x := c.fdl[(c.head+p)%len(c.fdl)]
		for k := range c.acc {
			c.acc[k] += x[k] * h[k]
		}
	}
	c.fft.Sequence(c.out, c.acc)
	for i := range buf {
		buf[i] = c.out[b+i] * c.scale
	}
}

// NoiseTail returns a decaying noise impulse response of the given length in
// seconds, normalised to unit energy: (rand*2-1) * (1 - i/len)^2.5.
func NoiseTail(rate, seconds float64, rng *rand.Rand) []float64 {
	n := int(rate * seconds)
	if n < 1 {
		n = 1
	}
	ir := make([]float64, n)
	var energy float64
	for i := range ir {
		v := (rng.Float64()*2 - 1) * math.Pow(1-float64(i)/float64(n), 2.5)
		ir[i] = v
		energy += v * v
	}
	if energy > 0 {
		g := 1 / math.Sqrt(energy)
		for i := range ir {
			ir[i] *= g
		}
	}
	return ir
}
