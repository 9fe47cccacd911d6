// SPDX-License-Identifier: MIT
package graph

import (
	"math"

	"github.com/viterin/vek"
)

// unit processes one render quantum in place. buf already holds the summed
// inputs; t0 is the time of its first sample and dt the sample period.
type unit interface {
	process(buf []float64, t0, dt float64)
}

// gainUnit multiplies by an automatable gain.
type gainUnit struct {
	gain    *Param
	scratch []float64
}

func newGainUnit(def, max float64) *gainUnit {
	return &gainUnit{gain: NewParam(def, 0, max), scratch: make([]float64, Quantum)}
}

func (g *gainUnit) process(buf []float64, t0, dt float64) {
	if !g.gain.pending() {
		vek.MulNumber_Inplace(buf, g.gain.value)
		return
	}
	g.gain.fill(g.scratch[:len(buf)], t0, dt)
	vek.Mul_Inplace(buf, g.scratch[:len(buf)])
}

// delayUnit is a fractional delay line with its feedback path kept inside the
// unit, so the graph itself stays acyclic.
type delayUnit struct {
	time     *Param // seconds
	feedback *Param
	ring     []float64
	write    int
	rate     float64
	times    []float64
	fbs      []float64
}

func newDelayUnit(rate, maxSeconds, def, feedback float64) *delayUnit {
	n := int(math.Ceil(maxSeconds*rate)) + 2
	return &delayUnit{
		time:     NewParam(def, 1/rate, maxSeconds),
		feedback: NewParam(feedback, 0, 0.95),
		ring:     make([]float64, n),
		rate:     rate,
		times:    make([]float64, Quantum),
		fbs:      make([]float64, Quantum),
	}
}

func (d *delayUnit) process(buf []float64, t0, dt float64) {
	times, fbs := d.times[:len(buf)], d.fbs[:len(buf)]
	d.time.fill(times, t0, dt)
	d.feedback.fill(fbs, t0, dt)
	n := len(d.ring)
	for k, x := range buf {
		pos := float64(d.write) - times[k]*d.rate
		for pos < 0 {
			pos += float64(n)
		}
		i := int(pos)
		frac := pos - float64(i)
		a := d.ring[i%n]
		b := d.ring[(i+1)%n]
		y := a + (b-a)*frac
		d.ring[d.write] = x + y*fbs[k]
		d.write++
		if d.write == n {
			d.write = 0
		}
		buf[k] = y
	}
}

// shaperUnit is a soft clipper: (1+k)x / (1+k|x|), k = amount*60 + 1.
type shaperUnit struct {
	k float64
}

func newShaperUnit(amount float64) *shaperUnit {
	s := &shaperUnit{}
	s.setAmount(amount)
	return s
}

func (s *shaperUnit) setAmount(amount float64) {
	if !finite(amount) {
		amount = 0
	}
	amount = math.Max(0, math.Min(1, amount))
	s.k = amount*60 + 1
}

func shape(x, k float64) float64 {
	return (1 + k) * x / (1 + k*math.Abs(x))
}

func (s *shaperUnit) process(buf []float64, _, _ float64) {
	for i, x := range buf {
		buf[i] = shape(x, s.k)
	}
}

// Source feeds external audio into the graph, e.g. a decoded media track.
// Fill must write len(dst) mono samples without blocking or allocating; it
// runs on the render path.
type Source interface {
	Fill(dst []float64)
}

// sourceUnit adds the current Source output to whatever is routed into it.
type sourceUnit struct {
	src     Source
	scratch []float64
}

func (s *sourceUnit) process(buf []float64, _, _ float64) {
	if s.src == nil {
		return
	}
	s.src.Fill(s.scratch[:len(buf)])
	vek.Add_Inplace(buf, s.scratch[:len(buf)])
}

// tapUnit is a pass-through that keeps the last len(ring) samples for analysis.
type tapUnit struct {
	ring  []float64
	write int
}

func newTapUnit(size int) *tapUnit {
	return &tapUnit{ring: make([]float64, size)}
}

func (t *tapUnit) process(buf []float64, _, _ float64) {
	for _, x := range buf {
		t.ring[t.write] = x
		t.write++
		if t.write == len(t.ring) {
			t.write = 0
		}
	}
}

// snapshot copies the ring into dst, oldest sample first.
func (t *tapUnit) snapshot(dst []float64) {
	n := copy(dst, t.ring[t.write:])
	copy(dst[n:], t.ring[:t.write])
}

// passUnit sums its inputs and does nothing else.
type passUnit struct{}

func (passUnit) process([]float64, float64, float64) {}
