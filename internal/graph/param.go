// SPDX-License-Identifier: MIT
package graph

import (
	"math"
	"sync"
)

type eventKind uint8

const (
	setValue eventKind = iota
	linearRamp
	exponentialRamp
)

type event struct {
	kind  eventKind
	time  float64
	value float64
}

// minExpValue keeps exponential ramps away from zero, where the curve is undefined.
const minExpValue = 1e-4

// Param is an automatable value with a timeline of scheduled events.
//
// Before a Param is attached to a live graph it can be written freely. Once
// bound, every exported method takes the graph lock, so the control thread and
// the renderer never touch the timeline at the same time. The renderer itself
// uses the unexported helpers while already holding that lock.
type Param struct {
	mu       *sync.Mutex
	value    float64 // value at the end of the last rendered quantum
	min, max float64
	events   []event
	clock    *clock
}

// NewParam returns an unbound Param holding def, limited to [min, max].
func NewParam(def, min, max float64) *Param {
	if min > max {
		min, max = max, min
	}
	p := &Param{min: min, max: max, events: make([]event, 0, 8)}
	p.value = p.clamp(def)
	return p
}

func (p *Param) bind(mu *sync.Mutex, c *clock) {
	p.mu = mu
	p.clock = c
}

func (p *Param) lock() {
	if p.mu != nil {
		p.mu.Lock()
	}
}

func (p *Param) unlock() {
	if p.mu != nil {
		p.mu.Unlock()
	}
}

func (p *Param) clamp(v float64) float64 {
	if v < p.min {
		return p.min
	}
	if v > p.max {
		return p.max
	}
	return v
}

// Range reports the Param's safe range.
func (p *Param) Range() (min, max float64) {
	return p.min, p.max
}

// Value returns the value at the end of the most recently rendered quantum,
// or the default if nothing has rendered yet.
func (p *Param) Value() float64 {
	p.lock()
	defer p.unlock()
	return p.value
}

// ValueAt evaluates the timeline at time t without advancing it.
func (p *Param) ValueAt(t float64) float64 {
	p.lock()
	defer p.unlock()
	return p.valueAt(t)
}

// SetValueAtTime schedules a step to v at time t. Non-finite input is ignored.
func (p *Param) SetValueAtTime(v, t float64) {
	if !finite(v) || !finite(t) {
		return
	}
	p.lock()
	p.insert(event{kind: setValue, time: t, value: p.clamp(v)})
	p.unlock()
}

// LinearRampToValueAtTime ramps linearly from the previous event to v, arriving at t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	if !finite(v) || !finite(t) {
		return
	}
	p.lock()
	p.anchor(t)
	p.insert(event{kind: linearRamp, time: t, value: p.clamp(v)})
	p.unlock()
}

// ExponentialRampToValueAtTime ramps exponentially from the previous event to v,
// arriving at t. Targets at or below zero are raised to a small positive floor.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) {
	if !finite(v) || !finite(t) {
		return
	}
	if v < minExpValue {
		v = minExpValue
	}
	p.lock()
	p.anchor(t)
	p.insert(event{kind: exponentialRamp, time: t, value: p.clamp(v)})
	p.unlock()
}

// CancelScheduledValues removes every event at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	if !finite(t) {
		return
	}
	p.lock()
	p.cancel(t)
	p.unlock()
}

// CancelAndHoldAtTime removes events at or after t and pins the value the
// timeline had at t, so a following ramp starts without a jump.
func (p *Param) CancelAndHoldAtTime(t float64) {
	if !finite(t) {
		return
	}
	p.lock()
	v := p.valueAt(t)
	p.cancel(t)
	p.insert(event{kind: setValue, time: t, value: v})
	p.unlock()
}

// RampTo holds the current trajectory at `at` and ramps linearly to v over d seconds.
func (p *Param) RampTo(v, at, d float64) {
	if !finite(v) || !finite(at) || !finite(d) {
		return
	}
	if d <= 0 {
		d = MinRamp
	}
	p.lock()
	hold := p.valueAt(at)
	p.cancel(at)
	p.insert(event{kind: setValue, time: at, value: hold})
	p.insert(event{kind: linearRamp, time: at + d, value: p.clamp(v)})
	p.unlock()
}

// anchor inserts a start point for a ramp ending at t when nothing precedes it,
// so it interpolates from the current value instead of jumping.
func (p *Param) anchor(t float64) {
	for _, e := range p.events {
		if e.time < t {
			return
		}
	}
	at := 0.0
	if p.clock != nil {
		at = p.clock.seconds()
	}
	if at > t {
		at = t
	}
	p.insert(event{kind: setValue, time: at, value: p.value})
}

// insert keeps events ordered by time; equal times keep insertion order.
func (p *Param) insert(e event) {
	i := len(p.events)
	for i > 0 && p.events[i-1].time > e.time {
		i--
	}
	p.events = append(p.events, event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) cancel(t float64) {
	n := 0
	for _, e := range p.events {
		if e.time < t {
			p.events[n] = e
			n++
		}
	}
	p.events = p.events[:n]
}

// valueAt evaluates the timeline at t. Callers hold the lock.
func (p *Param) valueAt(t float64) float64 {
	i := 0
	for i < len(p.events) && p.events[i].time <= t {
		i++
	}
	return p.eval(i, t)
}

// eval computes the value at t given i, the count of events at or before t.
func (p *Param) eval(i int, t float64) float64 {
	if i == len(p.events) {
		if i == 0 {
			return p.value
		}
		return p.events[i-1].value
	}
	next := p.events[i]
	if i == 0 {
		return p.value
	}
	prev := p.events[i-1]
	switch next.kind {
	case linearRamp:
		span := next.time - prev.time
		if span <= 0 {
			return next.value
		}
		return prev.value + (next.value-prev.value)*(t-prev.time)/span
	case exponentialRamp:
		span := next.time - prev.time
		if span <= 0 {
			return next.value
		}
		if prev.value <= 0 || next.value <= 0 {
			return prev.value
		}
		return prev.value * math.Pow(next.value/prev.value, (t-prev.time)/span)
	default:
		return prev.value
	}
}

// fill writes the value for each sample time t0 + k*dt into dst and advances the
// timeline past the block, dropping events no later ramp depends on. Callers hold
// the lock.
func (p *Param) fill(dst []float64, t0, dt float64) {
	if len(p.events) == 0 {
		for k := range dst {
			dst[k] = p.value
		}
		return
	}
	i := 0
	for k := range dst {
		t := t0 + float64(k)*dt
		for i < len(p.events) && p.events[i].time <= t {
			i++
		}
		dst[k] = p.eval(i, t)
	}
	p.value = dst[len(dst)-1]
	// Keep the last event at or before the block end as the anchor for any
	// ramp that follows it.
	if i > 1 {
		n := copy(p.events, p.events[i-1:])
		p.events = p.events[:n]
	}
	if len(p.events) == 1 && p.events[0].time <= t0+float64(len(dst)-1)*dt {
		p.value = p.events[0].value
		p.events = p.events[:0]
	}
}

// pending reports whether any event is still scheduled.
func (p *Param) pending() bool {
	return len(p.events) > 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
