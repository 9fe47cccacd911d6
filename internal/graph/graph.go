// SPDX-License-Identifier: MIT
//
// Package graph is the realtime signal graph: a fixed, acyclic topology of
// processing units built once, plus short-lived voices attached to named
// targets. Rendering runs in quanta of Quantum frames, mono internally and
// duplicated to every output channel.
package graph

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek"
)

// Quantum is the number of frames rendered per graph pass.
const Quantum = 128

// ErrCycle is returned when the topology cannot be ordered.
var ErrCycle = errors.New("graph: topology contains a cycle")

// Options configures the topology. Values are expected to be clamped
// already; the graph clamps again through its Param ranges.
type Options struct {
	SampleRate      float64
	EngineThroughFX bool
	AnalyserSize    int
	MasterGain      float64 // MediaBus baseline
	TechnoGain      float64 // EngineBus baseline
	BassBoostDB     float64
	TrebleBoostDB   float64
	LowpassHz       float64
	DelaySend       float64
	DelayTime       float64 // seconds
	DelayFeedback   float64
	GlueSend        float64
	ReverbSend      float64
	SatAmount       float64
	Seed            uint64 // reverb impulse response
}

type clock struct {
	frames atomic.Int64
	rate   float64
}

func (c *clock) seconds() float64 {
	return float64(c.frames.Load()) / c.rate
}

type node struct {
	name   string
	unit   unit
	inputs []*node
	buf    []float64
}

// Graph owns every unit and voice. All mutation and rendering is serialised
// by one mutex.
type Graph struct {
	mu    sync.Mutex
	opts  Options
	built bool
	clock clock

	order   []*node
	bus     [busCount]*gainUnit
	targets [targetCount]*node
	params  [paramCount]*Param

	voices  []*Voice
	media   *sourceUnit
	shaper  *shaperUnit
	tap     *tapUnit
	final   *node

	block []float64
	pos   int
}

// New returns an unbuilt graph. Nothing is allocated until EnsureBuilt.
func New(opts Options) *Graph {
	if opts.SampleRate <= 0 || !finite(opts.SampleRate) {
		opts.SampleRate = 44100
	}
	if opts.AnalyserSize <= 0 {
		opts.AnalyserSize = 1024
	}
	g := &Graph{opts: opts}
	g.clock.rate = opts.SampleRate
	return g
}

// SampleRate returns the render rate in Hz.
func (g *Graph) SampleRate() float64 {
	return g.opts.SampleRate
}

// Now returns the render clock in seconds: frames rendered / sample rate.
func (g *Graph) Now() float64 {
	return g.clock.seconds()
}

// Built reports whether EnsureBuilt has completed.
func (g *Graph) Built() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.built
}

// EnsureBuilt constructs the topology on first call and is a no-op afterwards.
// Either every unit is wired or none is.
func (g *Graph) EnsureBuilt() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.built {
		return nil
	}
	if err := g.build(); err != nil {
		return fmt.Errorf("failed to build signal graph: %w", err)
	}
	g.built = true
	return nil
}

func (g *Graph) build() error {
	o := g.opts
	sr := o.SampleRate
	var nodes []*node
	add := func(name string, u unit, inputs ...*node) *node {
		n := &node{name: name, unit: u, inputs: inputs, buf: make([]float64, Quantum)}
		nodes = append(nodes, n)
		return n
	}
	bus := func(b Bus, def float64, inputs ...*node) *node {
		u := newGainUnit(def, busMax)
		g.bus[b] = u
		return add(b.String(), u, inputs...)
	}

	// Media chain: input -> shelves -> lowpass -> dry split.
	media := &sourceUnit{scratch: make([]float64, Quantum)}
	mediaIn := add("media-in", media)
	bassShelf := NewBiquad(LowShelf, sr, 200, 0.7071)
	bassShelf.Gain = NewParam(o.BassBoostDB, -24, 24)
	trebleShelf := NewBiquad(HighShelf, sr, 2000, 0.7071)
	trebleShelf.Gain = NewParam(o.TrebleBoostDB, -24, 24)
	lpf := NewBiquad(Lowpass, sr, o.LowpassHz, 0.7071)
	nBass := add("bass-shelf", bassShelf, mediaIn)
	nTreble := add("treble-shelf", trebleShelf, nBass)
	nLPF := add("lowpass", lpf, nTreble)
	dry := add("dry", passUnit{}, nLPF)

	delaySend := newGainUnit(o.DelaySend, 1)
	nDelaySend := add("delay-send", delaySend, dry)
	delay := newDelayUnit(sr, maxDelay, o.DelayTime, o.DelayFeedback)
	nDelay := add("delay", delay, nDelaySend)
	nDelayReturn := add("delay-return", passUnit{}, nDelay)
	mediaBus := bus(MediaBus, o.MasterGain, dry, nDelayReturn)

	// Engine: kick straight into the trim, everything else through the duck.
	reverbSend := newGainUnit(o.ReverbSend, 1)
	nReverbSend := add("reverb-send", reverbSend)
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed+1))
	nReverb := add("reverb", newConvolverUnit(NoiseTail(sr, 0.6, rng)), nReverbSend)
	music := add("music", passUnit{}, nReverb)
	duck := newGainUnit(1, 1)
	nDuck := add("duck", duck, music)
	engineBus := bus(EngineBus, o.TechnoGain)
	engineOut := engineBus
	if o.EngineThroughFX {
		// The media chain and its bus gain stand in for the engine trim.
		engineOut = add("engine-fx", passUnit{}, nDuck)
		mediaIn.inputs = append(mediaIn.inputs, engineOut)
	} else {
		engineBus.inputs = append(engineBus.inputs, nDuck)
	}

	// Break overlay: saturation -> limiter -> {gain -> sum, glue -> delay}.
	breakIn := add("break-in", passUnit{})
	shaper := newShaperUnit(o.SatAmount)
	nShaper := add("break-sat", shaper, breakIn)
	nBreakLimiter := add("break-limiter", newCompressorUnit(BreakLimiter, sr), nShaper)
	breakBus := bus(BreakBus, 0, nBreakLimiter)
	glue := newGainUnit(o.GlueSend, 1)
	nGlue := add("glue-send", glue, nBreakLimiter)
	nDelay.inputs = append(nDelay.inputs, nGlue)

	sumInputs := []*node{mediaBus, breakBus}
	if !o.EngineThroughFX {
		sumInputs = append(sumInputs, engineBus)
	}
	sum := bus(SumBus, 1, sumInputs...)
	nLimiter := add("final-limiter", newCompressorUnit(FinalLimiter, sr), sum)
	final := bus(FinalOutput, 1, nLimiter)
	tap := newTapUnit(o.AnalyserSize)
	out := add("analyser", tap, final)

	order, err := sortNodes(nodes)
	if err != nil {
		return err
	}

	g.order = order
	g.media = media
	g.shaper = shaper
	g.tap = tap
	g.final = out
	g.targets = [targetCount]*node{
		EngineInput: engineOut,
		MusicInput:  music,
		ReverbInput: nReverbSend,
		BreakInput:  breakIn,
	}
	g.params = [paramCount]*Param{
		MediaLowpass:    lpf.Frequency,
		BassShelfGain:   bassShelf.Gain,
		TrebleShelfGain: trebleShelf.Gain,
		DelayTime:       delay.time,
		DelayFeedback:   delay.feedback,
		DelaySendLevel:  delaySend.gain,
		GlueSendLevel:   glue.gain,
		ReverbSendLevel: reverbSend.gain,
		MusicDuck:       duck.gain,
	}
	for _, p := range g.params {
		p.bind(&g.mu, &g.clock)
	}
	for _, b := range g.bus {
		b.gain.bind(&g.mu, &g.clock)
	}
	for _, n := range order {
		if bq, ok := n.unit.(*Biquad); ok {
			for _, p := range bq.params() {
				p.bind(&g.mu, &g.clock)
			}
		}
	}
	g.voices = make([]*Voice, 0, 256)
	g.block = make([]float64, Quantum)
	g.pos = Quantum
	return nil
}

// sortNodes orders nodes so that every node follows all of its inputs (Kahn).
func sortNodes(nodes []*node) ([]*node, error) {
	indeg := make(map[*node]int, len(nodes))
	outs := make(map[*node][]*node, len(nodes))
	for _, n := range nodes {
		indeg[n] += 0
		for _, in := range n.inputs {
			indeg[n]++
			outs[in] = append(outs[in], n)
		}
	}
	var queue, order []*node
	for _, n := range nodes {
		if indeg[n] == 0 {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, m := range outs[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

// SetMedia swaps the external source feeding the media chain. nil silences it.
func (g *Graph) SetMedia(src Source) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.media != nil {
		g.media.src = src
	}
}

// SetSaturation changes the break path soft-clip amount.
func (g *Graph) SetSaturation(amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shaper != nil {
		g.shaper.setAmount(amount)
	}
}

// Play attaches v to the given targets. The voice's Params are bound to the
// graph lock, so the caller must not write them unlocked afterwards.
func (g *Graph) Play(v *Voice, targets ...Target) {
	if v == nil || len(targets) == 0 {
		return
	}
	v.bind(&g.mu, &g.clock)
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.built {
		return
	}
	v.targets = v.targets[:0]
	for _, t := range targets {
		if t >= 0 && t < targetCount {
			v.targets = append(v.targets, g.targets[t])
		}
	}
	g.voices = append(g.voices, v)
}

// ActiveVoices reports how many voices are attached.
func (g *Graph) ActiveVoices() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

// Snapshot copies the most recent len(dst) analyser samples into dst, oldest
// first. dst must not be longer than the analyser size.
func (g *Graph) Snapshot(dst []float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tap == nil {
		clear(dst)
		return
	}
	if len(dst) == len(g.tap.ring) {
		g.tap.snapshot(dst)
		return
	}
	// Shorter windows take the newest samples.
	n := len(g.tap.ring)
	for i := range dst {
		dst[i] = g.tap.ring[(g.tap.write-len(dst)+i+n)%n]
	}
}

// renderQuantum advances the graph by one quantum. Callers hold g.mu.
func (g *Graph) renderQuantum() {
	dt := 1 / g.opts.SampleRate
	t0 := float64(g.clock.frames.Load()) * dt
	tEnd := t0 + Quantum*dt

	for _, n := range g.order {
		clear(n.buf)
	}

	live := g.voices[:0]
	for _, v := range g.voices {
		if v.start >= tEnd {
			// Not started; timelines still have to wait.
			live = append(live, v)
			continue
		}
		buf := v.render(t0, dt)
		for _, n := range v.targets {
			vek.Add_Inplace(n.buf, buf)
		}
		if v.stop > tEnd {
			live = append(live, v)
		}
	}
	for i := len(live); i < len(g.voices); i++ {
		g.voices[i] = nil
	}
	g.voices = live

	for _, n := range g.order {
		for _, in := range n.inputs {
			vek.Add_Inplace(n.buf, in.buf)
		}
		n.unit.process(n.buf, t0, dt)
	}
	copy(g.block, g.final.buf)
	g.clock.frames.Add(Quantum)
}

// Render fills out with interleaved float32 frames for the given channel
// count. It never allocates and never blocks on anything but the graph
// lock. An unbuilt graph renders silence.
func (g *Graph) Render(out []float32, channels int) {
	if channels < 1 {
		channels = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.built {
		clear(out)
		return
	}
	for f := 0; f+channels <= len(out); f += channels {
		if g.pos == Quantum {
			g.renderQuantum()
			g.pos = 0
		}
		s := float32(g.block[g.pos])
		g.pos++
		for c := range channels {
			out[f+c] = s
		}
	}
}

// RenderMono fills dst with mono samples.
func (g *Graph) RenderMono(dst []float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.built {
		clear(dst)
		return
	}
	for i := range dst {
		if g.pos == Quantum {
			g.renderQuantum()
			g.pos = 0
		}
		dst[i] = g.block[g.pos]
		g.pos++
	}
}

// Advance renders and discards d seconds of audio. Offline tests use it to
// move the clock past scheduled ramps.
func (g *Graph) Advance(d float64) {
	frames := int(math.Ceil(d * g.opts.SampleRate))
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.built {
		return
	}
	for frames > 0 {
		if g.pos == Quantum {
			g.renderQuantum()
			g.pos = 0
		}
		step := min(Quantum-g.pos, frames)
		g.pos += step
		frames -= step
	}
}
