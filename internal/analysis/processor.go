// SPDX-License-Identifier: MIT
//
// Package analysis extracts the features the visual layer consumes from the
// final output: three band levels, an overall level and a kick pulse that
// combines bass transients with the engine's own kick triggers. It also
// drives the media-bus pump from that pulse.
package analysis

import (
	"fmt"
	"math"
	"sync"
	"time"

	"handbeat/internal/config"
	"handbeat/internal/graph"
	"handbeat/internal/log"
)

var logger = log.For("Analysis")

// maxPump caps the pump depth so the media bus never vanishes on a kick.
const maxPump = 0.85

// Source provides time-domain samples of the final output, oldest first.
type Source interface {
	Snapshot(dst []float64)
}

// Clock reports the audio time in seconds.
type Clock interface {
	Now() float64
}

// Scaler ramps one bus relative to its baseline.
type Scaler interface {
	Scale(b graph.Bus, factor, at, ramp float64)
}

// Gate reports whether another component owns the main-mix gain at now.
type Gate interface {
	Ducking(now float64) bool
}

// Features is one analysis frame. Every value is in [0,1].
type Features struct {
	Bass      float64 `json:"bass"`
	Mid       float64 `json:"mid"`
	Treble    float64 `json:"treble"`
	Level     float64 `json:"level"`
	KickPulse float64 `json:"kickPulse"`
	Time      float64 `json:"time"` // audio clock, seconds
}

// Values returns the five feature values in wire order.
func (f Features) Values() [5]float64 {
	return [5]float64{f.Bass, f.Mid, f.Treble, f.Level, f.KickPulse}
}

// Analyzer is the spectral feature extractor. Tick runs on the control
// thread; Features may be read from any goroutine.
type Analyzer struct {
	src       Source
	clock     Clock
	spectrum  *Spectrum
	bands     Bands
	kick      KickDetector
	synthetic *SyntheticKick
	block     []float64
	interval  time.Duration

	pump     float64
	pumpOut  Scaler
	pumpGate Gate

	mu     sync.RWMutex
	latest Features
	levels []float64
}

// New builds an analyzer over src from the resolved analysis config.
func New(src Source, clock Clock, sampleRate float64, cfg config.AnalysisConfig) (*Analyzer, error) {
	if src == nil || clock == nil {
		return nil, fmt.Errorf("analyzer requires a source and a clock")
	}
	win, err := ParseWindowFunc(cfg.FFTWindow)
	if err != nil {
		logger.Warnf("%v, using %v", err, win)
	}
	spec, err := NewSpectrum(SpectrumConfig{
		FFTSize:     cfg.FFTSize,
		SampleRate:  sampleRate,
		Window:      win,
		Smoothing:   cfg.Smoothing,
		MinDecibels: cfg.MinDecibels,
		MaxDecibels: cfg.MaxDecibels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create spectrum: %w", err)
	}
	a := &Analyzer{
		src:       src,
		clock:     clock,
		spectrum:  spec,
		bands:     NewBands(spec.Bins()),
		synthetic: NewSyntheticKick(),
		block:     make([]float64, cfg.FFTSize),
		interval:  cfg.Interval(),
		levels:    make([]float64, spec.Bins()),
	}
	return a, nil
}

// SetPump enables the media-bus pump: on each tick out scales MediaBus to
// baseline*(1 - amount*kickPulse), unless gate reports the mix is owned by
// someone else.
func (a *Analyzer) SetPump(out Scaler, gate Gate, amount float64) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	a.pumpOut = out
	a.pumpGate = gate
	a.pump = math.Max(0, math.Min(maxPump, amount))
}

// Kick is the subscription the sequencer calls on every kick trigger.
func (a *Analyzer) Kick(t float64) {
	a.synthetic.Trigger(t)
}

// Interval returns the tick period.
func (a *Analyzer) Interval() time.Duration {
	return a.interval
}

// Tick runs one analysis pass and returns the new frame.
func (a *Analyzer) Tick() Features {
	now := a.clock.Now()
	a.src.Snapshot(a.block)
	levels := a.spectrum.Process(a.block)
	e := a.bands.Measure(levels)

	audioKick := a.kick.Process(e.Bass)
	engineKick := a.synthetic.Process(now)
	f := Features{
		Bass:      clamp01(e.Bass),
		Mid:       clamp01(e.Mid),
		Treble:    clamp01(e.Treble),
		Level:     clamp01(e.Level),
		KickPulse: math.Max(audioKick, engineKick),
		Time:      now,
	}

	a.applyPump(now, f.KickPulse)

	a.mu.Lock()
	a.latest = f
	copy(a.levels, levels)
	a.mu.Unlock()
	return f
}

func (a *Analyzer) applyPump(now, kick float64) {
	if a.pumpOut == nil || a.pump == 0 {
		return
	}
	if a.pumpGate != nil && a.pumpGate.Ducking(now) {
		return
	}
	factor := math.Max(0, math.Min(2, 1-a.pump*kick))
	a.pumpOut.Scale(graph.MediaBus, factor, now, a.interval.Seconds())
}

// Features returns the latest frame.
func (a *Analyzer) Features() Features {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// LevelsInto copies the latest per-bin levels into dst.
func (a *Analyzer) LevelsInto(dst []float64) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(dst) != len(a.levels) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dst), len(a.levels))
	}
	copy(dst, a.levels)
	return nil
}

// Bins returns the number of analysis bins.
func (a *Analyzer) Bins() int {
	return a.bands.N
}

// Bands returns the band partition in use.
func (a *Analyzer) Bands() Bands {
	return a.bands
}
