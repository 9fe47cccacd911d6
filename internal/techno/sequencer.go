// SPDX-License-Identifier: MIT
//
// Package techno is the main procedural groove: a four-on-the-floor kick with
// a sidechain duck on everything else, claps on the backbeats, offbeat hats,
// a quantized bass line and chord stabs, all taken from the active preset.
package techno

import (
	"fmt"
	"math"

	"handbeat/internal/config"
	"handbeat/internal/ducking"
	"handbeat/internal/graph"
	"handbeat/internal/log"
	"handbeat/internal/scheduler"
	"handbeat/internal/synth"
)

// Step timings and levels.
const (
	leadIn       = 0.05
	bassLength   = 0.22
	chordLength  = 0.16
	chordVel     = 0.18
	chordVelCalm = 0.16
	reverbBump   = 0.03
	reverbMax    = 0.22
	defaultRoot  = 36
)

// Graph is the part of the signal graph the sequencer plays into.
type Graph interface {
	synth.Player
	Now() float64
	Param(id graph.ParamID) *graph.Param
}

// instruments plays the voices of one step. Within a step the sequencer
// calls them kick first, then percussion, hats and tonal voices.
type instruments interface {
	Kick(t float64, calm bool)
	Clap(t, level float64, calm bool)
	Hat(t float64, open bool, density float64, calm bool)
	Bass(t float64, midi int, length, velocity, cutoff float64)
	Chord(t float64, rootMidi int, length, velocity float64)
}

// band plays the synth recipes.
type band struct {
	kit    *synth.Kit
	bass   *synth.Bass
	chords *synth.Chords
}

func (b band) Kick(t float64, calm bool) { b.kit.Kick(t, calm) }

func (b band) Clap(t, level float64, calm bool) { b.kit.Clap(t, level, calm) }

func (b band) Hat(t float64, open bool, density float64, calm bool) {
	b.kit.Hat(t, open, density, calm)
}

func (b band) Bass(t float64, midi int, length, velocity, cutoff float64) {
	b.bass.Trigger(t, midi, length, velocity, cutoff)
}

func (b band) Chord(t float64, rootMidi int, length, velocity float64) {
	b.chords.Trigger(t, rootMidi, length, velocity)
}

// Sequencer runs the main groove. Every method belongs to the control
// goroutine.
type Sequencer struct {
	g      Graph
	rand   *synth.Jitter
	voices instruments
	side   *ducking.Sidechain
	sched  *scheduler.Scheduler
	log    log.Component

	preset  synth.Preset
	voicing synth.Voicing
	calm    bool
	onKick  func(t float64)
}

// New builds the sequencer voices on a built graph and returns it stopped.
// An unknown preset name falls back to the default preset.
func New(g Graph, cfg config.EngineConfig, pump float64, rnd *synth.Jitter, timer scheduler.Timer) *Sequencer {
	s := &Sequencer{
		g:      g,
		rand:   rnd,
		voices: band{kit: synth.NewKit(g, rnd), bass: synth.NewBass(g), chords: synth.NewChords(g)},
		side:   ducking.NewSidechain(g.Param(graph.MusicDuck), pump, cfg.Calm),
		log:    log.For("Techno"),
		calm:   cfg.Calm,
	}
	p, err := synth.Lookup(cfg.Preset)
	if err != nil {
		s.log.Warnf("preset %q not found, using %s", cfg.Preset, synth.Default().Name)
		p = synth.Default()
	}
	s.preset = p
	s.voicing = p.Voicing()
	s.sched = scheduler.New(scheduler.Config{
		Name:      "TechnoScheduler",
		BPM:       cfg.BPM,
		Swing:     cfg.Swing,
		Lookahead: cfg.Lookahead(),
		Ahead:     cfg.ScheduleAhead(),
		LeadIn:    leadIn,
	}, g, timer, s.step)
	return s
}

// Start applies the active preset's voicing and starts the groove on step 0.
// Starting a running sequencer is a no-op.
func (s *Sequencer) Start() {
	if s.sched.Running() {
		return
	}
	s.voicing = s.preset.Voicing()
	s.sched.Start()
	s.log.Infof("started (%s, %.1f BPM, calm %v)", s.preset.Name, s.sched.Cursor().Tempo, s.calm)
}

// Stop halts the groove. Committed notes still play.
func (s *Sequencer) Stop() {
	if !s.sched.Running() {
		return
	}
	s.sched.Stop()
	s.log.Infof("stopped")
}

// Running reports whether the groove is scheduling steps.
func (s *Sequencer) Running() bool { return s.sched.Running() }

// Cursor exposes the scheduler position.
func (s *Sequencer) Cursor() scheduler.Cursor { return s.sched.Cursor() }

// SetTempo changes the tempo from the next step on.
func (s *Sequencer) SetTempo(bpm float64) { s.sched.SetTempo(bpm) }

// SetSwing changes the swing from the next step on.
func (s *Sequencer) SetSwing(swing float64) { s.sched.SetSwing(swing) }

// SetPump changes the sidechain depth used outside calm mode.
func (s *Sequencer) SetPump(pump float64) { s.side.SetPump(pump) }

// SetCalm switches calm mode: softer kick, clap and chords and a barely
// audible sidechain.
func (s *Sequencer) SetCalm(calm bool) {
	s.calm = calm
	s.side.SetCalm(calm)
}

// Calm reports whether calm mode is on.
func (s *Sequencer) Calm() bool { return s.calm }

// SetPreset switches to the named preset and applies its voicing. Unknown
// names leave everything unchanged and return an error wrapping
// synth.ErrUnknownPreset.
func (s *Sequencer) SetPreset(name string) error {
	p, err := synth.Lookup(name)
	if err != nil {
		s.log.Debugf("ignoring unknown preset %q", name)
		return fmt.Errorf("preset %q: %w", name, err)
	}
	s.preset = p
	s.voicing = p.Voicing()
	s.log.Infof("preset %s", p.Name)
	return nil
}

// Preset returns the active preset.
func (s *Sequencer) Preset() synth.Preset { return s.preset }

// SetVoicing overrides the synthesis parameters until the next preset
// change or Start.
func (s *Sequencer) SetVoicing(v synth.Voicing) { s.voicing = v.Clamped() }

// Voicing returns the synthesis parameters in effect.
func (s *Sequencer) Voicing() synth.Voicing { return s.voicing }

// OnKick registers fn to receive the audio time of every kick as it is
// committed. A nil fn removes the callback.
func (s *Sequencer) OnKick(fn func(t float64)) { s.onKick = fn }

// Tick runs one scheduler pass. The timer normally drives it.
func (s *Sequencer) Tick() { s.sched.Tick() }

func (s *Sequencer) step(idx int, at float64) {
	t := s.rand.Apply(at, s.preset.Jitter)
	if now := s.g.Now(); t < now {
		t = now
	}

	if idx%4 == 0 {
		s.voices.Kick(t, s.calm)
		s.side.Trigger(t)
		if s.onKick != nil {
			s.onKick(t)
		}
	}

	if idx == 4 || idx == 12 {
		s.bumpReverb(t)
		s.voices.Clap(t, s.voicing.ClapLevel, s.calm)
	}

	if idx%2 == 1 {
		open := s.rand.Chance(s.voicing.OpenHatChance)
		s.voices.Hat(t, open, s.voicing.HatDensity, s.calm)
	}

	if midi := s.preset.BassPattern[idx]; midi != 0 {
		note := synth.Quantize(midi, synth.MinorScale, synth.Root)
		s.voices.Bass(t, note, bassLength, s.voicing.BassVelocity, s.voicing.BassCutoff)
	}

	if s.preset.ChordEvery > 0 && idx%s.preset.ChordEvery == 0 {
		root := s.preset.ChordRoots[idx]
		if root == 0 {
			root = defaultRoot
		}
		vel := chordVel
		if s.calm {
			vel = chordVelCalm
		}
		s.voices.Chord(t, root, chordLength, vel)
	}
}

// bumpReverb opens the reverb send a little on every clap, up to a cap.
func (s *Sequencer) bumpReverb(t float64) {
	p := s.g.Param(graph.ReverbSendLevel)
	if p == nil {
		return
	}
	next := math.Min(reverbMax, p.ValueAt(t)+reverbBump)
	p.RampTo(next, t, graph.MinRamp)
}
