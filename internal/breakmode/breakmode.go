// SPDX-License-Identifier: MIT
//
// Package breakmode implements the persistent overlay engaged while a gesture
// is held: it ducks the main mix, fades in the break bus and runs its own
// groove scheduler until the gesture ends.
package breakmode

import (
	"math"
	"time"

	"handbeat/internal/config"
	"handbeat/internal/ducking"
	"handbeat/internal/graph"
	"handbeat/internal/log"
	"handbeat/internal/scheduler"
	"handbeat/internal/synth"
)

// State is the break machine state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Transition timings, seconds.
const (
	commitOffset = 0.01
	duckRamp     = 0.08
	gainRamp     = 0.10
	holdRamp     = 0.08
	brightRamp   = 0.08
	crashOffset  = 0.02
	leadIn       = 0.05
	restoreRamp  = 0.18
	fadeRamp     = 0.15
)

// Graph is the part of the signal graph the machine drives.
type Graph interface {
	ducking.Ramper
	synth.Player
	Now() float64
	Param(id graph.ParamID) *graph.Param
}

// Machine is the Idle/Active break state machine. Like the schedulers it
// runs on the control thread only.
type Machine struct {
	g     Graph
	cfg   config.BreakConfig
	main  *ducking.Group
	kit   *synth.Kit
	sched *scheduler.Scheduler
	log   log.Component

	state        State
	strength     float64
	gain         float64
	floor        float64
	releaseUntil float64
}

// New returns an idle machine. main holds the baselines of the buses the
// break ducks. bpm is the initial overlay tempo.
func New(g Graph, cfg config.BreakConfig, main *ducking.Group, kit *synth.Kit,
	timer scheduler.Timer, lookahead time.Duration, bpm float64) *Machine {
	m := &Machine{
		g:    g,
		cfg:  cfg,
		main: main,
		kit:  kit,
		log:  log.For("Break"),
	}
	m.sched = scheduler.New(scheduler.Config{
		Name:      "BreakScheduler",
		BPM:       bpm,
		Lookahead: lookahead,
		Ahead:     cfg.ScheduleAhead(),
		LeadIn:    leadIn,
	}, g, timer, m.step)
	return m
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Active reports whether a break is engaged.
func (m *Machine) Active() bool { return m.state == Active }

// Ducking reports whether break automation owns the main mix at now: while
// Active and until the restore ramp has finished.
func (m *Machine) Ducking(now float64) bool {
	return m.state == Active || now < m.releaseUntil
}

// Targets returns the overlay gain and duck floor in effect. Both are zero
// while Idle.
func (m *Machine) Targets() (gain, floor float64) {
	if m.state != Active {
		return 0, 0
	}
	return m.gain, m.floor
}

// Strength returns the last gesture strength applied.
func (m *Machine) Strength() float64 { return m.strength }

// Cursor exposes the overlay scheduler position.
func (m *Machine) Cursor() scheduler.Cursor { return m.sched.Cursor() }

// SetTempo makes the overlay follow the engine tempo.
func (m *Machine) SetTempo(bpm float64) { m.sched.SetTempo(bpm) }

// Start engages the break at strength s in [0,1]. Starting an active break
// is the same as Hold.
func (m *Machine) Start(s float64) {
	if m.state == Active {
		m.Hold(s)
		return
	}
	m.state = Active
	m.retarget(s)
	at := m.g.Now() + commitOffset

	m.main.Duck(m.floor, at, duckRamp)
	m.g.RampBus(graph.BreakBus, m.gain, at, gainRamp)
	if lpf := m.g.Param(graph.MediaLowpass); lpf != nil {
		lpf.RampTo(m.cfg.BrightCutoffHz, at, brightRamp)
	}
	m.kit.Crash(at+crashOffset, m.cfg.CrashLevel)
	m.sched.StartAt(at + leadIn)

	m.log.Infof("started (strength %.2f, gain %.3f, floor %.3f)", m.strength, m.gain, m.floor)
}

// Hold slides the targets toward strength s without restarting the groove.
// It does nothing while Idle.
func (m *Machine) Hold(s float64) {
	if m.state != Active {
		return
	}
	m.retarget(s)
	now := m.g.Now()
	m.g.RampBus(graph.BreakBus, m.gain, now, holdRamp)
	m.main.Duck(m.floor, now, holdRamp)
}

// End releases the break: the main mix returns to its exact baselines, the
// overlay fades to zero and the groove stops. Notes already committed still
// play. Ending an idle break is a no-op.
func (m *Machine) End() {
	if m.state != Active {
		return
	}
	m.state = Idle
	at := m.g.Now() + commitOffset
	m.main.Restore(at, restoreRamp)
	m.g.RampBus(graph.BreakBus, 0, at, fadeRamp)
	m.sched.Stop()
	m.releaseUntil = at + restoreRamp
	m.log.Infof("ended")
}

// retarget recomputes gain and floor directly from s; the floor is not
// smoothed separately.
func (m *Machine) retarget(s float64) {
	if math.IsNaN(s) {
		s = 0
	}
	s = math.Max(0, math.Min(1, s))
	m.strength = s
	m.gain = m.cfg.GainBase + m.cfg.GainSpan*s
	m.floor = m.cfg.DuckFloorMax - (m.cfg.DuckFloorMax-m.cfg.DuckFloorMin)*s
}

// step emits one overlay step: kick on each beat, snare on the backbeats,
// hat on every sixteenth.
func (m *Machine) step(i int, at float64) {
	if i%4 == 0 {
		m.kit.BreakKick(at, m.cfg.KickLevel)
	}
	if i == 4 || i == 12 {
		m.kit.BreakSnare(at, m.cfg.SnareLevel)
	}
	m.kit.BreakHat(at, m.cfg.HatLevel)
}
