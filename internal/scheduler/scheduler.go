// SPDX-License-Identifier: MIT
//
// Package scheduler implements the lookahead step scheduler. A coarse control
// timer wakes it every Lookahead; each wake commits every sixteenth-note step
// whose deadline falls inside the schedule-ahead window to the audio clock.
package scheduler

import (
	"math"
	"time"

	"handbeat/internal/log"
)

// Steps per bar.
const Steps = 16

// Tempo and swing limits.
const (
	MinBPM   = 60
	MaxBPM   = 200
	MaxSwing = 0.2
)

// Clock reports the audio time in seconds.
type Clock interface {
	Now() float64
}

// Timer arms a repeating callback and returns its cancel function.
type Timer func(interval time.Duration, tick func()) (cancel func())

// EmitFunc receives one step: its index in the bar and the audio time it
// must sound at.
type EmitFunc func(step int, at float64)

// Cursor is the scheduler position.
type Cursor struct {
	Tempo        float64 // BPM
	Swing        float64
	Step         int // next step to emit, [0, Steps)
	NextDeadline float64
}

// Config holds the timing constants for one scheduler.
type Config struct {
	Name      string
	BPM       float64
	Swing     float64
	Lookahead time.Duration // timer interval
	Ahead     float64       // schedule-ahead window, seconds
	LeadIn    float64       // delay before the first step, seconds
}

// Scheduler is the lookahead step scheduler. It is driven from a single
// control goroutine and does no locking of its own.
type Scheduler struct {
	cfg    Config
	clock  Clock
	timer  Timer
	emit   EmitFunc
	log    log.Component
	cursor Cursor

	running bool
	cancel  func()
	emitted uint64
	skipped uint64
}

// New returns a stopped scheduler.
func New(cfg Config, clock Clock, timer Timer, emit EmitFunc) *Scheduler {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 25 * time.Millisecond
	}
	if cfg.Ahead <= cfg.Lookahead.Seconds() {
		cfg.Ahead = 2 * cfg.Lookahead.Seconds()
	}
	if cfg.LeadIn < 0 || math.IsNaN(cfg.LeadIn) {
		cfg.LeadIn = 0
	}
	s := &Scheduler{
		cfg:   cfg,
		clock: clock,
		timer: timer,
		emit:  emit,
		log:   log.For(cfg.Name),
	}
	s.cursor.Tempo = clampTempo(cfg.BPM)
	s.cursor.Swing = clampSwing(cfg.Swing)
	return s
}

// Start resets the cursor to step 0, one lead-in from now, and arms the timer.
// Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	if s.running {
		return
	}
	s.StartAt(s.clock.Now() + s.cfg.LeadIn)
}

// StartAt is Start with an explicit first deadline.
func (s *Scheduler) StartAt(first float64) {
	if s.running {
		return
	}
	s.cursor.Step = 0
	s.cursor.NextDeadline = first
	s.running = true
	if s.timer != nil {
		s.cancel = s.timer(s.cfg.Lookahead, s.Tick)
	}
	s.log.Debugf("started at %.3fs (%.1f BPM, swing %.2f)", first, s.cursor.Tempo, s.cursor.Swing)
	s.Tick()
}

// Stop disarms the timer. Steps already committed to the audio clock still
// play.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.log.Debugf("stopped after %d steps (%d skipped)", s.emitted, s.skipped)
}

// Running reports whether the timer is armed.
func (s *Scheduler) Running() bool {
	return s.running
}

// Cursor returns a copy of the current position.
func (s *Scheduler) Cursor() Cursor {
	return s.cursor
}

// SetTempo changes the tempo from the next computed step on. Non-finite
// values are ignored.
func (s *Scheduler) SetTempo(bpm float64) {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return
	}
	s.cursor.Tempo = clampTempo(bpm)
}

// SetSwing changes the swing ratio from the next computed step on.
func (s *Scheduler) SetSwing(swing float64) {
	if math.IsNaN(swing) || math.IsInf(swing, 0) {
		return
	}
	s.cursor.Swing = clampSwing(swing)
}

// Tick commits every step due before now + Ahead. Steps whose deadline has
// already passed, e.g. after a control-thread stall, are skipped rather than
// queued in the past.
func (s *Scheduler) Tick() {
	if !s.running {
		return
	}
	now := s.clock.Now()
	horizon := now + s.cfg.Ahead
	for s.cursor.NextDeadline < horizon {
		if s.cursor.NextDeadline >= now {
			s.emit(s.cursor.Step, s.cursor.NextDeadline)
			s.emitted++
		} else {
			s.skipped++
		}
		s.cursor.NextDeadline += StepDuration(s.cursor.Tempo, s.cursor.Swing, s.cursor.Step)
		s.cursor.Step = (s.cursor.Step + 1) % Steps
	}
}

// StepDuration returns the length of step index at tempo bpm: a sixteenth
// lengthened by swing on odd steps and shortened by the same amount on even
// steps, so each pair lasts exactly two sixteenths.
func StepDuration(bpm, swing float64, step int) float64 {
	base := 60 / bpm / 4
	if step%2 == 1 {
		return base * (1 + swing)
	}
	return base * (1 - swing)
}

func clampTempo(bpm float64) float64 {
	if math.IsNaN(bpm) || bpm <= 0 {
		return 120
	}
	return math.Max(MinBPM, math.Min(MaxBPM, bpm))
}

func clampSwing(swing float64) float64 {
	if math.IsNaN(swing) {
		return 0
	}
	return math.Max(0, math.Min(MaxSwing, swing))
}
