// SPDX-License-Identifier: MIT
package config

import (
	"math"
	"strings"

	"handbeat/internal/log"
	"handbeat/pkg/bitint"
)

var logger = log.For("Config")

// Params is the resolved, validated parameter set consumed by the engine.
// Every numeric field is finite and inside its documented range. It is
// passed by value so nothing downstream can mutate the shared copy.
type Params struct {
	Audio     AudioConfig
	Engine    EngineConfig
	Mix       MixConfig
	Break     BreakConfig
	Gesture   GestureConfig
	Analysis  AnalysisConfig
	Recording RecordingConfig
	Transport TransportConfig
	MIDI      MIDIConfig
}

// Resolve clamps every numeric field of c to its safe range. Non-finite
// values are replaced by the built-in default. Nothing here fails: a bad
// value is logged and corrected.
func (c Config) Resolve() Params {
	d := Default()
	p := Params{
		Audio:     c.Audio,
		Engine:    c.Engine,
		Mix:       c.Mix,
		Break:     c.Break,
		Gesture:   c.Gesture,
		Analysis:  c.Analysis,
		Recording: c.Recording,
		Transport: c.Transport,
		MIDI:      c.MIDI,
	}

	a := &p.Audio
	a.Backend = strings.ToLower(strings.TrimSpace(a.Backend))
	if a.Backend == "" {
		a.Backend = d.Audio.Backend
	}
	a.SampleRate = clampFloat("audio.sample_rate", a.SampleRate, d.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	a.FramesPerBuffer = clampInt("audio.frames_per_buffer", a.FramesPerBuffer, 16, MaxBufferFrames)
	a.OutputChannels = clampInt("audio.output_channels", a.OutputChannels, 1, 8)
	if a.OutputDevice < MinDeviceID {
		a.OutputDevice = MinDeviceID
	}

	e := &p.Engine
	e.BPM = clampFloat("engine.bpm", e.BPM, d.Engine.BPM, MinBPM, MaxBPM)
	e.Swing = clampFloat("engine.swing", e.Swing, d.Engine.Swing, 0, MaxSwing)
	e.LookaheadMS = clampFloat("engine.lookahead_ms", e.LookaheadMS, d.Engine.LookaheadMS, 5, 100)
	e.ScheduleAheadMS = clampFloat("engine.schedule_ahead_ms", e.ScheduleAheadMS, d.Engine.ScheduleAheadMS, 20, 1000)
	if e.ScheduleAheadMS <= e.LookaheadMS {
		logger.Warnf("engine.schedule_ahead_ms %.1f must exceed lookahead %.1f, using %.1f",
			e.ScheduleAheadMS, e.LookaheadMS, 2*e.LookaheadMS)
		e.ScheduleAheadMS = 2 * e.LookaheadMS
	}
	if strings.TrimSpace(e.Preset) == "" {
		e.Preset = d.Engine.Preset
	}

	m := &p.Mix
	m.MasterGain = clampFloat("mix.master_gain", m.MasterGain, d.Mix.MasterGain, 0, 2)
	m.TechnoGain = clampFloat("mix.techno_gain", m.TechnoGain, d.Mix.TechnoGain, 0, 2)
	m.DelaySend = clampFloat("mix.delay_send", m.DelaySend, d.Mix.DelaySend, 0, 1)
	m.DelayFeedback = clampFloat("mix.delay_feedback", m.DelayFeedback, d.Mix.DelayFeedback, 0, 0.95)
	m.PumpAmount = clampFloat("mix.pump_amount", m.PumpAmount, d.Mix.PumpAmount, 0, 1)
	m.BassBoostDB = clampFloat("mix.bass_boost_db", m.BassBoostDB, 0, -24, 24)
	m.TrebleBoostDB = clampFloat("mix.treble_boost_db", m.TrebleBoostDB, 0, -24, 24)
	m.ReverbSend = clampFloat("mix.reverb_send", m.ReverbSend, d.Mix.ReverbSend, 0, 1)
	m.GlueSend = clampFloat("mix.glue_send", m.GlueSend, d.Mix.GlueSend, 0, 1)

	b := &p.Break
	b.GainBase = clampFloat("break.gain_base", b.GainBase, d.Break.GainBase, 0, 2)
	b.GainSpan = clampFloat("break.gain_span", b.GainSpan, d.Break.GainSpan, 0, 2)
	b.DuckFloorMin = clampFloat("break.duck_floor_min", b.DuckFloorMin, d.Break.DuckFloorMin, 0, 1)
	b.DuckFloorMax = clampFloat("break.duck_floor_max", b.DuckFloorMax, d.Break.DuckFloorMax, 0, 1)
	if b.DuckFloorMin > b.DuckFloorMax {
		b.DuckFloorMin, b.DuckFloorMax = b.DuckFloorMax, b.DuckFloorMin
	}
	b.SatAmount = clampFloat("break.sat_amount", b.SatAmount, d.Break.SatAmount, 0, 1)
	b.BrightCutoffHz = clampFloat("break.bright_cutoff_hz", b.BrightCutoffHz, d.Break.BrightCutoffHz, 0, 22050)
	b.KickLevel = clampFloat("break.kick_level", b.KickLevel, d.Break.KickLevel, 0, 2)
	b.SnareLevel = clampFloat("break.snare_level", b.SnareLevel, d.Break.SnareLevel, 0, 2)
	b.HatLevel = clampFloat("break.hat_level", b.HatLevel, d.Break.HatLevel, 0, 2)
	b.CrashLevel = clampFloat("break.crash_level", b.CrashLevel, d.Break.CrashLevel, 0, 2)
	b.ScheduleAheadMS = clampFloat("break.schedule_ahead_ms", b.ScheduleAheadMS, d.Break.ScheduleAheadMS, 20, 1000)
	if b.ScheduleAheadMS <= e.LookaheadMS {
		b.ScheduleAheadMS = 2 * e.LookaheadMS
	}

	g := &p.Gesture
	g.LPFMinHz = clampFloat("gesture.lpf_min_hz", g.LPFMinHz, d.Gesture.LPFMinHz, 20, 22050)
	g.LPFMaxHz = clampFloat("gesture.lpf_max_hz", g.LPFMaxHz, d.Gesture.LPFMaxHz, 20, 22050)
	if g.LPFMinHz > g.LPFMaxHz {
		g.LPFMinHz, g.LPFMaxHz = g.LPFMaxHz, g.LPFMinHz
	}
	g.DelayMinMS = clampFloat("gesture.delay_min_ms", g.DelayMinMS, d.Gesture.DelayMinMS, 1, 2000)
	g.DelayMaxMS = clampFloat("gesture.delay_max_ms", g.DelayMaxMS, d.Gesture.DelayMaxMS, 1, 2000)
	if g.DelayMinMS > g.DelayMaxMS {
		g.DelayMinMS, g.DelayMaxMS = g.DelayMaxMS, g.DelayMinMS
	}
	g.PinchOn = clampFloat("gesture.pinch_on", g.PinchOn, d.Gesture.PinchOn, 0, 1)
	g.PinchOff = clampFloat("gesture.pinch_off", g.PinchOff, d.Gesture.PinchOff, 0, 1)
	if g.PinchOff >= g.PinchOn {
		logger.Warnf("gesture.pinch_off %.2f must be below pinch_on %.2f, using defaults", g.PinchOff, g.PinchOn)
		g.PinchOn, g.PinchOff = d.Gesture.PinchOn, d.Gesture.PinchOff
	}
	g.PinchSmoothing = clampFloat("gesture.pinch_smoothing", g.PinchSmoothing, d.Gesture.PinchSmoothing, 0.01, 1)

	an := &p.Analysis
	if size := bitint.ClampPowerOfTwo(an.FFTSize, MinFFTSize, MaxFFTSize); size != an.FFTSize {
		logger.Warnf("analysis.fft_size %d is not a power of two in [%d, %d], using %d",
			an.FFTSize, MinFFTSize, MaxFFTSize, size)
		an.FFTSize = size
	}
	if an.FFTWindow == "" {
		an.FFTWindow = d.Analysis.FFTWindow
	}
	an.RateHz = clampFloat("analysis.rate_hz", an.RateHz, d.Analysis.RateHz, 1, 240)
	an.Smoothing = clampFloat("analysis.smoothing", an.Smoothing, d.Analysis.Smoothing, 0, 0.99)
	an.MinDecibels = clampFloat("analysis.min_decibels", an.MinDecibels, d.Analysis.MinDecibels, -200, 0)
	an.MaxDecibels = clampFloat("analysis.max_decibels", an.MaxDecibels, d.Analysis.MaxDecibels, -200, 0)
	if an.MaxDecibels <= an.MinDecibels {
		an.MinDecibels, an.MaxDecibels = d.Analysis.MinDecibels, d.Analysis.MaxDecibels
	}

	p.Recording.GateThreshold = clampFloat("recording.gate_threshold", p.Recording.GateThreshold, 0, 0, 1)

	if p.MIDI.StrengthCC > 127 {
		p.MIDI.StrengthCC = d.MIDI.StrengthCC
	}
	if p.MIDI.GateNote > 127 {
		p.MIDI.GateNote = d.MIDI.GateNote
	}

	return p
}

// clampFloat returns v limited to [lo, hi], or def when v is NaN or infinite.
func clampFloat(name string, v, def, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		logger.Warnf("%s is not finite, using default %g", name, def)
		return def
	}
	if v < lo {
		logger.Debugf("%s %g below %g, clamped", name, v, lo)
		return lo
	}
	if v > hi {
		logger.Debugf("%s %g above %g, clamped", name, v, hi)
		return hi
	}
	return v
}

func clampInt(name string, v, lo, hi int) int {
	if v < lo {
		logger.Debugf("%s %d below %d, clamped", name, v, lo)
		return lo
	}
	if v > hi {
		logger.Debugf("%s %d above %d, clamped", name, v, hi)
		return hi
	}
	return v
}

// Finite is the clamping rule applied to runtime inputs (gesture strength,
// cutoff requests): NaN and infinities collapse to def.
func Finite(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
