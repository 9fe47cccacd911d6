// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the procedural audio engine.
const (
	// Output device and rendering.
	DefaultBackend         = BackendPortAudio
	DefaultOutputDevice    = MinDeviceID // System default output device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultOutputChannels  = 2           // Stereo (mono engine duplicated)

	// Sequencer.
	DefaultBPM             = 126
	DefaultSwing           = 0.06
	DefaultPreset          = "DeepChill"
	DefaultLookaheadMS     = 25  // Control-rate tick
	DefaultScheduleAheadMS = 120 // Main sequencer queue window
	DefaultBreakAheadMS    = 150 // Break overlay queue window

	// Mix.
	DefaultMasterGain    = 1.0
	DefaultTechnoGain    = 0.9
	DefaultDelaySend     = 0.35
	DefaultDelayFeedback = 0.25
	DefaultPumpAmount    = 0.15
	DefaultReverbSend    = 0.12
	DefaultGlueSend      = 0.18

	// Break overlay (subtle groove while the gesture is held).
	DefaultBreakGainBase   = 0.7
	DefaultBreakGainSpan   = 0.5
	DefaultDuckFloorMin    = 0.75
	DefaultDuckFloorMax    = 0.90
	DefaultSatAmount       = 0.6
	DefaultBrightCutoffHz  = 16000
	DefaultBreakKickLevel  = 0.55
	DefaultBreakSnareLevel = 0.50
	DefaultBreakHatLevel   = 0.35
	DefaultBreakCrashLevel = 0.22

	// Pinch hysteresis.
	DefaultPinchOnThreshold  = 0.78
	DefaultPinchOffThreshold = 0.62
	DefaultPinchSmoothing    = 0.25

	// Hand routing.
	DefaultLPFMinHz   = 180
	DefaultLPFMaxHz   = 18000
	DefaultDelayMinMS = 90
	DefaultDelayMaxMS = 220

	// Analysis.
	DefaultFFTSize      = 1024
	DefaultFFTWindow    = "Blackman"
	DefaultAnalysisRate = 60 // Hz
	DefaultSmoothing    = 0.8
	DefaultMinDecibels  = -100
	DefaultMaxDecibels  = -30

	// Hardware and processing limits.
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
	MinFFTSize      = 32
	MaxFFTSize      = 32768
	MinBPM          = 60
	MaxBPM          = 200
	MaxSwing        = 0.2
)

// Output backends.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
	BackendNull      = "null"
)

// Lookahead returns the scheduler tick interval.
func (e EngineConfig) Lookahead() time.Duration {
	return time.Duration(e.LookaheadMS * float64(time.Millisecond))
}

// ScheduleAhead returns the main sequencer queue window in seconds.
func (e EngineConfig) ScheduleAhead() float64 {
	return e.ScheduleAheadMS / 1000
}

// ScheduleAhead returns the overlay queue window in seconds.
func (b BreakConfig) ScheduleAhead() float64 {
	return b.ScheduleAheadMS / 1000
}

// Interval returns the analysis tick interval.
func (a AnalysisConfig) Interval() time.Duration {
	return time.Duration(float64(time.Second) / a.RateHz)
}
