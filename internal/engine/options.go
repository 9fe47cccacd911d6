// SPDX-License-Identifier: MIT
package engine

import (
	"handbeat/internal/audio"
	"handbeat/internal/control"
)

// SinkFactory opens the output for the engine's graph. audio.NewSink is the
// default.
type SinkFactory func(opts audio.Options, r audio.Renderer) (audio.Sink, error)

// Option customises an engine at construction.
type Option func(*AudioEngine)

// WithSink replaces the output sink factory.
func WithSink(f SinkFactory) Option {
	return func(e *AudioEngine) {
		if f != nil {
			e.newSink = f
		}
	}
}

// WithExecutor runs the engine on x instead of an owned control.Loop. Run
// then only waits for cancellation; driving x is the caller's job.
func WithExecutor(x control.Executor) Option {
	return func(e *AudioEngine) {
		if x != nil {
			e.exec = x
			e.loop = nil
		}
	}
}

// WithSeed fixes the jitter and reverb seed.
func WithSeed(seed uint64) Option {
	return func(e *AudioEngine) { e.seed = seed }
}

// WithMedia feeds m into the media input instead of the configured file.
func WithMedia(m *audio.Media) Option {
	return func(e *AudioEngine) { e.media = m }
}

// WithRecording records the final output to path once the output is ready.
// It overrides the recording section of the config.
func WithRecording(path string) Option {
	return func(e *AudioEngine) { e.recordPath = path }
}
