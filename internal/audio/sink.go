// SPDX-License-Identifier: MIT
/*
Package audio connects the signal graph to the outside world:
- Output sinks pulling frames from the graph (PortAudio, oto, or a paced null sink)
- Output device listing through PortAudio
- WAV recording of the final output with atomic state management
- A decoded WAV track feeding the media input

Thread Safety:
- Sinks call the Renderer and Tap from the audio thread only
- Buffers are pre-allocated so the render path does not allocate
- Recorder state changes are atomic; file swaps are serialised with Write
*/
package audio

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"handbeat/internal/config"
)

// ErrBackend is returned for an unknown backend name.
var ErrBackend = errors.New("audio: unknown backend")

// Renderer produces interleaved float32 frames. *graph.Graph implements it.
type Renderer interface {
	Render(out []float32, channels int)
}

// Tap observes every rendered block on the audio thread. It must not block.
type Tap interface {
	Write(frames []float32)
}

// Sink is an output that pulls audio from a Renderer. Start opens the
// device on first use and resumes it afterwards; Start after a failure may
// be retried.
type Sink interface {
	Name() string
	Start() error
	Stop() error
	Close() error
}

// Options configures a sink.
type Options struct {
	Backend         string
	Device          int
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
	LowLatency      bool
	Tap             Tap
}

// OptionsFrom copies the output settings out of a resolved audio config.
func OptionsFrom(cfg config.AudioConfig) Options {
	return Options{
		Backend:         cfg.Backend,
		Device:          cfg.OutputDevice,
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		Channels:        cfg.OutputChannels,
		LowLatency:      cfg.LowLatency,
	}
}

// BufferDuration is the time one device buffer covers.
func (o Options) BufferDuration() time.Duration {
	if o.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(o.FramesPerBuffer) / o.SampleRate * float64(time.Second))
}

// NewSink returns the sink for opts.Backend. No device is opened yet.
func NewSink(opts Options, r Renderer) (Sink, error) {
	if opts.Channels < 1 {
		opts.Channels = 1
	}
	if opts.FramesPerBuffer < 1 {
		opts.FramesPerBuffer = config.DefaultFramesPerBuffer
	}
	switch strings.ToLower(opts.Backend) {
	case config.BackendPortAudio, "":
		return NewStream(opts, r), nil
	case config.BackendOto:
		return NewOtoSink(opts, r), nil
	case config.BackendNull:
		return NewNullSink(opts, r), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrBackend, opts.Backend)
	}
}
