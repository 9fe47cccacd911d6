// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Stream is the PortAudio output sink.
type Stream struct {
	opts     Options
	renderer Renderer

	device      *portaudio.DeviceInfo
	latency     time.Duration
	stream      *portaudio.Stream
	initialized bool
	running     atomic.Bool
	callbacks   atomic.Uint64
}

// NewStream returns an unopened PortAudio sink.
func NewStream(opts Options, r Renderer) *Stream {
	return &Stream{opts: opts, renderer: r}
}

// Name implements Sink.
func (s *Stream) Name() string { return "portaudio" }

// Start initialises PortAudio and opens the output device on the first call,
// then starts the stream.
func (s *Stream) Start() error {
	if s.running.Load() {
		return nil
	}
	if s.stream == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	s.running.Store(true)
	return nil
}

func (s *Stream) open() error {
	if !s.initialized {
		if err := Initialize(); err != nil {
			return err
		}
		s.initialized = true
	}

	device, err := OutputDevice(s.opts.Device)
	if err != nil {
		return err
	}
	s.device = device
	if s.opts.LowLatency {
		s.latency = device.DefaultLowOutputLatency
	} else {
		s.latency = device.DefaultHighOutputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0, // No input device
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: s.opts.Channels,
			Device:   device,
			Latency:  s.latency,
		},
		FramesPerBuffer: s.opts.FramesPerBuffer,
		SampleRate:      s.opts.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return fmt.Errorf("failed to open output stream on %q: %w", device.Name, err)
	}
	s.stream = stream
	return nil
}

// Stop pauses the stream. The device stays open.
func (s *Stream) Stop() error {
	if s.stream == nil || !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	return s.stream.Stop()
}

// Close stops and closes the stream and shuts PortAudio down.
func (s *Stream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			return err
		}
		s.stream = nil
	}
	if s.initialized {
		s.initialized = false
		return Terminate()
	}
	return nil
}

// Device returns the opened output device, or nil.
func (s *Stream) Device() *portaudio.DeviceInfo { return s.device }

// Latency returns the requested output latency.
func (s *Stream) Latency() time.Duration { return s.latency }

// Callbacks reports how many buffers have been rendered.
func (s *Stream) Callbacks() uint64 { return s.callbacks.Load() }

// process is the output callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (s *Stream) process(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s.renderer.Render(out, s.opts.Channels)
	if s.opts.Tap != nil {
		s.opts.Tap.Write(out)
	}
	s.callbacks.Add(1)
}
