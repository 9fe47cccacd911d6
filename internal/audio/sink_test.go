// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"handbeat/internal/config"
)

// rampRenderer writes a counter into every frame.
type rampRenderer struct {
	next  float32
	calls atomic.Int64
}

func (r *rampRenderer) Render(out []float32, channels int) {
	for f := 0; f+channels <= len(out); f += channels {
		for c := range channels {
			out[f+c] = r.next
		}
		r.next += 0.001
	}
	r.calls.Add(1)
}

type countingTap struct{ samples atomic.Int64 }

func (c *countingTap) Write(frames []float32) { c.samples.Add(int64(len(frames))) }

func TestNewSinkBackends(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{"portaudio", "portaudio"},
		{"", "portaudio"},
		{"OTO", "oto"},
		{"null", "null"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			s, err := NewSink(Options{Backend: tt.backend, SampleRate: testSampleRate, Channels: 2}, &rampRenderer{})
			if err != nil {
				t.Fatal(err)
			}
			if s.Name() != tt.want {
				t.Errorf("Name = %q, want %q", s.Name(), tt.want)
			}
		})
	}
	if _, err := NewSink(Options{Backend: "jack"}, &rampRenderer{}); !errors.Is(err, ErrBackend) {
		t.Errorf("unknown backend err = %v", err)
	}
}

func TestOptionsFrom(t *testing.T) {
	cfg := config.Default().Audio
	o := OptionsFrom(cfg)
	if o.Channels != cfg.OutputChannels || o.FramesPerBuffer != cfg.FramesPerBuffer || o.Device != cfg.OutputDevice {
		t.Errorf("options = %+v", o)
	}
	want := time.Duration(float64(cfg.FramesPerBuffer) / cfg.SampleRate * float64(time.Second))
	if got := o.BufferDuration(); got != want {
		t.Errorf("BufferDuration = %v, want %v", got, want)
	}
}

func TestNullSinkPump(t *testing.T) {
	r := &rampRenderer{}
	tap := &countingTap{}
	n := NewNullSink(Options{SampleRate: testSampleRate, FramesPerBuffer: 64, Channels: 2, Tap: tap}, r)
	n.Pump()
	n.Pump()
	if n.Blocks() != 2 || tap.samples.Load() != 256 {
		t.Errorf("blocks %d, tapped %d", n.Blocks(), tap.samples.Load())
	}
}

func TestNullSinkRunsInRealTime(t *testing.T) {
	r := &rampRenderer{}
	n := NewNullSink(Options{SampleRate: testSampleRate, FramesPerBuffer: 64, Channels: 1}, r)
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for n.Blocks() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	got := n.Blocks()
	if got < 3 {
		t.Fatalf("rendered %d blocks", got)
	}
	time.Sleep(20 * time.Millisecond)
	if n.Blocks() != got {
		t.Error("rendering continued after Close")
	}
	if err := n.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestRenderReaderEncodesFloat32LE(t *testing.T) {
	r := &rampRenderer{}
	tap := &countingTap{}
	rr := &renderReader{renderer: r, channels: 2, tap: tap, frames: make([]float32, 8)}

	p := make([]byte, 4*2*3+3) // three frames plus a partial one
	n, err := rr.Read(p)
	if err != nil {
		t.Fatal(err)
	}
	if n != 24 {
		t.Fatalf("n = %d, want 24", n)
	}
	for i := range 6 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		want := float32(i/2) * 0.001
		if math.Abs(float64(v-want)) > 1e-7 {
			t.Errorf("sample %d = %v, want %v", i, v, want)
		}
	}
	if tap.samples.Load() != 6 {
		t.Errorf("tap saw %d samples", tap.samples.Load())
	}

	if n, _ := rr.Read(make([]byte, 5)); n != 0 {
		t.Errorf("short read = %d", n)
	}
}

func TestStreamProcessNoAllocs(t *testing.T) {
	s := NewStream(Options{Channels: 2, Tap: &countingTap{}}, &rampRenderer{})
	out := make([]float32, 1024)
	allocs := testing.AllocsPerRun(100, func() { s.process(out) })
	if allocs > 0 {
		t.Errorf("output callback allocated %.1f times per run", allocs)
	}
	if s.Callbacks() == 0 {
		t.Error("callbacks not counted")
	}
}
