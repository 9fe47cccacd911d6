// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for files the decoder rejects.
var ErrInvalidWAV = errors.New("not a valid WAV file")

// Media is a decoded track feeding the graph's media input. The whole file
// is decoded up front, folded to mono and resampled to the graph rate, so
// Fill only copies. Transport state is atomic so the control thread can
// play, pause and seek while the renderer reads.
type Media struct {
	samples []float64
	rate    float64
	loop    bool
	pos     atomic.Int64
	playing atomic.Bool
}

// LoadWAV decodes path for playback at rate Hz.
func LoadWAV(path string, rate float64, loop bool) (*Media, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}
	full := float64(int64(1) << (int(d.BitDepth) - 1))
	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(buf.Data[i*channels+c])
		}
		mono[i] = sum / float64(channels) / full
	}

	m := &Media{rate: rate, loop: loop}
	m.samples = Resample(mono, float64(d.SampleRate), rate)
	return m, nil
}

// NewMedia wraps already decoded mono samples at rate Hz.
func NewMedia(samples []float64, rate float64, loop bool) *Media {
	return &Media{samples: samples, rate: rate, loop: loop}
}

// Resample converts src from one rate to another by linear interpolation.
// Equal rates return src unchanged.
func Resample(src []float64, from, to float64) []float64 {
	if from <= 0 || to <= 0 || from == to || len(src) == 0 {
		return src
	}
	n := int(math.Floor(float64(len(src)) * to / from))
	out := make([]float64, n)
	step := from / to
	for i := range out {
		x := float64(i) * step
		j := int(x)
		frac := x - float64(j)
		a := src[j]
		b := a
		if j+1 < len(src) {
			b = src[j+1]
		}
		out[i] = a + (b-a)*frac
	}
	return out
}

// Fill implements graph.Source. A paused or finished track is silent.
func (m *Media) Fill(dst []float64) {
	if !m.playing.Load() || len(m.samples) == 0 {
		clear(dst)
		return
	}
	pos := int(m.pos.Load())
	n := 0
	for n < len(dst) {
		if pos >= len(m.samples) {
			if !m.loop {
				m.playing.Store(false)
				clear(dst[n:])
				pos = 0
				break
			}
			pos = 0
		}
		c := copy(dst[n:], m.samples[pos:])
		n += c
		pos += c
	}
	m.pos.Store(int64(pos))
}

// Play starts or resumes playback.
func (m *Media) Play() { m.playing.Store(true) }

// Pause halts playback in place.
func (m *Media) Pause() { m.playing.Store(false) }

// Playing reports whether the track is sounding.
func (m *Media) Playing() bool { return m.playing.Load() }

// Seek moves the play head to t seconds, clamped to the track.
func (m *Media) Seek(t float64) {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	i := int64(t * m.rate)
	if i > int64(len(m.samples)) {
		i = int64(len(m.samples))
	}
	m.pos.Store(i)
}

// Position returns the play head in seconds.
func (m *Media) Position() float64 {
	if m.rate <= 0 {
		return 0
	}
	return float64(m.pos.Load()) / m.rate
}

// Duration returns the track length in seconds.
func (m *Media) Duration() float64 {
	if m.rate <= 0 {
		return 0
	}
	return float64(len(m.samples)) / m.rate
}
