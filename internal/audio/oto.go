// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

const bytesPerSample = 4 // float32

// OtoSink plays through oto. oto pulls bytes from a reader, so rendering
// happens inside Read on oto's audio goroutine.
type OtoSink struct {
	opts   Options
	reader *renderReader

	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
}

// NewOtoSink returns an unopened oto sink.
func NewOtoSink(opts Options, r Renderer) *OtoSink {
	return &OtoSink{
		opts: opts,
		reader: &renderReader{
			renderer: r,
			channels: opts.Channels,
			tap:      opts.Tap,
			frames:   make([]float32, opts.FramesPerBuffer*opts.Channels),
		},
	}
}

// Name implements Sink.
func (o *OtoSink) Name() string { return "oto" }

// Start creates the oto context on the first call and plays, or resumes a
// suspended context.
func (o *OtoSink) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx != nil {
		if err := o.ctx.Resume(); err != nil {
			return fmt.Errorf("cannot resume oto context: %w", err)
		}
		return nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(o.opts.SampleRate),
		ChannelCount: o.opts.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   o.opts.BufferDuration(),
	})
	if err != nil {
		return fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	o.ctx = ctx
	o.player = ctx.NewPlayer(o.reader)
	o.player.Play()
	return nil
}

// Stop suspends the context.
func (o *OtoSink) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil
	}
	if err := o.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// Close pauses the player for good. oto contexts live for the whole
// process.
func (o *OtoSink) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return nil
	}
	o.player.Pause()
	err := o.player.Err()
	o.player = nil
	if err != nil {
		return fmt.Errorf("oto player: %w", err)
	}
	return nil
}

// renderReader renders whole frames into a float32 scratch buffer and
// encodes them little-endian into p.
type renderReader struct {
	renderer Renderer
	channels int
	tap      Tap
	frames   []float32
}

func (r *renderReader) Read(p []byte) (int, error) {
	n := len(p) / (bytesPerSample * r.channels) * r.channels
	if n == 0 {
		return 0, nil
	}
	if n > len(r.frames) {
		r.frames = make([]float32, n)
	}
	buf := r.frames[:n]
	r.renderer.Render(buf, r.channels)
	if r.tap != nil {
		r.tap.Write(buf)
	}
	for i, v := range buf {
		binary.LittleEndian.PutUint32(p[i*bytesPerSample:], math.Float32bits(v))
	}
	return n * bytesPerSample, nil
}
