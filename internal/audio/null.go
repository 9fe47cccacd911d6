// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// NullSink renders in real time into a discarded buffer. It keeps the audio
// clock moving on machines without an output device.
type NullSink struct {
	opts     Options
	renderer Renderer
	buf      []float32

	mu       sync.Mutex
	doneChan chan struct{}
	wg       sync.WaitGroup
	blocks   atomic.Uint64
}

// NewNullSink returns a stopped null sink.
func NewNullSink(opts Options, r Renderer) *NullSink {
	return &NullSink{
		opts:     opts,
		renderer: r,
		buf:      make([]float32, opts.FramesPerBuffer*opts.Channels),
	}
}

// Name implements Sink.
func (n *NullSink) Name() string { return "null" }

// Start begins rendering one buffer per buffer duration.
func (n *NullSink) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.doneChan != nil {
		return nil
	}
	interval := n.opts.BufferDuration()
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	n.doneChan = make(chan struct{})
	n.wg.Add(1)
	go n.run(interval, n.doneChan)
	return nil
}

func (n *NullSink) run(interval time.Duration, done chan struct{}) {
	defer n.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n.Pump()
		}
	}
}

// Pump renders one buffer synchronously.
func (n *NullSink) Pump() {
	n.renderer.Render(n.buf, n.opts.Channels)
	if n.opts.Tap != nil {
		n.opts.Tap.Write(n.buf)
	}
	n.blocks.Add(1)
}

// Stop halts rendering and waits for the render goroutine.
func (n *NullSink) Stop() error {
	n.mu.Lock()
	done := n.doneChan
	n.doneChan = nil
	n.mu.Unlock()
	if done == nil {
		return nil
	}
	close(done)
	n.wg.Wait()
	return nil
}

// Close is Stop.
func (n *NullSink) Close() error { return n.Stop() }

// Blocks reports how many buffers have been rendered.
func (n *NullSink) Blocks() uint64 { return n.blocks.Load() }
