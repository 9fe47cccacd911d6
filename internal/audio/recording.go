// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"handbeat/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrRecording is returned by Start while a file is open.
var ErrRecording = errors.New("already recording")

var recLog = log.For("Recorder")

// Recorder writes the final output to a WAV file. Write runs on the audio
// thread; Start and Stop run anywhere.
type Recorder struct {
	sampleRate int
	channels   int
	bitDepth   int
	scale      float64

	isRecording atomic.Bool
	frames      atomic.Uint64
	gate        *Gate
	gateOpen    bool

	mu         sync.Mutex
	path       string
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
}

// NewRecorder returns an idle recorder. framesPerBuffer sizes the
// conversion buffer; larger blocks grow it once.
func NewRecorder(sampleRate float64, channels, bitDepth, framesPerBuffer int) *Recorder {
	switch bitDepth {
	case 16, 24, 32:
	default:
		bitDepth = 16
	}
	if channels < 1 {
		channels = 1
	}
	return &Recorder{
		sampleRate: int(sampleRate),
		channels:   channels,
		bitDepth:   bitDepth,
		scale:      float64(int64(1)<<(bitDepth-1) - 1),
		gate:       NewGate(0),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  int(sampleRate),
			},
			SourceBitDepth: bitDepth,
			Data:           make([]int, framesPerBuffer*channels),
		},
	}
}

// SetGate makes the file start only after the output first peaks above
// threshold. Zero records from the first block.
func (r *Recorder) SetGate(threshold float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = NewGate(threshold)
}

// FileName returns a timestamped WAV path inside dir.
func FileName(dir string, now time.Time) string {
	return filepath.Join(dir, "handbeat-"+now.Format("20060102-150405")+".wav")
}

// Start creates filename (and its directory) and begins recording.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRecording.Load() {
		return ErrRecording
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file
	r.path = filename
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, r.channels, 1)
	r.gateOpen = !r.gate.Enabled()
	r.frames.Store(0)

	r.isRecording.Store(true)
	recLog.Infof("recording to %s (%d-bit, %d ch)", filename, r.bitDepth, r.channels)
	return nil
}

// Write appends interleaved frames. It is a no-op while idle.
func (r *Recorder) Write(frames []float32) {
	if !r.isRecording.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return
	}
	if !r.gateOpen {
		if !r.gate.Open(frames) {
			return
		}
		r.gateOpen = true
	}

	if cap(r.sampleBuf.Data) < len(frames) {
		r.sampleBuf.Data = make([]int, len(frames))
	}
	data := r.sampleBuf.Data[:len(frames)]
	for i, s := range frames {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(v * r.scale)
	}
	r.sampleBuf.Data = data

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		recLog.Errorf("Error writing to WAV file: %v", err)
		return
	}
	r.frames.Add(uint64(len(frames) / r.channels))
}

// Stop finalises the WAV header and closes the file.
func (r *Recorder) Stop() error {
	if !r.isRecording.Load() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.isRecording.Store(false)

	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			return err
		}
		r.wavEncoder = nil
	}

	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return err
		}
		r.outputFile = nil
	}

	recLog.Infof("wrote %d frames to %s", r.frames.Load(), r.path)
	return nil
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool { return r.isRecording.Load() }

// Frames reports how many frames the current or last file holds.
func (r *Recorder) Frames() uint64 { return r.frames.Load() }

// Path returns the current or last file path.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Close is Stop.
func (r *Recorder) Close() error { return r.Stop() }
