// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func newTestRecorder(bitDepth int) *Recorder {
	return NewRecorder(testSampleRate, 2, bitDepth, testFrameSize)
}

// decode reads a recorded file back.
func decode(t *testing.T, path string) *wav.Decoder {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatalf("%s is not a valid WAV file", path)
	}
	return d
}

func TestRecordingStartStopHotPath(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_recording.wav")
	rec := newTestRecorder(16)

	if err := rec.Start(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}

	if !rec.Recording() {
		t.Error("Recorder should be in recording state")
	}

	if rec.outputFile == nil {
		t.Error("Output file should be initialized")
	}

	if rec.wavEncoder == nil {
		t.Error("WAV encoder should be initialized")
	}

	if rec.sampleBuf.Format.NumChannels != 2 {
		t.Errorf("Buffer channels mismatch: got %d, want 2", rec.sampleBuf.Format.NumChannels)
	}

	if rec.sampleBuf.Format.SampleRate != testSampleRate {
		t.Errorf("Buffer sample rate mismatch: got %d, want %d",
			rec.sampleBuf.Format.SampleRate, testSampleRate)
	}

	// Store reference to check file closure.
	outputFile := rec.outputFile

	rec.Write(testBuffer)
	rec.Write(testBuffer)

	if err := rec.Stop(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	if rec.Recording() {
		t.Error("Recorder should not be in recording state after stopping")
	}

	if rec.outputFile != nil || rec.wavEncoder != nil {
		t.Error("File and encoder should be nil after stopping")
	}

	if err := outputFile.Close(); err == nil {
		t.Error("File should already be closed")
	}

	wantFrames := uint64(len(testBuffer)) // two writes of len/2 frames
	if rec.Frames() != wantFrames {
		t.Errorf("Frames = %d, want %d", rec.Frames(), wantFrames)
	}

	d := decode(t, filename)
	if d.NumChans != 2 || d.BitDepth != 16 || d.SampleRate != testSampleRate {
		t.Errorf("header = %d ch, %d bit, %d Hz", d.NumChans, d.BitDepth, d.SampleRate)
	}
	dur, err := d.Duration()
	if err != nil {
		t.Fatal(err)
	}
	want := time.Duration(float64(wantFrames) / testSampleRate * float64(time.Second))
	if diff := dur - want; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("duration = %v, want %v", dur, want)
	}
}

func TestRecordingErrorCases(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		desc        string
		filename    string
		recording   bool
		expectError error
	}{
		{"Already recording", "valid.wav", true, ErrRecording},
		{"Valid path", "test.wav", false, nil},
		{"Nested directory is created", "a/b/test.wav", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			rec := newTestRecorder(16)
			if tt.recording {
				if err := rec.Start(filepath.Join(dir, "first.wav")); err != nil {
					t.Fatal(err)
				}
				defer rec.Stop()
			}

			err := rec.Start(filepath.Join(dir, tt.filename))
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("err = %v, want %v", err, tt.expectError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if err := rec.Stop(); err != nil {
				t.Fatal(err)
			}
		})
	}

	// Stop when not recording is a no-op.
	if err := newTestRecorder(16).Stop(); err != nil {
		t.Errorf("Stop when idle: %v", err)
	}
}

func TestRecordingBitDepths(t *testing.T) {
	for _, depth := range []int{16, 24, 32, 8} {
		t.Run(formatFloat(float64(depth)), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "depth.wav")
			rec := newTestRecorder(depth)
			if err := rec.Start(path); err != nil {
				t.Fatal(err)
			}
			rec.Write(loudBuffer)
			if err := rec.Stop(); err != nil {
				t.Fatal(err)
			}
			want := depth
			if depth == 8 {
				want = 16 // unsupported depths fall back
			}
			if got := int(decode(t, path).BitDepth); got != want {
				t.Errorf("bit depth = %d, want %d", got, want)
			}
		})
	}
}

func TestRecordingGateSkipsLeadingSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gated.wav")
	rec := newTestRecorder(16)
	rec.SetGate(0.1)
	if err := rec.Start(path); err != nil {
		t.Fatal(err)
	}
	rec.Write(quietBuffer)
	rec.Write(quietBuffer)
	if rec.Frames() != 0 {
		t.Fatalf("silence recorded: %d frames", rec.Frames())
	}
	rec.Write(loudBuffer)
	rec.Write(quietBuffer) // once open, everything is kept
	if err := rec.Stop(); err != nil {
		t.Fatal(err)
	}
	if got, want := rec.Frames(), uint64(len(loudBuffer)); got != want {
		t.Errorf("Frames = %d, want %d", got, want)
	}
}

func TestRecordingIdleWriteIgnored(t *testing.T) {
	rec := newTestRecorder(16)
	rec.Write(testBuffer)
	if rec.Frames() != 0 {
		t.Errorf("idle recorder counted %d frames", rec.Frames())
	}
}

func TestFileName(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if got, want := FileName("out", now), filepath.Join("out", "handbeat-20260304-050607.wav"); got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestRecordingReusesConversionBuffer(t *testing.T) {
	rec := newTestRecorder(16)
	if err := rec.Start(filepath.Join(t.TempDir(), "reuse.wav")); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	defer rec.Stop()

	data := &rec.sampleBuf.Data[:1][0]
	for range 10 {
		rec.Write(testBuffer)
	}
	if &rec.sampleBuf.Data[:1][0] != data {
		t.Error("conversion buffer was reallocated for a block that fits")
	}

	big := signal(testFrameSize*4, 0.5)
	rec.Write(big)
	if len(rec.sampleBuf.Data) != len(big) {
		t.Errorf("buffer not grown for a larger block: %d", len(rec.sampleBuf.Data))
	}
}

func BenchmarkRecordingStartStopHotPath(b *testing.B) {
	rec := newTestRecorder(16)
	filename := filepath.Join(b.TempDir(), "bench.wav")

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		_ = rec.Start(filename)
		_ = rec.Stop()
	}
}

func BenchmarkRecordingProcessHotPath(b *testing.B) {
	rec := newTestRecorder(16)
	_ = rec.Start(filepath.Join(b.TempDir(), "bench_process.wav"))
	defer rec.Stop()

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		rec.Write(testBuffer)
	}
}
