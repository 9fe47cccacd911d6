// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"handbeat/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	default:
		return "Unknown"
	}
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // Windowed time-domain block.
	fftOutput []complex128 // FFT complex results, N/2+1 values.
	smoothed  []float64    // Time-smoothed linear magnitudes, N/2 bins.
	levels    []float64    // Smoothed magnitudes mapped to [0,1].
	window    []float64    // Pre-calculated window coefficients.
}

// Spectrum turns a block of output samples into per-bin levels in [0,1]:
// window, FFT, magnitude scaled by 1/N, temporal smoothing, then a linear
// map of the dB value between MinDecibels and MaxDecibels. It holds no lock;
// the analyzer serialises access.
type Spectrum struct {
	fftCalculator *fourier.FFT
	fftSize       int
	sampleRate    float64
	smoothing     float64
	minDB, maxDB  float64
	workspace     fftWorkspace
}

// SpectrumConfig configures a Spectrum.
type SpectrumConfig struct {
	FFTSize     int
	SampleRate  float64
	Window      WindowFunc
	Smoothing   float64 // [0,1)
	MinDecibels float64
	MaxDecibels float64
}

// NewSpectrum allocates every buffer the Spectrum needs. The FFT size must
// be a power of two.
func NewSpectrum(cfg SpectrumConfig) (*Spectrum, error) {
	if !bitint.IsPowerOfTwo(cfg.FFTSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", cfg.FFTSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.MinDecibels >= cfg.MaxDecibels {
		return nil, fmt.Errorf("decibel range [%.1f, %.1f] is empty", cfg.MinDecibels, cfg.MaxDecibels)
	}
	smoothing := cfg.Smoothing
	if math.IsNaN(smoothing) || smoothing < 0 {
		smoothing = 0
	}
	if smoothing >= 1 {
		smoothing = 0.99
	}

	windowCoeffs := make([]float64, cfg.FFTSize)
	applyWindow(windowCoeffs, cfg.Window)
	bins := cfg.FFTSize / 2

	logger.Infof("Initializing spectrum (Size: %d, SampleRate: %.1f Hz, Window: %v)", cfg.FFTSize, cfg.SampleRate, cfg.Window)

	return &Spectrum{
		fftCalculator: fourier.NewFFT(cfg.FFTSize),
		fftSize:       cfg.FFTSize,
		sampleRate:    cfg.SampleRate,
		smoothing:     smoothing,
		minDB:         cfg.MinDecibels,
		maxDB:         cfg.MaxDecibels,
		workspace: fftWorkspace{
			input:     make([]float64, cfg.FFTSize),
			fftOutput: make([]complex128, cfg.FFTSize/2+1),
			smoothed:  make([]float64, bins),
			levels:    make([]float64, bins),
			window:    windowCoeffs,
		},
	}, nil
}

// Process analyses block, the most recent FFTSize samples, and returns the
// per-bin levels. The returned slice is reused by the next call. Shorter
// blocks are zero-padded.
func (s *Spectrum) Process(block []float64) []float64 {
	ws := &s.workspace
	for i := range s.fftSize {
		if i < len(block) {
			ws.input[i] = block[i] * ws.window[i]
		} else {
			ws.input[i] = 0
		}
	}

	s.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	scale := 1 / float64(s.fftSize)
	span := s.maxDB - s.minDB
	for i := range ws.smoothed {
		mag := cmplx.Abs(ws.fftOutput[i]) * scale
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			mag = 0
		}
		sm := s.smoothing*ws.smoothed[i] + (1-s.smoothing)*mag
		ws.smoothed[i] = sm

		level := 0.0
		if sm > 0 {
			level = (20*math.Log10(sm) - s.minDB) / span
		}
		ws.levels[i] = math.Max(0, math.Min(1, level))
	}
	return ws.levels
}

// Bins returns the number of analysis bins, FFTSize/2.
func (s *Spectrum) Bins() int {
	return len(s.workspace.levels)
}

// LevelsInto copies the latest levels into dst.
func (s *Spectrum) LevelsInto(dst []float64) error {
	if len(dst) != len(s.workspace.levels) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dst), len(s.workspace.levels))
	}
	copy(dst, s.workspace.levels)
	return nil
}

// FrequencyForBin returns the center frequency (Hz) of bin i.
func (s *Spectrum) FrequencyForBin(i int) float64 {
	if i < 0 || i >= len(s.workspace.levels) {
		return 0.0
	}
	return float64(i) * (s.sampleRate / float64(s.fftSize))
}

// FFTSize returns the configured FFT size.
func (s *Spectrum) FFTSize() int {
	return s.fftSize
}

// Reset clears the smoothing history.
func (s *Spectrum) Reset() {
	clear(s.workspace.smoothed)
	clear(s.workspace.levels)
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Blackman) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman", "":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Blackman, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall
// back to Blackman.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window funcs scale in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		logger.Warnf("Unknown window function type %d, defaulting to Blackman", windowType)
		window.Blackman(coeffs)
	}
}
