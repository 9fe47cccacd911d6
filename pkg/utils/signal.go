// SPDX-License-Identifier: MIT
//
// Package utils holds signal generators and spectrum helpers shared by the
// analysis and audio tests.
package utils

import "math"

// SineInto fills dst with amp*sin(2*pi*freq*t) sampled at rate.
func SineInto(dst []float64, rate, freq, amp float64) {
	for i := range dst {
		t := float64(i) / rate
		dst[i] = amp * math.Sin(2*math.Pi*freq*t)
	}
}

// ChordInto fills dst with a 440Hz fundamental and two harmonics peaking
// near amp.
func ChordInto(dst []float64, rate, amp float64) {
	for i := range dst {
		t := float64(i) / rate
		dst[i] = amp * (math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2)
	}
}

// StereoSine returns frames of interleaved stereo at rate, the right channel
// the inverse of the left. The middle sample holds -amp so the nominal peak
// is always present.
func StereoSine(frames int, rate, freq float64, amp float32) []float32 {
	buf := make([]float32, 2*frames)
	for i := 0; i < frames; i++ {
		v := amp * float32(math.Sin(2*math.Pi*freq*float64(i)/rate))
		buf[2*i] = v
		buf[2*i+1] = -v
	}
	if len(buf) > 0 {
		buf[len(buf)/2] = -amp
	}
	return buf
}

// PeakBin returns the index of the largest value in levels[start:end+1].
// The range is clamped to the slice.
func PeakBin(levels []float64, start, end int) int {
	if len(levels) == 0 {
		return 0
	}
	if start < 0 {
		start = 0
	}
	if end >= len(levels) {
		end = len(levels) - 1
	}
	peak := start
	for bin := start + 1; bin <= end; bin++ {
		if levels[bin] > levels[peak] {
			peak = bin
		}
	}
	return peak
}
