// SPDX-License-Identifier: MIT
//
// Package bitint provides the power-of-two helpers used to size FFT
// windows and analysis buffers. Every function is allocation free and
// constant time.
//
// NextPowerOfTwo subtracts one before taking the bit length so that exact
// powers of two are preserved: for 8, bits.Len(7) is 3 and 1<<3 is 8, where
// bits.Len(8) would double it to 16.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size, or 1 for
// size <= 0.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of two
// has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// ClampPowerOfTwo rounds n up to a power of two and limits it to [lo, hi].
// lo and hi must themselves be powers of two.
func ClampPowerOfTwo(n, lo, hi int) int {
	switch p := NextPowerOfTwo(n); {
	case p < lo:
		return lo
	case p > hi:
		return hi
	default:
		return p
	}
}
