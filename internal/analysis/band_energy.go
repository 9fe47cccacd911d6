// SPDX-License-Identifier: MIT
package analysis

// Band cutoffs as fractions of the bin count.
const (
	bassFraction = 0.10
	midFraction  = 0.40
)

// Bands partitions N analysis bins into three contiguous ranges:
// bass [0, floor(0.1N)), mid [floor(0.1N), floor(0.4N)) and treble
// [floor(0.4N), N). Every bin belongs to exactly one band.
type Bands struct {
	N       int
	BassEnd int
	MidEnd  int
}

// NewBands computes the band edges for n bins.
func NewBands(n int) Bands {
	if n < 0 {
		n = 0
	}
	return Bands{
		N:       n,
		BassEnd: int(float64(n) * bassFraction),
		MidEnd:  int(float64(n) * midFraction),
	}
}

// Energy holds the band averages and overall level, each in [0,1].
type Energy struct {
	Bass   float64
	Mid    float64
	Treble float64
	Level  float64
}

// Measure averages levels (each in [0,1]) over each band and over all
// bins. Empty bands read as zero. len(levels) must equal b.N.
func (b Bands) Measure(levels []float64) Energy {
	var bass, mid, treble float64
	for i := 0; i < b.BassEnd; i++ {
		bass += levels[i]
	}
	for i := b.BassEnd; i < b.MidEnd; i++ {
		mid += levels[i]
	}
	for i := b.MidEnd; i < b.N; i++ {
		treble += levels[i]
	}
	e := Energy{
		Bass:   bass / float64(max(1, b.BassEnd)),
		Mid:    mid / float64(max(1, b.MidEnd-b.BassEnd)),
		Treble: treble / float64(max(1, b.N-b.MidEnd)),
	}
	if b.N > 0 {
		e.Level = (bass + mid + treble) / float64(b.N)
	}
	return e
}
