// Package window provides the Hann window used by the spectrogram builder,
// and a Framer that downmixes multi-channel PCM to mono and windows it frame
// by frame. This module's spec explicitly excludes window functions other
// than Hann, so no other window type lives here.
package window

import (
	"math"

	"github.com/kakira9618/spectro/algorithms/common"
)

// Hann holds precomputed Hann window coefficients for a fixed size.
type Hann struct {
	size         int
	coefficients []float64
}

// NewHann creates a Hann window of the given size: w[i] = 0.5*(1-cos(2*pi*i/(N-1))).
func NewHann(size int) *Hann {
	h := &Hann{size: size, coefficients: make([]float64, size)}

	denom := float64(size - 1)
	for i := range size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denom))
	}

	return h
}

// Size returns the window length.
func (h *Hann) Size() int {
	return h.size
}

// Coefficients returns the window's coefficients. Callers must not mutate
// the returned slice.
func (h *Hann) Coefficients() []float64 {
	return h.coefficients
}

// Framer extracts and windows frames of a multi-channel PCM signal for a
// fixed Hann window.
type Framer struct {
	window *Hann
}

// NewFramer creates a Framer bound to the given Hann window.
func NewFramer(window *Hann) *Framer {
	return &Framer{window: window}
}

// Frame downmixes channels by arithmetic mean (sum then divide once) for the
// fftSize samples starting at startSample, then multiplies element-wise by
// the Hann coefficients into out. out must have length fftSize. Samples past
// the end of the channel data contribute zero (zero-padding at the tail
// only).
func (f *Framer) Frame(channels [][]float32, startSample, fftSize int, out []float64) {
	coeffs := f.window.Coefficients()
	channelCount := len(channels)

	mixBuf := make([]float64, channelCount)

	for i := range fftSize {
		sampleIdx := startSample + i

		var sample float64
		if channelCount == 1 {
			if sampleIdx >= 0 && sampleIdx < len(channels[0]) {
				sample = float64(channels[0][sampleIdx])
			}
		} else {
			anyInRange := false
			for c := range channelCount {
				if sampleIdx >= 0 && sampleIdx < len(channels[c]) {
					mixBuf[c] = float64(channels[c][sampleIdx])
					anyInRange = true
				} else {
					mixBuf[c] = 0
				}
			}
			if anyInRange {
				sample = common.Mean(mixBuf)
			}
		}

		out[i] = sample * coeffs[i]
	}
}
