// Package spectrogram defines the immutable result type produced by one
// analysis run of the spectrogram builder (component C). Instances are
// never mutated after construction; swapping the active spectrogram is
// always a whole-value pointer replacement.
package spectrogram

import "fmt"

// Spectrogram is a dense row-major time-frequency magnitude image, with
// every cell normalized to [0,1].
type Spectrogram struct {
	Data   []float32 // row-major, shape Frames x Bins
	Frames int
	Bins   int

	HopSize    int
	FFTSize    int
	SampleRate int

	SliceStart    float64 // seconds, start of the PCM region this covers
	SliceDuration float64 // seconds
	TotalDuration float64 // seconds, duration of the parent PcmBuffer

	Token int64 // the request token this instance was produced under
}

// New validates and constructs a Spectrogram. data must have length
// frames*bins. Returns an error if the shape is inconsistent.
func New(data []float32, frames, bins, hopSize, fftSize, sampleRate int, sliceStart, sliceDuration, totalDuration float64, token int64) (*Spectrogram, error) {
	if frames < 1 {
		return nil, fmt.Errorf("spectrogram: frames must be >= 1, got %d", frames)
	}
	if bins < 1 {
		return nil, fmt.Errorf("spectrogram: bins must be >= 1, got %d", bins)
	}
	if len(data) != frames*bins {
		return nil, fmt.Errorf("spectrogram: data length %d does not match frames*bins = %d", len(data), frames*bins)
	}

	owned := make([]float32, len(data))
	copy(owned, data)

	return &Spectrogram{
		Data:          owned,
		Frames:        frames,
		Bins:          bins,
		HopSize:       hopSize,
		FFTSize:       fftSize,
		SampleRate:    sampleRate,
		SliceStart:    sliceStart,
		SliceDuration: sliceDuration,
		TotalDuration: totalDuration,
		Token:         token,
	}, nil
}

// FrameTime returns the time, in seconds, of the start of frame f.
func (s *Spectrogram) FrameTime(f int) float64 {
	return s.SliceStart + float64(f)*float64(s.HopSize)/float64(s.SampleRate)
}

// At returns the normalized magnitude at frame f, bin b. Bin 0 is DC; bin
// Bins-1 is the bin nearest Nyquist.
func (s *Spectrogram) At(f, b int) float32 {
	return s.Data[f*s.Bins+b]
}

// FrameCount returns the number of STFT frames implied by a segment of the given
// length, hop size, and FFT size. Returns 0 when the segment is too short to
// produce a single full frame.
func FrameCount(segmentLength, hopSize, fftSize int) int {
	if segmentLength < fftSize || hopSize <= 0 {
		return 0
	}
	return (segmentLength-fftSize)/hopSize + 1
}
