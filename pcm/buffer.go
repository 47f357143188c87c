// Package pcm defines the immutable decoded-audio contract this module
// consumes from an external decoder. It owns no decoding logic: the decoder
// itself is an external collaborator.
package pcm

import (
	"fmt"
	"time"
)

// PcmBuffer is an immutable, decoded multi-channel audio buffer. Instances
// are created once by New and never mutated; a new file load replaces the
// whole value wholesale.
type PcmBuffer struct {
	sampleRate int
	channels   [][]float32
	length     int
}

// New constructs a PcmBuffer from per-channel sample sequences. All channels
// must have equal length. Returns an error if sampleRate is not positive, if
// there are no channels, or if channel lengths disagree.
func New(sampleRate int, channels [][]float32) (*PcmBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pcm: sample rate must be positive, got %d", sampleRate)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("pcm: at least one channel is required")
	}

	length := len(channels[0])
	for i, ch := range channels {
		if len(ch) != length {
			return nil, fmt.Errorf("pcm: channel %d has length %d, want %d", i, len(ch), length)
		}
	}

	owned := make([][]float32, len(channels))
	for i, ch := range channels {
		buf := make([]float32, len(ch))
		copy(buf, ch)
		owned[i] = buf
	}

	return &PcmBuffer{sampleRate: sampleRate, channels: owned, length: length}, nil
}

// SampleRate returns the sample rate in Hz.
func (p *PcmBuffer) SampleRate() int {
	return p.sampleRate
}

// ChannelCount returns the number of channels.
func (p *PcmBuffer) ChannelCount() int {
	return len(p.channels)
}

// Length returns the number of samples per channel.
func (p *PcmBuffer) Length() int {
	return p.length
}

// Channels returns the per-channel sample sequences. Callers must not mutate
// the returned slices.
func (p *PcmBuffer) Channels() [][]float32 {
	return p.channels
}

// Duration returns the total duration of the buffer.
func (p *PcmBuffer) Duration() time.Duration {
	return time.Duration(float64(p.length) / float64(p.sampleRate) * float64(time.Second))
}

// DurationSeconds returns the total duration in seconds, as used throughout
// the view/render/playhead components.
func (p *PcmBuffer) DurationSeconds() float64 {
	return float64(p.length) / float64(p.sampleRate)
}
