package pcm

import "testing"

func TestNewRejectsBadSampleRate(t *testing.T) {
	if _, err := New(0, [][]float32{{1, 2}}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestNewRejectsNoChannels(t *testing.T) {
	if _, err := New(48000, nil); err == nil {
		t.Error("expected error for no channels")
	}
}

func TestNewRejectsMismatchedChannelLengths(t *testing.T) {
	if _, err := New(48000, [][]float32{{1, 2, 3}, {1, 2}}); err == nil {
		t.Error("expected error for mismatched channel lengths")
	}
}

func TestNewAndAccessors(t *testing.T) {
	buf, err := New(48000, [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}})
	if err != nil {
		t.Fatal(err)
	}

	if buf.SampleRate() != 48000 {
		t.Errorf("SampleRate = %d, want 48000", buf.SampleRate())
	}
	if buf.ChannelCount() != 2 {
		t.Errorf("ChannelCount = %d, want 2", buf.ChannelCount())
	}
	if buf.Length() != 4 {
		t.Errorf("Length = %d, want 4", buf.Length())
	}

	want := 4.0 / 48000.0
	if got := buf.DurationSeconds(); got != want {
		t.Errorf("DurationSeconds = %v, want %v", got, want)
	}
}

func TestNewCopiesChannelData(t *testing.T) {
	src := []float32{1, 2, 3}
	buf, err := New(48000, [][]float32{src})
	if err != nil {
		t.Fatal(err)
	}

	src[0] = 99
	if buf.Channels()[0][0] == 99 {
		t.Error("PcmBuffer must own a copy of the channel data, not alias the caller's slice")
	}
}
