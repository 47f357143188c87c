package spectrogram

import "testing"

func TestNewValidatesShape(t *testing.T) {
	if _, err := New(make([]float32, 10), 2, 4, 480, 1024, 48000, 0, 1, 1, 0); err == nil {
		t.Error("expected error for mismatched data length")
	}
	if _, err := New(nil, 0, 4, 480, 1024, 48000, 0, 1, 1, 0); err == nil {
		t.Error("expected error for zero frames")
	}
}

func TestFrameTime(t *testing.T) {
	s, err := New(make([]float32, 8), 2, 4, 480, 1024, 48000, 1.5, 1, 10, 0)
	if err != nil {
		t.Fatal(err)
	}

	want := 1.5
	if got := s.FrameTime(0); got != want {
		t.Errorf("FrameTime(0) = %v, want %v", got, want)
	}

	want = 1.5 + 480.0/48000.0
	if got := s.FrameTime(1); got != want {
		t.Errorf("FrameTime(1) = %v, want %v", got, want)
	}
}

func TestFrameCount(t *testing.T) {
	// 2s @ 48000Hz, hop=960, fft=1024: floor((96000-1024)/960)+1 = 99.
	if got, want := FrameCount(96000, 960, 1024), 99; got != want {
		t.Errorf("FrameCount = %d, want %d", got, want)
	}

	if got := FrameCount(512, 1, 1024); got != 0 {
		t.Errorf("FrameCount for too-short segment = %d, want 0", got)
	}
}

func TestNewCopiesData(t *testing.T) {
	data := []float32{0.1, 0.2, 0.3, 0.4}
	s, err := New(data, 1, 4, 480, 1024, 48000, 0, 1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	data[0] = 99
	if s.Data[0] == 99 {
		t.Error("Spectrogram must own a copy of its data")
	}
}
