package playhead

import (
	"testing"
	"time"
)

func TestPlayheadXHiddenWhenNotLoaded(t *testing.T) {
	s := NewSynchronizer()
	s.SetPlayhead(5, true)

	_, visible := s.PlayheadX(0, 10, 800, 80)
	if visible {
		t.Error("PlayheadX visible = true, want false when no spectrogram is loaded")
	}
}

func TestPlayheadXClampsToContainerWidth(t *testing.T) {
	s := NewSynchronizer()
	s.SetLoaded(true)
	s.SetPlayhead(100, true)

	x, visible := s.PlayheadX(0, 10, 80, 800)
	if !visible {
		t.Fatal("PlayheadX visible = false, want true when loaded")
	}
	if x != 80 {
		t.Errorf("PlayheadX = %v, want clamped to 80", x)
	}
}

func TestTickRepaintsOnlyWhenViewChangesBeyondEpsilon(t *testing.T) {
	s := NewSynchronizer()
	s.SetLoaded(true)
	s.SetPlayhead(1, true)

	repaints := 0
	s.SetRepaintCallback(func() { repaints++ })

	now := time.Now()
	s.Tick(now, 0, 10)
	if repaints != 1 {
		t.Fatalf("repaints after first tick = %d, want 1", repaints)
	}

	s.Tick(now, 0, 10)
	if repaints != 1 {
		t.Fatalf("repaints after unchanged tick = %d, want 1 (no redundant repaint)", repaints)
	}

	s.Tick(now, 5, 10)
	if repaints != 2 {
		t.Fatalf("repaints after moved view = %d, want 2", repaints)
	}
}

func TestTickDoesNothingWhenNotPlaying(t *testing.T) {
	s := NewSynchronizer()
	s.SetLoaded(true)
	s.SetPlayhead(1, false)

	repaints := 0
	s.SetRepaintCallback(func() { repaints++ })

	s.Tick(time.Now(), 0, 10)
	if repaints != 0 {
		t.Errorf("repaints = %d, want 0 when not playing", repaints)
	}
}
