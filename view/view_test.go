package view

import (
	"math"
	"testing"
)

func TestSnapLaw(t *testing.T) {
	b := DefaultBounds
	// Any factor within SnapRange of 1 must snap to exactly 1.
	for _, f := range []float64{0.95, 0.97, 1.0, 1.03, 1.09} {
		snapped := snapFactor(f, b)
		if snapped != 1.0 {
			t.Errorf("snapFactor(%v) = %v, want 1.0", f, snapped)
		}
	}
}

// snapFactor applies the same snap rule FactorFromSlider uses, for testing
// the rule directly against arbitrary factors rather than slider positions.
func snapFactor(f float64, b Bounds) float64 {
	if math.Abs(f-1) <= b.SnapRange {
		return 1
	}
	return f
}

func TestInverseLaw(t *testing.T) {
	b := DefaultBounds
	for f := b.MinFactor; f <= b.MaxFactor; f *= 1.7 {
		// The snap law (TestSnapLaw) takes precedence for factors within
		// SnapRange of 1: those are intentionally forced to exactly 1, which
		// is not what the inverse law is checking.
		if math.Abs(f-1) <= b.SnapRange {
			continue
		}

		v := SliderFromFactor(f, b)
		got := FactorFromSlider(v, b)
		if math.Abs(got-f)/f > 0.01 {
			t.Errorf("factor %v -> slider %v -> factor %v, want within 1%%", f, v, got)
		}
	}
}

func TestFactorAtMidpointIsOne(t *testing.T) {
	b := DefaultBounds
	if got := FactorFromSlider(sliderSteps/2, b); got != 1 {
		t.Errorf("FactorFromSlider(mid) = %v, want 1", got)
	}
}

func TestSetViewClampsToTrack(t *testing.T) {
	m := New(48000, 100, DefaultBounds)

	m.SetView(-10, 20, 2048)
	snap := m.Snapshot()
	if snap.ViewStart < 0 {
		t.Errorf("ViewStart = %v, want >= 0", snap.ViewStart)
	}

	m.SetView(95, 20, 2048)
	snap = m.Snapshot()
	if snap.ViewStart+snap.ViewDuration > snap.TotalDuration+1e-9 {
		t.Errorf("view extends past track: start=%v duration=%v total=%v", snap.ViewStart, snap.ViewDuration, snap.TotalDuration)
	}
}

func TestSetViewSnapsSamplesPerPixel(t *testing.T) {
	m := New(48000, 100, DefaultBounds)
	m.SetView(0, 10, 2048)

	snap := m.Snapshot()
	levels := m.AllowedLevels()

	found := false
	for _, l := range levels {
		if l == snap.SamplesPerPixel {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("SamplesPerPixel %d is not in allowed levels %v", snap.SamplesPerPixel, levels)
	}
}

func TestZoomAroundCursorClamps(t *testing.T) {
	m := New(48000, 100, DefaultBounds)
	m.ZoomAroundCursor(50, 0.5, 800, 256)

	snap := m.Snapshot()
	if snap.ViewStart < 0 || snap.ViewStart+snap.ViewDuration > snap.TotalDuration+1e-9 {
		t.Errorf("zoomed view out of range: %+v", snap)
	}
}
