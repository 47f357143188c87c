// Package view implements the waveform view model (component E): the
// mutable, single-writer window over a PCM track, its bi-log zoom-slider
// mapping, and the pan/zoom clamping rules.
package view

import (
	"math"
	"sort"
	"sync"

	"github.com/kakira9618/spectro/algorithms/common"
)

const sliderSteps = 200

// Bounds configures the bi-log zoom curve and base samples-per-pixel.
type Bounds struct {
	MinFactor float64 // e.g. 0.125
	MaxFactor float64 // e.g. 256
	SnapRange float64 // e.g. 0.1
	BaseSPP   int     // e.g. 2048
}

// DefaultBounds holds the default zoom/pan configuration constants.
var DefaultBounds = Bounds{MinFactor: 0.125, MaxFactor: 256, SnapRange: 0.1, BaseSPP: 2048}

// Snapshot is an immutable, value-copy read of a Model's current state.
type Snapshot struct {
	ViewStart       float64
	ViewDuration    float64
	SamplesPerPixel int
	SampleRate      int
	TotalDuration   float64
}

// PixelsPerSecond returns the CSS pixel density implied by this snapshot.
func (s Snapshot) PixelsPerSecond() float64 {
	if s.SamplesPerPixel <= 0 {
		return 0
	}
	return float64(s.SampleRate) / float64(s.SamplesPerPixel)
}

// Model is the mutable, single-writer view window. All exported methods are
// safe to call from one writer goroutine; Snapshot is safe to call from any
// goroutine holding a reference to the Model.
type Model struct {
	mu sync.RWMutex

	bounds        Bounds
	sampleRate    int
	totalDuration float64

	viewStart       float64
	viewDuration    float64
	samplesPerPixel int

	allowedLevels []int
}

// New creates a Model for a track with the given sample rate and total
// duration, using the given zoom bounds.
func New(sampleRate int, totalDuration float64, bounds Bounds) *Model {
	m := &Model{
		bounds:        bounds,
		sampleRate:    sampleRate,
		totalDuration: totalDuration,
		viewStart:     0,
		viewDuration:  totalDuration,
	}
	m.allowedLevels = buildAllowedLevels(bounds)
	m.samplesPerPixel = snapToLevel(bounds.BaseSPP, m.allowedLevels)
	return m
}

// AllowedLevels returns the deduplicated, sorted samples-per-pixel ladder
// derived from evaluating the bi-log mapping at each integer slider
// position.
func (m *Model) AllowedLevels() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.allowedLevels))
	copy(out, m.allowedLevels)
	return out
}

func buildAllowedLevels(b Bounds) []int {
	seen := make(map[int]bool)
	var levels []int
	for v := 0; v <= sliderSteps; v++ {
		f := FactorFromSlider(float64(v), b)
		spp := int(math.Round(float64(b.BaseSPP) / f))
		if spp < 1 {
			spp = 1
		}
		if !seen[spp] {
			seen[spp] = true
			levels = append(levels, spp)
		}
	}
	sort.Ints(levels)
	return levels
}

func snapToLevel(spp int, levels []int) int {
	if len(levels) == 0 {
		return spp
	}
	best := levels[0]
	bestDiff := math.Abs(float64(spp - best))
	for _, l := range levels[1:] {
		diff := math.Abs(float64(spp - l))
		if diff < bestDiff {
			best = l
			bestDiff = diff
		}
	}
	return best
}

// FactorFromSlider maps a continuous slider position v in [0, sliderSteps] to
// a zoom factor using the bi-log curve: exponential below the midpoint,
// exponential above it, meeting at exactly 1 in the middle, snapped to 1
// within b.SnapRange. v is a float64 so the curve and its inverse
// (SliderFromFactor) round-trip without the rounding error an integer
// slider position would introduce; a host UI with an integer widget
// discretizes only at its own boundary, passing the widget's value as
// float64 here.
func FactorFromSlider(v float64, b Bounds) float64 {
	mid := float64(sliderSteps / 2)

	var f float64
	switch {
	case v < mid:
		f = b.MinFactor * math.Pow(1/b.MinFactor, v/mid)
	case v > mid:
		f = math.Pow(b.MaxFactor, (v-mid)/mid)
	default:
		f = 1
	}

	if math.Abs(f-1) <= b.SnapRange {
		return 1
	}
	return f
}

// SliderFromFactor is the exact inverse of FactorFromSlider (ignoring the
// snap, which is not invertible by construction).
func SliderFromFactor(f float64, b Bounds) float64 {
	mid := float64(sliderSteps / 2)

	switch {
	case f < 1:
		return mid * math.Log(f/b.MinFactor) / math.Log(1/b.MinFactor)
	case f > 1:
		return mid + mid*math.Log(f)/math.Log(b.MaxFactor)
	default:
		return mid
	}
}

// SetView sets the view window and samples-per-pixel, clamping viewStart to
// [0, totalDuration-viewDuration] and snapping spp to the nearest allowed
// level.
func (m *Model) SetView(viewStart, viewDuration float64, samplesPerPixel int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.viewDuration = common.Clamp(viewDuration, 0, m.totalDuration)
	maxStart := m.totalDuration - m.viewDuration
	if maxStart < 0 {
		maxStart = 0
	}
	m.viewStart = common.Clamp(viewStart, 0, maxStart)
	m.samplesPerPixel = snapToLevel(samplesPerPixel, m.allowedLevels)
}

// Pan shifts viewStart by deltaSeconds, clamped to the valid range.
func (m *Model) Pan(deltaSeconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxStart := m.totalDuration - m.viewDuration
	if maxStart < 0 {
		maxStart = 0
	}
	m.viewStart = common.Clamp(m.viewStart+deltaSeconds, 0, maxStart)
}

// ZoomAroundCursor picks the samples-per-pixel nearest to targetSPP, derives
// the new view duration from the container width in CSS pixels, and
// re-centers the view so that targetTime stays under the cursor fraction r
// in [0,1].
func (m *Model) ZoomAroundCursor(targetTime float64, r float64, containerWidthPx float64, targetSPP int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	spp := snapToLevel(targetSPP, m.allowedLevels)
	pps := float64(m.sampleRate) / float64(spp)

	viewDuration := containerWidthPx / pps
	if viewDuration > m.totalDuration {
		viewDuration = m.totalDuration
	}

	maxStart := m.totalDuration - viewDuration
	if maxStart < 0 {
		maxStart = 0
	}

	m.samplesPerPixel = spp
	m.viewDuration = viewDuration
	m.viewStart = common.Clamp(targetTime-r*viewDuration, 0, maxStart)
}

// Snapshot returns a value-copy read of the current view state.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		ViewStart:       m.viewStart,
		ViewDuration:    m.viewDuration,
		SamplesPerPixel: m.samplesPerPixel,
		SampleRate:      m.sampleRate,
		TotalDuration:   m.totalDuration,
	}
}
