// Package playhead drives repaint on playback ticks and reports the
// playhead's position within the view window (component G). It reads the
// view window on each tick and never moves it.
package playhead

import (
	"math"
	"sync"
	"time"

	"github.com/kakira9618/spectro/algorithms/common"
)

// Playhead is the external player's reported transport state.
type Playhead struct {
	CurrentTime float64
	Playing     bool
}

// Synchronizer reconciles playback time against the view window once per
// Tick, invoking a repaint callback when the view changed or on the first
// tick that has no earlier view to compare against.
type Synchronizer struct {
	mu sync.Mutex

	playhead Playhead
	loaded   bool

	lastViewStart    float64
	lastViewDuration float64
	haveLastView     bool

	onRepaint func()
}

// NewSynchronizer creates a Synchronizer with no repaint callback set.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{}
}

// SetRepaintCallback registers the function invoked on a tick whose view
// window differs from the last one seen; a change of playhead position alone
// does not trigger it.
func (s *Synchronizer) SetRepaintCallback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRepaint = fn
}

// SetPlayhead updates the transport state read by the next Tick.
func (s *Synchronizer) SetPlayhead(currentTime float64, playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playhead = Playhead{CurrentTime: currentTime, Playing: playing}
}

// SetLoaded marks whether a spectrogram is currently loaded; while this is
// false PlayheadX reports the playhead as hidden and Tick does nothing.
func (s *Synchronizer) SetLoaded(loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = loaded
	if !loaded {
		s.haveLastView = false
	}
}

// Tick reconciles the current view against the last seen view, invoking the
// repaint callback when the view moved by more than epsilon or nothing has
// repainted for this view yet. viewStart/viewDuration are read from the
// caller's view.Model snapshot; the synchronizer holds no reference to it.
func (s *Synchronizer) Tick(now time.Time, viewStart, viewDuration float64) {
	s.mu.Lock()

	if !s.loaded || !s.playhead.Playing {
		s.mu.Unlock()
		return
	}

	eps := math.Max(1e-4, viewDuration*1e-3)

	changed := !s.haveLastView ||
		math.Abs(viewStart-s.lastViewStart) > eps ||
		math.Abs(viewDuration-s.lastViewDuration) > eps

	s.lastViewStart = viewStart
	s.lastViewDuration = viewDuration
	s.haveLastView = true

	cb := s.onRepaint
	s.mu.Unlock()

	if changed && cb != nil {
		cb()
	}
}

// PlayheadX returns the playhead's x position in CSS pixels, clamped to the
// visible container width, relative to the given view window. Returns 0 and
// false when no spectrogram is loaded (the host should not draw a playhead).
func (s *Synchronizer) PlayheadX(viewStart, viewDuration, cssWidth, ppsCss float64) (x float64, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return 0, false
	}

	maxX := math.Min(cssWidth, viewDuration*ppsCss)
	x = common.Clamp((s.playhead.CurrentTime-viewStart)*ppsCss, 0, maxX)
	return x, true
}

// CurrentTime returns the last time reported via SetPlayhead.
func (s *Synchronizer) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead.CurrentTime
}

// Playing reports whether playback is currently active.
func (s *Synchronizer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead.Playing
}
