// Package tile decides when the current view window warrants a
// higher-resolution spectrogram tile, debounces and deduplicates those
// requests, and discards stale results (component D).
package tile

import (
	"context"
	"sync"
	"time"

	"github.com/kakira9618/spectro/algorithms/common"
	"github.com/kakira9618/spectro/analysis"
	"github.com/kakira9618/spectro/logging"
	"github.com/kakira9618/spectro/pcm"
	"github.com/kakira9618/spectro/spectrogram"
	"github.com/kakira9618/spectro/view"
)

const (
	debounce          = 120 * time.Millisecond
	freshnessWindow   = time.Second / 60
	expandFraction    = 0.25
	minHopSize        = 32
	maxHopSize        = 4096
	warrantedHopRatio = 0.8
)

// Manager watches view changes and owns the hi-res tile lifecycle. It holds
// no back-pointer to the view.Model: it is told about changes via
// OnViewChange and reads only the Snapshot it is given.
type Manager struct {
	mu sync.Mutex

	builder *analysis.Builder
	buf     *pcm.PcmBuffer
	logger  logging.Logger

	fullTrack *spectrogram.Spectrogram
	hiRes     *spectrogram.Spectrogram

	hiResPending  bool
	lastRequestAt time.Time
	latestToken   atomicInt64

	// pending holds the most recent view change that arrived while a build
	// was already in flight or the debounce window hadn't elapsed. It is
	// re-evaluated once the in-flight build finishes or the debounce timer
	// fires, so a rapid setView(A) then setView(B) never lets A's stale
	// result win just because B's call was dropped silently.
	pending      *view.Snapshot
	pendingTimer *time.Timer

	onRepaint func()
}

// atomicInt64 is a thin wrapper so Manager can expose a stillFresh closure to
// analysis.Builder without leaking its internal locking.
type atomicInt64 struct {
	mu sync.Mutex
	v  int64
}

func (a *atomicInt64) add() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v++
	return a.v
}

func (a *atomicInt64) load() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

// NewManager creates a Manager bound to the given builder. SetRepaintCallback
// and Load must be called before OnViewChange does anything useful.
func NewManager(builder *analysis.Builder) *Manager {
	return &Manager{builder: builder, logger: logging.GetGlobalLogger()}
}

// SetRepaintCallback registers the function called after a new hi-res tile
// is installed. Load does not call it.
func (m *Manager) SetRepaintCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRepaint = fn
}

// Load replaces the full-track spectrogram and invalidates any pending or
// cached hi-res tile: a build already in flight is superseded by bumping the
// token, and its result is discarded.
func (m *Manager) Load(buf *pcm.PcmBuffer, fullTrack *spectrogram.Spectrogram) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf = buf
	m.fullTrack = fullTrack
	m.hiRes = nil
	m.hiResPending = false
	m.lastRequestAt = time.Time{}
	m.pending = nil
	if m.pendingTimer != nil {
		m.pendingTimer.Stop()
		m.pendingTimer = nil
	}
	m.latestToken.add()
}

// Active returns the spectrogram the renderer should currently paint: the
// hi-res tile if one is installed, otherwise the full-track spectrogram.
func (m *Manager) Active() *spectrogram.Spectrogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hiRes != nil {
		return m.hiRes
	}
	return m.fullTrack
}

// OnViewChange evaluates whether the new view warrants a hi-res tile. If one
// is warranted but a build is already in flight or the debounce window hasn't
// elapsed, v is recorded as the pending request rather than dropped: it is
// re-evaluated as soon as the in-flight build finishes or the debounce timer
// fires, so the most recent view change always wins even under a rapid
// sequence of calls.
func (m *Manager) OnViewChange(v view.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluateLocked(v)
}

// evaluateLocked must be called with m.mu held. It decides whether v warrants
// a hi-res tile, and if so, whether to dispatch it now, queue it as pending,
// or drop it as already covered by the cached tile.
func (m *Manager) evaluateLocked(v view.Snapshot) {
	if m.fullTrack == nil || m.buf == nil {
		return
	}

	pps := v.PixelsPerSecond()
	if pps <= 0 {
		return
	}

	hopFull := m.fullTrack.HopSize
	sampleRate := m.fullTrack.SampleRate

	warranted := float64(hopFull)/float64(sampleRate) > warrantedHopRatio/pps
	if !warranted {
		return
	}

	hopTarget := common.ClampInt(common.FloorPowerOfTwo(int(float64(sampleRate)/pps)), minHopSize, maxHopSize)

	if m.hiRes != nil && tileCovers(m.hiRes, v, hopTarget) {
		return
	}

	if m.hiResPending {
		// A build is already in flight for an older view. Record v as the
		// request to re-evaluate once it finishes, and bump the token so the
		// in-flight build's result (once it completes) is recognized as
		// stale and discarded rather than installed.
		snap := v
		m.pending = &snap
		m.latestToken.add()
		return
	}

	now := time.Now()
	if since := now.Sub(m.lastRequestAt); since < debounce {
		snap := v
		m.pending = &snap
		if m.pendingTimer == nil {
			remaining := debounce - since
			m.pendingTimer = time.AfterFunc(remaining, m.firePendingTimer)
		}
		return
	}

	m.dispatchLocked(v, hopTarget, now)
}

// dispatchLocked must be called with m.mu held. It bumps the token, marks a
// build in flight, and starts the build asynchronously.
func (m *Manager) dispatchLocked(v view.Snapshot, hopTarget int, now time.Time) {
	viewStart, viewDuration := expandWindow(v.ViewStart, v.ViewDuration, v.TotalDuration, expandFraction)

	token := m.latestToken.add()
	m.hiResPending = true
	m.lastRequestAt = now
	m.pending = nil

	buf := m.buf
	fftSize := m.fullTrack.FFTSize

	go m.dispatch(buf, viewStart, viewDuration, hopTarget, fftSize, token)
}

// firePendingTimer runs when the debounce window following a deferred
// request elapses; it re-evaluates whatever is the latest pending view.
func (m *Manager) firePendingTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pendingTimer = nil
	if m.pending == nil {
		return
	}
	snap := *m.pending
	m.pending = nil
	m.evaluateLocked(snap)
}

func (m *Manager) dispatch(buf *pcm.PcmBuffer, viewStart, viewDuration float64, hopSize, fftSize int, token int64) {
	req := analysis.BuildRequest{
		StartSeconds:    viewStart,
		DurationSeconds: viewDuration,
		HopSize:         hopSize,
		FFTSize:         fftSize,
		Token:           token,
	}

	stillFresh := func() bool { return m.latestToken.load() == token }

	spec, err := m.builder.Build(context.Background(), buf, req, stillFresh)

	m.mu.Lock()
	m.hiResPending = false

	if err != nil {
		if err != analysis.ErrCancelled {
			m.logger.Warn("hi-res tile build failed", logging.Fields{"error": err.Error()})
		} else {
			m.logger.Debug("hi-res tile build cancelled", logging.Fields{"token": token})
		}
		m.replayPendingLocked()
		m.mu.Unlock()
		return
	}

	if m.latestToken.load() != token {
		m.logger.Debug("discarding stale hi-res tile", logging.Fields{"token": token, "latest": m.latestToken.load()})
		m.replayPendingLocked()
		m.mu.Unlock()
		return
	}

	m.hiRes = spec
	cb := m.onRepaint
	m.replayPendingLocked()
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// replayPendingLocked must be called with m.mu held; it does not unlock
// itself, callers do. If a view change arrived while this build was in
// flight, it is evaluated now so it is never silently dropped.
func (m *Manager) replayPendingLocked() {
	if m.pending == nil {
		return
	}
	snap := *m.pending
	m.pending = nil
	m.evaluateLocked(snap)
}

func tileCovers(tile *spectrogram.Spectrogram, v view.Snapshot, hopTarget int) bool {
	if tile.HopSize != hopTarget {
		return false
	}

	tol := freshnessWindow.Seconds()
	startOK := tile.SliceStart <= v.ViewStart+tol
	endOK := tile.SliceStart+tile.SliceDuration >= v.ViewStart+v.ViewDuration-tol
	return startOK && endOK
}

func expandWindow(viewStart, viewDuration, totalDuration, fraction float64) (start, duration float64) {
	expand := viewDuration * fraction
	start = viewStart - expand
	end := viewStart + viewDuration + expand

	start = common.Clamp(start, 0, totalDuration)
	end = common.Clamp(end, 0, totalDuration)
	if end < start {
		end = start
	}

	return start, end - start
}
