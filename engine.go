// Package spectro is the facade that wires the windowing, FFT, builder,
// tile, view, render, and playhead components into the six entry points a
// host application drives: Load, SetView, Render, SetPlayhead, SetPreferGPU,
// and Teardown.
package spectro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kakira9618/spectro/algorithms/fft"
	"github.com/kakira9618/spectro/analysis"
	"github.com/kakira9618/spectro/gpu"
	"github.com/kakira9618/spectro/logging"
	"github.com/kakira9618/spectro/pcm"
	"github.com/kakira9618/spectro/playhead"
	"github.com/kakira9618/spectro/render"
	"github.com/kakira9618/spectro/spectrogram"
	"github.com/kakira9618/spectro/tile"
	"github.com/kakira9618/spectro/view"
)

// minHopSamples is the floor on the full-track hop size:
// hopSize = max(256, floor(sampleRate*0.02)).
const minHopSamples = 256

// Engine is the keyframe editor's audio-analysis core. One Engine is built
// per loaded track; a new Load replaces all prior state.
type Engine struct {
	cfg Config

	logger logging.Logger

	builder      *analysis.Builder
	tiles        *tile.Manager
	renderer     *render.Renderer
	playheadSync *playhead.Synchronizer

	mu        sync.Mutex
	view      *view.Model
	fullTrack atomic.Pointer[spectrogram.Spectrogram]
	loadToken atomic.Int64
	onRepaint func()
}

// NewEngine constructs an Engine wiring every component with cfg.
func NewEngine(cfg Config) *Engine {
	builder := analysis.NewBuilder(analysis.Config{
		MinDb:               cfg.MinDb,
		FrameYieldEvery:     cfg.FrameYieldEvery,
		NormalizeYieldEvery: cfg.NormalizeYieldEvery,
	})
	builder.SetPreferGPU(cfg.PreferGPU)

	e := &Engine{
		cfg:          cfg,
		logger:       logging.GetGlobalLogger(),
		builder:      builder,
		tiles:        tile.NewManager(builder),
		renderer:     render.New(cfg.LUTStops),
		playheadSync: playhead.NewSynchronizer(),
	}

	e.tiles.SetRepaintCallback(e.fireRepaint)
	e.playheadSync.SetRepaintCallback(e.fireRepaint)

	return e
}

// SetRepaintCallback registers the function invoked whenever a new tile
// installs or the playhead synchronizer decides a repaint is due. The host
// typically calls Engine.Render from inside this callback.
func (e *Engine) SetRepaintCallback(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRepaint = fn
}

func (e *Engine) fireRepaint() {
	e.mu.Lock()
	cb := e.onRepaint
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Load invalidates all prior state and runs a fresh full-track analysis.
// Returns ErrInsufficientLength if buf is shorter than one FFT frame; the
// renderer then paints an empty view rather than panicking.
func (e *Engine) Load(buf *pcm.PcmBuffer) error {
	token := e.loadToken.Add(1)

	hopSize := int(float64(buf.SampleRate()) * 0.02)
	if hopSize < minHopSamples {
		hopSize = minHopSamples
	}

	req := analysis.BuildRequest{
		StartSeconds:    0,
		DurationSeconds: buf.DurationSeconds(),
		HopSize:         hopSize,
		FFTSize:         e.cfg.FFTSize,
		Token:           token,
	}

	stillFresh := func() bool { return e.loadToken.Load() == token }

	spec, err := e.builder.Build(context.Background(), buf, req, stillFresh)
	if err != nil {
		if errors.Is(err, analysis.ErrCancelled) {
			e.logger.Debug("full-track analysis cancelled", logging.Fields{"token": token})
			return fmt.Errorf("spectro: load cancelled: %w", ErrCancelled)
		}
		if errors.Is(err, analysis.ErrInsufficientLength) {
			return fmt.Errorf("spectro: load failed: %w", ErrInsufficientLength)
		}
		if errors.Is(err, fft.ErrInvalidSize) {
			return fmt.Errorf("spectro: load failed: %w", ErrInvalidSize)
		}
		e.logger.Error(err, "full-track analysis failed")
		return fmt.Errorf("spectro: load failed: %w", ErrInternal)
	}

	e.mu.Lock()
	e.view = view.New(buf.SampleRate(), buf.DurationSeconds(), e.cfg.ViewBounds)
	e.mu.Unlock()

	e.fullTrack.Store(spec)
	e.tiles.Load(buf, spec)
	e.playheadSync.SetLoaded(true)

	return nil
}

// SetView clamps and snaps the requested view window, then schedules a
// hi-res tile request if one is warranted. Never blocks.
func (e *Engine) SetView(viewStart, viewDuration float64, samplesPerPixel int) {
	e.mu.Lock()
	v := e.view
	e.mu.Unlock()

	if v == nil {
		return
	}

	v.SetView(viewStart, viewDuration, samplesPerPixel)
	e.tiles.OnViewChange(v.Snapshot())
}

// Render synchronously paints the active spectrogram into buf using the
// current view window.
func (e *Engine) Render(buf []byte, wDev, hDev int, dpr float64) {
	e.mu.Lock()
	v := e.view
	e.mu.Unlock()

	var snap view.Snapshot
	if v != nil {
		snap = v.Snapshot()
	}

	spec := e.tiles.Active()
	if spec == nil {
		spec = e.fullTrack.Load()
	}

	e.renderer.Render(buf, spec, snap, wDev, hDev, dpr)
}

// SetPlayhead updates the playback position and state read by Tick.
func (e *Engine) SetPlayhead(currentTime float64, playing bool) {
	e.playheadSync.SetPlayhead(currentTime, playing)
}

// Tick drives the playhead synchronizer; call once per display frame (or
// from a ~16ms ticker) during playback. It fires the repaint callback when
// the view window moved; it does not move the view to follow playback.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	v := e.view
	e.mu.Unlock()

	if v == nil {
		return
	}

	snap := v.Snapshot()
	e.playheadSync.Tick(now, snap.ViewStart, snap.ViewDuration)
}

// PlayheadX returns the current playhead's x position in CSS pixels for the
// given container width and pixel density.
func (e *Engine) PlayheadX(cssWidth, ppsCss float64) (x float64, visible bool) {
	e.mu.Lock()
	v := e.view
	e.mu.Unlock()

	if v == nil {
		return 0, false
	}

	snap := v.Snapshot()
	return e.playheadSync.PlayheadX(snap.ViewStart, snap.ViewDuration, cssWidth, ppsCss)
}

// SetPreferGPU hints that the GPU backend should be tried first for
// requests whose FFTSize matches gpu.FixedFFTSize. Turning the hint on lazily
// initializes the process-wide GPU device; on failure it returns
// ErrDeviceUnavailable and leaves the no-op backend in place, so Build still
// falls back to CPU transparently.
func (e *Engine) SetPreferGPU(prefer bool) error {
	e.builder.SetPreferGPU(prefer)

	if !prefer {
		return nil
	}

	if err := gpu.Init(); err != nil {
		e.logger.Warn("gpu init failed, staying on cpu", logging.Fields{"error": err.Error()})
		return fmt.Errorf("spectro: gpu init failed: %w", ErrDeviceUnavailable)
	}
	return nil
}

// Teardown cancels pending work and frees the process-wide GPU handle.
// Spectrograms held by the Engine and its tile manager are released for
// garbage collection; Render after Teardown clears the target buffer.
func (e *Engine) Teardown() {
	e.loadToken.Add(1)
	e.fullTrack.Store(nil)
	e.tiles.Load(nil, nil)
	e.playheadSync.SetLoaded(false)
	gpu.Release()
}
