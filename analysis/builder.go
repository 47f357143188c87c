// Package analysis orchestrates windowing, the FFT kernel, and log
// normalization into one cancellable spectrogram build (component C).
package analysis

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/kakira9618/spectro/algorithms/common"
	"github.com/kakira9618/spectro/algorithms/fft"
	"github.com/kakira9618/spectro/algorithms/window"
	"github.com/kakira9618/spectro/gpu"
	"github.com/kakira9618/spectro/logging"
	"github.com/kakira9618/spectro/pcm"
	"github.com/kakira9618/spectro/spectrogram"
)

// Sentinel errors returned by Build. The root spectro package wraps these
// with its own sentinels (via errors.Is) when surfacing them to a host.
var (
	ErrInsufficientLength = fmt.Errorf("analysis: segment too short for the requested fft/hop size")
	ErrCancelled          = fmt.Errorf("analysis: build cancelled")
	ErrInternal           = fmt.Errorf("analysis: internal error")
)

// Config holds the builder's tunables, a subset of spectro.Config threaded
// through at construction.
type Config struct {
	MinDb               float64
	FrameYieldEvery     int
	NormalizeYieldEvery int
}

// DefaultConfig returns the builder's default tunables.
func DefaultConfig() Config {
	return Config{
		MinDb:               -85,
		FrameYieldEvery:     500,
		NormalizeYieldEvery: 131072,
	}
}

// State describes where a Builder is in its one-shot pipeline.
type State int32

const (
	StateIdle State = iota
	StateWindowing
	StateTransforming
	StateNormalizing
	StateDone
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWindowing:
		return "windowing"
	case StateTransforming:
		return "transforming"
	case StateNormalizing:
		return "normalizing"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BuildRequest describes one spectrogram build: the PCM region to cover and
// the analysis parameters to use.
type BuildRequest struct {
	StartSeconds    float64
	DurationSeconds float64
	HopSize         int
	FFTSize         int
	Token           int64
}

// Builder runs the window -> FFT -> magnitude -> normalize pipeline. One
// Builder may be reused across calls to Build; each call is independent and
// safe to run from its own goroutine.
type Builder struct {
	cfg       Config
	logger    logging.Logger
	preferGPU atomic.Bool
	state     atomic.Int32
}

// NewBuilder creates a Builder with the given configuration.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, logger: logging.GetGlobalLogger()}
}

// SetPreferGPU hints that Build should try the GPU backend first when the
// request's FFTSize matches gpu.FixedFFTSize.
func (b *Builder) SetPreferGPU(prefer bool) {
	b.preferGPU.Store(prefer)
}

// State reports the builder's current pipeline stage.
func (b *Builder) State() State {
	return State(b.state.Load())
}

func (b *Builder) setState(s State) {
	b.state.Store(int32(s))
}

// Build computes one spectrogram over the requested region of buf. stillFresh,
// if non-nil, is polled every Config.FrameYieldEvery frames (and every
// Config.NormalizeYieldEvery cells during normalization); when it returns
// false the build is abandoned the same way a cancelled ctx is, implementing
// token-based cancellation for callers (like tile.Manager) that track
// staleness themselves rather than cancelling the context.
func (b *Builder) Build(ctx context.Context, buf *pcm.PcmBuffer, req BuildRequest, stillFresh func() bool) (*spectrogram.Spectrogram, error) {
	b.setState(StateIdle)

	if err := ctx.Err(); err != nil {
		b.setState(StateCancelled)
		return nil, ErrCancelled
	}

	totalDuration := buf.DurationSeconds()
	sampleRate := buf.SampleRate()

	start := common.Clamp(req.StartSeconds, 0, totalDuration)
	end := common.Clamp(req.StartSeconds+req.DurationSeconds, 0, totalDuration)
	if end < start {
		end = start
	}

	startSample := int(start * float64(sampleRate))
	endSample := int(end * float64(sampleRate))
	segmentLength := endSample - startSample

	fftSize := req.FFTSize
	hopSize := req.HopSize
	bins := fftSize / 2

	frames := spectrogram.FrameCount(segmentLength, hopSize, fftSize)
	if frames < 1 {
		b.setState(StateFailed)
		return nil, fmt.Errorf("analysis: segment of %d samples too short for fftSize=%d hopSize=%d: %w", segmentLength, fftSize, hopSize, ErrInsufficientLength)
	}

	hann := window.NewHann(fftSize)
	framer := window.NewFramer(hann)

	magnitude := make([]float32, frames*bins)

	useGPU := b.preferGPU.Load() && fftSize == gpu.FixedFFTSize && !gpu.Demoted()

	b.setState(StateWindowing)
	b.setState(StateTransforming)

	var peak float32
	var cancelled bool
	var err error

	if useGPU {
		peak, cancelled, err = b.buildGPU(ctx, buf.Channels(), framer, startSample, hopSize, fftSize, bins, frames, magnitude, stillFresh)
		if err != nil {
			b.logger.Warn("gpu transform failed, falling back to cpu", logging.Fields{"error": err.Error()})
			gpu.DemoteForProcess()
			useGPU = false
		}
	}

	if cancelled {
		b.setState(StateCancelled)
		return nil, ErrCancelled
	}

	if !useGPU {
		kernel, kerr := fft.New(fftSize)
		if kerr != nil {
			b.setState(StateFailed)
			return nil, fmt.Errorf("analysis: %w", kerr)
		}

		peak, cancelled, err = b.buildCPU(ctx, buf.Channels(), framer, kernel, startSample, hopSize, fftSize, bins, frames, magnitude, stillFresh)
		if err != nil {
			b.setState(StateFailed)
			return nil, fmt.Errorf("analysis: %w", ErrInternal)
		}
		if cancelled {
			b.setState(StateCancelled)
			return nil, ErrCancelled
		}
	}

	b.setState(StateNormalizing)

	if err := b.normalize(ctx, magnitude, peak, stillFresh); err != nil {
		b.setState(StateCancelled)
		return nil, err
	}

	spec, err := spectrogram.New(magnitude, frames, bins, hopSize, fftSize, sampleRate, start, end-start, totalDuration, req.Token)
	if err != nil {
		b.setState(StateFailed)
		return nil, fmt.Errorf("analysis: %w", ErrInternal)
	}

	b.setState(StateDone)
	return spec, nil
}

type frameJob struct {
	frameIdx    int
	startSample int
}

// buildCPU partitions frames across a worker pool sized by optimalWorkerCount,
// each worker owning its own scratch buffers so no frame's output cells are
// ever written by more than one goroutine.
func (b *Builder) buildCPU(ctx context.Context, channels [][]float32, framer *window.Framer, kernel *fft.Kernel, startSample, hopSize, fftSize, bins, frames int, magnitude []float32, stillFresh func() bool) (peak float32, cancelled bool, err error) {
	numWorkers := optimalWorkerCount(frames)

	jobs := make(chan frameJob, frames)
	var wg sync.WaitGroup
	var stale atomic.Bool
	var mu sync.Mutex
	var localPeak float32

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			re := make([]float64, fftSize)
			im := make([]float64, fftSize)

			for job := range jobs {
				if stale.Load() {
					continue
				}

				if job.frameIdx%b.cfg.FrameYieldEvery == 0 {
					if ctx.Err() != nil || (stillFresh != nil && !stillFresh()) {
						stale.Store(true)
						continue
					}
				}

				framer.Frame(channels, job.startSample, fftSize, re)
				clear(im)

				if terr := kernel.Transform(re, im); terr != nil {
					stale.Store(true)
					continue
				}

				rowOff := job.frameIdx * bins
				var framePeak float32
				for k := range bins {
					mag := float32(math.Sqrt(re[k]*re[k] + im[k]*im[k]))
					magnitude[rowOff+k] = mag
					if mag > framePeak {
						framePeak = mag
					}
				}

				mu.Lock()
				if framePeak > localPeak {
					localPeak = framePeak
				}
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(jobs)
		for f := range frames {
			jobs <- frameJob{frameIdx: f, startSample: startSample + f*hopSize}
		}
	}()

	wg.Wait()

	if stale.Load() {
		return 0, true, nil
	}
	return localPeak, false, nil
}

// buildGPU windows every frame, then hands the whole request to a single
// gpu.Backend.Transform call, which receives every frame at once.
func (b *Builder) buildGPU(ctx context.Context, channels [][]float32, framer *window.Framer, startSample, hopSize, fftSize, bins, frames int, magnitude []float32, stillFresh func() bool) (peak float32, cancelled bool, err error) {
	re := make([][]float64, frames)
	im := make([][]float64, frames)

	for f := range frames {
		re[f] = make([]float64, fftSize)
		im[f] = make([]float64, fftSize)
		framer.Frame(channels, startSample+f*hopSize, fftSize, re[f])

		if f%b.cfg.FrameYieldEvery == 0 {
			if ctx.Err() != nil || (stillFresh != nil && !stillFresh()) {
				return 0, true, nil
			}
		}
	}

	if terr := gpu.Default.Transform(re, im); terr != nil {
		return 0, false, terr
	}

	var framePeak float32
	for f := range frames {
		rowOff := f * bins
		for k := range bins {
			mag := float32(math.Sqrt(re[f][k]*re[f][k] + im[f][k]*im[f][k]))
			magnitude[rowOff+k] = mag
			if mag > framePeak {
				framePeak = mag
			}
		}

		if f%b.cfg.FrameYieldEvery == 0 {
			if ctx.Err() != nil || (stillFresh != nil && !stillFresh()) {
				return 0, true, nil
			}
		}
	}

	return framePeak, false, nil
}

// normalize converts magnitudes to dB relative to the request's peak, then
// maps to [0,1] against Config.MinDb. An all-zero magnitude buffer (silence)
// is left as all-zero rather than dividing by a zero peak.
func (b *Builder) normalize(ctx context.Context, magnitude []float32, peak float32, stillFresh func() bool) error {
	if peak == 0 {
		return nil
	}

	minDb := b.cfg.MinDb

	for i := range magnitude {
		if i%b.cfg.NormalizeYieldEvery == 0 {
			if ctx.Err() != nil || (stillFresh != nil && !stillFresh()) {
				return ErrCancelled
			}
		}

		ratio := float64(magnitude[i]) / float64(peak)
		db := 20 * math.Log10(ratio+1e-12)
		norm := (db - minDb) / -minDb
		magnitude[i] = float32(common.Clamp(norm, 0, 1))
	}

	return nil
}

// optimalWorkerCount scales the frame worker pool to the workload: small
// workloads use half the CPUs, medium workloads cap at 8, large workloads
// use every CPU.
func optimalWorkerCount(frames int) int {
	numCPU := runtime.NumCPU()

	var w int
	switch {
	case frames < 100:
		w = min(numCPU/2, frames)
	case frames < 1000:
		w = min(numCPU, 8)
	default:
		w = numCPU
	}

	if w < 1 {
		w = 1
	}
	return w
}
