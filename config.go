package spectro

import (
	"github.com/kakira9618/spectro/render"
	"github.com/kakira9618/spectro/view"
)

// Config holds every tunable for an Engine: a plain struct plus a
// DefaultConfig constructor, no builder, no functional options.
type Config struct {
	// FFTSize is the transform length used for the full-track analysis and
	// the default hi-res tile request; must be a power of two.
	FFTSize int

	// MinDb is the normalization floor: magnitudes at or below MinDb relative
	// to the per-request peak map to 0.
	MinDb float64

	// LUTStops configures the renderer's 256-entry color lookup table.
	LUTStops []render.ColorStop

	// ViewBounds configures the view model's bi-log zoom curve and base
	// samples-per-pixel.
	ViewBounds view.Bounds

	// FrameYieldEvery is how often, in frames, the spectrogram builder checks
	// for cancellation during windowing/transform.
	FrameYieldEvery int

	// NormalizeYieldEvery is how often, in cells, the builder checks for
	// cancellation during normalization.
	NormalizeYieldEvery int

	// PreferGPU hints that the GPU backend should be tried first when the
	// request's FFTSize matches gpu.FixedFFTSize.
	PreferGPU bool
}

// DefaultConfig returns the engine's default configuration.
func DefaultConfig() Config {
	return Config{
		FFTSize:             1024,
		MinDb:               -85,
		LUTStops:            render.DefaultStops,
		ViewBounds:          view.DefaultBounds,
		FrameYieldEvery:     500,
		NormalizeYieldEvery: 131072,
		PreferGPU:           false,
	}
}
