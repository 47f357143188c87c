package spectro

import "errors"

// Sentinel errors surfaced across the core's packages: plain errors.New
// values wrapped with fmt.Errorf at call sites, rather than a custom
// error-code type.
var (
	// ErrInvalidSize is returned by Engine.Load when the FFT kernel rejects
	// the configured transform length as not a supported power of two.
	ErrInvalidSize = errors.New("spectro: invalid fft size")

	// ErrInsufficientLength is returned when a PCM segment is shorter than
	// one FFT frame, or yields fewer than one STFT frame.
	ErrInsufficientLength = errors.New("spectro: insufficient pcm length")

	// ErrDeviceUnavailable is returned by Engine.SetPreferGPU when no compute
	// device is available or initialization failed.
	ErrDeviceUnavailable = errors.New("spectro: gpu device unavailable")

	// ErrCancelled is returned by Engine.Load when its full-track build is
	// superseded (by a newer Load or by Teardown) before it finishes.
	ErrCancelled = errors.New("spectro: analysis cancelled")

	// ErrInternal marks an unexpected numeric state (e.g. non-finite
	// samples) that is fatal to one session but never to the process.
	ErrInternal = errors.New("spectro: internal error")
)
