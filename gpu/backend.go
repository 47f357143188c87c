// Package gpu provides the optional compute-device backend for the FFT
// kernel and spectrogram builder (component H). By default it carries zero
// GPU dependency: Default is a no-op that always reports the device as
// unavailable, following openfluke/loom's stub-by-default posture
// (pods/gpu_stub.go). Build with the "gpu" tag to link the real
// github.com/openfluke/webgpu-backed implementation.
package gpu

import (
	"errors"
	"sync/atomic"
)

// FixedFFTSize is the only transform length the GPU backend supports.
const FixedFFTSize = 1024

// ErrNoGPU is returned by Default when no compute device is available.
var ErrNoGPU = errors.New("gpu: no compute device available")

// Backend transforms every frame of one spectrogram-builder request in a
// single Transform call. The wgpu backend uploads all frames once and then
// runs one compute dispatch per butterfly stage (log2(FixedFFTSize)
// dispatches), each covering every frame; the whole transform is not a
// single dispatch. re/im are one []float64 per frame, each of length
// FixedFFTSize; Transform overwrites them in place with their FFT, matching
// algorithms/fft.Kernel's contract so the builder can use either
// interchangeably.
type Backend interface {
	Transform(re, im [][]float64) error
}

var demoted atomic.Bool

// DemoteForProcess marks the GPU backend as unavailable for the remainder of
// the process. Call once a dispatch fails: demote and fall back to CPU,
// do not retry.
func DemoteForProcess() {
	demoted.Store(true)
}

// Demoted reports whether the GPU backend has been demoted for this process.
func Demoted() bool {
	return demoted.Load()
}

type noopBackend struct{}

func (noopBackend) Transform(re, im [][]float64) error {
	return ErrNoGPU
}

// Default is the zero-dependency backend used when the "gpu" build tag is
// not set, or when Init has not been called.
var Default Backend = noopBackend{}
