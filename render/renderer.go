// Package render paints the active spectrogram into a pixel buffer honoring
// the current view window and device pixel ratio (component F).
package render

import (
	"github.com/kakira9618/spectro/algorithms/common"
	"github.com/kakira9618/spectro/spectrogram"
	"github.com/kakira9618/spectro/view"
)

// Renderer paints spectrograms into RGBA pixel buffers using a precomputed
// color LUT. It is pure given its inputs and performs no allocation beyond
// the caller-supplied buffer.
type Renderer struct {
	lut *LUT
}

// New creates a Renderer using the given color stops to build its LUT.
func New(stops []ColorStop) *Renderer {
	return &Renderer{lut: BuildLUT(stops)}
}

// Render paints spec into buf, which must be at least wDev*hDev*4 bytes
// (RGBA). wCss is implied by wDev/dpr. A nil spec clears the buffer and
// returns; Render never fails.
func (r *Renderer) Render(buf []byte, spec *spectrogram.Spectrogram, v view.Snapshot, wDev, hDev int, dpr float64) {
	needed := wDev * hDev * 4
	if len(buf) < needed {
		return
	}

	for i := range needed {
		buf[i] = 0
	}

	if spec == nil || hDev <= 0 || wDev <= 0 {
		return
	}

	ppsDev := v.PixelsPerSecond() * dpr
	if ppsDev <= 0 {
		return
	}

	timePerFrame := float64(spec.HopSize) / float64(spec.SampleRate)
	if timePerFrame <= 0 {
		return
	}

	drawWidth := int(roundHalfAwayFromZero(v.ViewDuration * ppsDev))
	if drawWidth > wDev {
		drawWidth = wDev
	}
	if drawWidth < 0 {
		drawWidth = 0
	}

	for x := range drawWidth {
		t := v.ViewStart + float64(x)/ppsDev
		frameF := common.Clamp(roundHalfAwayFromZero((t-spec.SliceStart)/timePerFrame), 0, float64(spec.Frames-1))
		frame := int(frameF)

		for y := range hDev {
			var binF float64
			if hDev > 1 {
				binF = common.Clamp(roundHalfAwayFromZero(float64(y)*float64(spec.Bins-1)/float64(hDev-1)), 0, float64(spec.Bins-1))
			}
			bin := spec.Bins - 1 - int(binF)

			val := spec.At(frame, bin)
			rr, gg, bb := r.lut.Sample(val)

			idx := (y*wDev + x) * 4
			buf[idx] = rr
			buf[idx+1] = gg
			buf[idx+2] = bb
			buf[idx+3] = 255
		}
	}
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
