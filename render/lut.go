package render

// ColorStop is one control point of the perceptual color map, interpolated
// linearly between neighboring stops to build the 256-entry LUT.
type ColorStop struct {
	Position float64 // in [0,1]
	R, G, B  uint8
}

// DefaultStops are the six default color stops for the perceptual LUT.
var DefaultStops = []ColorStop{
	{Position: 0.00, R: 5, G: 8, B: 17},
	{Position: 0.25, R: 32, G: 54, B: 120},
	{Position: 0.50, R: 69, G: 137, B: 205},
	{Position: 0.70, R: 255, G: 209, B: 102},
	{Position: 0.85, R: 255, G: 128, B: 96},
	{Position: 1.00, R: 255, G: 255, B: 255},
}

const lutSize = 256

// LUT is a precomputed 256-entry RGB color lookup table.
type LUT struct {
	entries [lutSize][3]uint8
}

// BuildLUT builds a 256-entry LUT from the given stops by linear
// interpolation between adjacent stops. stops must be sorted by Position and
// include 0.0 and 1.0.
func BuildLUT(stops []ColorStop) *LUT {
	lut := &LUT{}

	for i := range lutSize {
		t := float64(i) / float64(lutSize-1)
		lut.entries[i] = sampleStops(stops, t)
	}

	return lut
}

func sampleStops(stops []ColorStop, t float64) [3]uint8 {
	if len(stops) == 0 {
		return [3]uint8{0, 0, 0}
	}
	if t <= stops[0].Position {
		return [3]uint8{stops[0].R, stops[0].G, stops[0].B}
	}
	last := stops[len(stops)-1]
	if t >= last.Position {
		return [3]uint8{last.R, last.G, last.B}
	}

	for i := 0; i < len(stops)-1; i++ {
		a, b := stops[i], stops[i+1]
		if t >= a.Position && t <= b.Position {
			span := b.Position - a.Position
			frac := 0.0
			if span > 0 {
				frac = (t - a.Position) / span
			}
			return [3]uint8{
				lerp8(a.R, b.R, frac),
				lerp8(a.G, b.G, frac),
				lerp8(a.B, b.B, frac),
			}
		}
	}

	return [3]uint8{last.R, last.G, last.B}
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + t*(float64(b)-float64(a)))
}

// Sample indexes the LUT by a normalized value in [0,1]. Out-of-range values
// are clamped.
func (l *LUT) Sample(v float32) (r, g, b uint8) {
	idx := int(v * float32(lutSize-1))
	if idx < 0 {
		idx = 0
	}
	if idx > lutSize-1 {
		idx = lutSize - 1
	}
	e := l.entries[idx]
	return e[0], e[1], e[2]
}
