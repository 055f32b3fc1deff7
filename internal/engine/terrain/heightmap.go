package terrain

import (
	"github.com/Faultbox/terrastream/pkg/formats"
)

// HeightmapFromPatch wraps a decoded patch without copying.
func HeightmapFromPatch(p *formats.Patch) *Heightmap {
	return &Heightmap{Samples: p.Samples, Size: p.Size}
}

// NewFlatHeightmap returns a size×size heightmap filled with level.
func NewFlatHeightmap(size int, level float32) *Heightmap {
	samples := make([]float32, size*size)
	for i := range samples {
		samples[i] = level
	}
	return &Heightmap{Samples: samples, Size: size}
}

// At returns the sample at column x, row z, clamping indices to the grid.
func (h *Heightmap) At(x, z int) float32 {
	x = clampi(x, 0, h.Size-1)
	z = clampi(z, 0, h.Size-1)
	return h.Samples[z*h.Size+x]
}

// Sample returns the bilinearly interpolated height at normalized
// coordinates u (along X) and v (along Z), both in [0, 1].
func (h *Heightmap) Sample(u, v float32) float32 {
	if h.Size < 2 {
		if len(h.Samples) == 0 {
			return 0
		}
		return h.Samples[0]
	}
	fx := clampf(u, 0, 1) * float32(h.Size-1)
	fz := clampf(v, 0, 1) * float32(h.Size-1)

	x0 := int(fx)
	z0 := int(fz)
	if x0 >= h.Size-1 {
		x0 = h.Size - 2
	}
	if z0 >= h.Size-1 {
		z0 = h.Size - 2
	}
	tx := fx - float32(x0)
	tz := fz - float32(z0)

	// Near edge (lower Z) then far edge, then lerp across Z
	near := h.At(x0, z0)*(1-tx) + h.At(x0+1, z0)*tx
	far := h.At(x0, z0+1)*(1-tx) + h.At(x0+1, z0+1)*tx
	return near*(1-tz) + far*tz
}

// Resample returns a heightmap of the target size using bilinear
// interpolation. Corner samples are preserved exactly.
func (h *Heightmap) Resample(size int) *Heightmap {
	if size == h.Size {
		return h
	}
	out := &Heightmap{Samples: make([]float32, size*size), Size: size}
	den := float32(size - 1)
	for z := range size {
		for x := range size {
			out.Samples[z*size+x] = h.Sample(float32(x)/den, float32(z)/den)
		}
	}
	return out
}

// Range returns the minimum and maximum sample.
func (h *Heightmap) Range() (min, max float32) {
	if len(h.Samples) == 0 {
		return 0, 0
	}
	min, max = h.Samples[0], h.Samples[0]
	for _, s := range h.Samples[1:] {
		min = minf(min, s)
		max = maxf(max, s)
	}
	return min, max
}

func clampf(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampi(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
