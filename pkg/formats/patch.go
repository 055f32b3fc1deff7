// Package formats provides parsers for terrain patch file formats.
package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// Patch format errors.
var (
	ErrEmptyPatch       = errors.New("empty patch data")
	ErrOddPatchLength   = errors.New("patch length is not a whole number of uint16 samples")
	ErrNonSquarePatch   = errors.New("patch sample count is not a perfect square")
	ErrPatchTooSmall    = errors.New("patch must be at least 2x2 samples")
	ErrPatchSizeInvalid = errors.New("patch resolution mismatch")
)

// MaxPatchResolution bounds decoded patches; a 4097² patch is already 32 MiB
// of float32 samples.
const MaxPatchResolution = 4097

// Patch is a decoded heightmap patch: Size×Size normalized samples.
//
// Samples are row-major. Row r is local Z (the chunk's Y index axis) and
// column c is local X, so Samples[r*Size+c] is the height at
// (x = c·spacing, z = r·spacing). Mesh vertices are indexed the same way;
// swapping the two silently mirrors the terrain across the diagonal.
type Patch struct {
	Size    int
	Samples []float32 // Normalized to [0, 1]
}

// At returns the normalized sample at column x, row z.
// Returns 0 when out of range.
func (p *Patch) At(x, z int) float32 {
	if x < 0 || z < 0 || x >= p.Size || z >= p.Size {
		return 0
	}
	return p.Samples[z*p.Size+x]
}

// Range returns the minimum and maximum normalized sample.
func (p *Patch) Range() (min, max float32) {
	if len(p.Samples) == 0 {
		return 0, 0
	}
	min, max = p.Samples[0], p.Samples[0]
	for _, s := range p.Samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

// PatchResolution returns N for a payload of N×N uint16 samples.
func PatchResolution(byteLength int) (int, error) {
	if byteLength == 0 {
		return 0, ErrEmptyPatch
	}
	if byteLength%2 != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrOddPatchLength, byteLength)
	}
	count := byteLength / 2
	n := int(math.Sqrt(float64(count)))
	// Guard against float rounding on large counts.
	for n*n > count {
		n--
	}
	for (n+1)*(n+1) <= count {
		n++
	}
	if n*n != count {
		return 0, fmt.Errorf("%w: %d samples", ErrNonSquarePatch, count)
	}
	if n < 2 {
		return 0, ErrPatchTooSmall
	}
	if n > MaxPatchResolution {
		return 0, fmt.Errorf("%w: %d exceeds %d", ErrPatchSizeInvalid, n, MaxPatchResolution)
	}
	return n, nil
}

// ParsePatch decodes a raw patch body of little-endian uint16 samples.
func ParsePatch(data []byte) (*Patch, error) {
	n, err := PatchResolution(len(data))
	if err != nil {
		return nil, err
	}

	p := &Patch{
		Size:    n,
		Samples: make([]float32, n*n),
	}
	for i := range p.Samples {
		raw := binary.LittleEndian.Uint16(data[i*2:])
		p.Samples[i] = float32(raw) / 65535.0
	}
	return p, nil
}

// PatchFileName returns the file name of chunk (cx, cy)'s patch. Files are
// named by row then column, so cy comes first.
func PatchFileName(cx, cy int) string {
	return fmt.Sprintf("patch_%d_%d.raw", cy, cx)
}

// ParsePatchFile parses a raw patch from disk.
func ParsePatchFile(path string) (*Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patch file: %w", err)
	}
	return ParsePatch(data)
}

// EncodePatch serializes normalized samples back to the raw wire layout.
// Values are clamped to [0, 1] before quantization.
func EncodePatch(size int, samples []float32) ([]byte, error) {
	if size < 2 || len(samples) != size*size {
		return nil, fmt.Errorf("%w: size %d with %d samples", ErrPatchSizeInvalid, size, len(samples))
	}
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < 0 {
			s = 0
		}
		if s > 1 {
			s = 1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(math.Round(float64(s)*65535)))
	}
	return out, nil
}
