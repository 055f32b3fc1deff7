package terrain

import (
	"errors"
	"fmt"

	"github.com/Faultbox/terrastream/pkg/math"
)

// ErrInvalidResolution is returned for grids with fewer than 2 vertices per side.
var ErrInvalidResolution = errors.New("mesh resolution must be at least 2")

// GridParams controls grid mesh construction.
type GridParams struct {
	Resolution  int     // Vertices per side
	Size        float32 // Chunk side length in world units
	HeightScale float32 // Normalized sample -> world units

	// Jitter, when set, offsets the height of interior vertices. Border
	// vertices are never jittered so neighbouring chunks keep sharing edges.
	Jitter func(x, z int) float32
}

// BuildGridMesh creates a chunk mesh from a heightmap.
// The heightmap is resampled when its size differs from the resolution.
// Normals and bounds are computed before returning.
func BuildGridMesh(h *Heightmap, p GridParams) (*Mesh, error) {
	if p.Resolution < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidResolution, p.Resolution)
	}
	if h == nil || h.Size < 2 {
		return nil, errors.New("heightmap is empty")
	}
	h = h.Resample(p.Resolution)

	res := p.Resolution
	spacing := p.Size / float32(res-1)
	m := &Mesh{
		Vertices:   make([]Vertex, res*res),
		Indices:    make([]uint32, 0, (res-1)*(res-1)*6),
		Resolution: res,
		Spacing:    spacing,
	}

	uvStep := 1 / float32(res-1)
	for z := range res {
		for x := range res {
			y := h.Samples[z*res+x] * p.HeightScale
			if p.Jitter != nil && x > 0 && z > 0 && x < res-1 && z < res-1 {
				y += p.Jitter(x, z)
			}
			m.Vertices[z*res+x] = Vertex{
				Position: [3]float32{float32(x) * spacing, y, float32(z) * spacing},
				TexCoord: [2]float32{float32(x) * uvStep, float32(z) * uvStep},
			}
		}
	}

	for z := range res - 1 {
		for x := range res - 1 {
			i0 := uint32(z*res + x)
			i1 := i0 + 1
			i2 := i0 + uint32(res)
			i3 := i2 + 1
			m.Indices = append(m.Indices,
				i0, i2, i1,
				i1, i2, i3,
			)
		}
	}

	ComputeNormals(m)
	RecomputeBounds(m)
	return m, nil
}

// ComputeNormals recomputes smooth vertex normals from face normals.
// Face normals are left unnormalized while summing so larger triangles
// weigh more.
func ComputeNormals(m *Mesh) {
	sums := make([]math.Vec3, len(m.Vertices))
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		pa := math.FromArray(m.Vertices[a].Position)
		pb := math.FromArray(m.Vertices[b].Position)
		pc := math.FromArray(m.Vertices[c].Position)
		face := pb.Sub(pa).Cross(pc.Sub(pa))
		sums[a] = sums[a].Add(face)
		sums[b] = sums[b].Add(face)
		sums[c] = sums[c].Add(face)
	}
	for i := range m.Vertices {
		m.Vertices[i].Normal = sums[i].Normalize().Array()
	}
}

// RecomputeBounds refreshes the mesh bounding box from vertex positions.
func RecomputeBounds(m *Mesh) {
	b := Bounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}
	for i := range m.Vertices {
		updateBounds(&b, m.Vertices[i].Position)
	}
	if len(m.Vertices) == 0 {
		b = Bounds{}
	}
	m.Bounds = b
}

// Index returns the vertex index for grid column x and row z, or -1.
func (m *Mesh) Index(x, z int) int {
	if x < 0 || z < 0 || x >= m.Resolution || z >= m.Resolution {
		return -1
	}
	return z*m.Resolution + x
}

// HeightAt returns the bilinearly interpolated surface height at a local
// position. Returns false outside the chunk footprint.
func (m *Mesh) HeightAt(localX, localZ float32) (float32, bool) {
	if m.Resolution < 2 || m.Spacing <= 0 {
		return 0, false
	}
	extent := m.Spacing * float32(m.Resolution-1)
	if localX < 0 || localZ < 0 || localX > extent || localZ > extent {
		return 0, false
	}

	fx := localX / m.Spacing
	fz := localZ / m.Spacing
	x0 := clampi(int(fx), 0, m.Resolution-2)
	z0 := clampi(int(fz), 0, m.Resolution-2)
	tx := clampf(fx-float32(x0), 0, 1)
	tz := clampf(fz-float32(z0), 0, 1)

	h := func(x, z int) float32 { return m.Vertices[z*m.Resolution+x].Position[1] }
	near := h(x0, z0)*(1-tx) + h(x0+1, z0)*tx
	far := h(x0, z0+1)*(1-tx) + h(x0+1, z0+1)*tx
	return near*(1-tz) + far*tz, true
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	c := *m
	c.Vertices = append([]Vertex(nil), m.Vertices...)
	c.Indices = append([]uint32(nil), m.Indices...)
	return &c
}

func updateBounds(b *Bounds, p [3]float32) {
	for i := range 3 {
		b.Min[i] = minf(b.Min[i], p[i])
		b.Max[i] = maxf(b.Max[i], p[i])
	}
}
