// Package procgen produces deterministic procedural terrain: layered
// OpenSimplex height fields and per-chunk seeds.
package procgen

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/Faultbox/terrastream/internal/engine/terrain"
	"github.com/Faultbox/terrastream/internal/world/chunk"
)

// NoiseParams controls fractal noise generation.
type NoiseParams struct {
	Octaves     int
	Frequency   float64 // Base frequency in cycles per world unit
	Amplitude   float64
	Persistence float64 // Amplitude multiplier per octave
	Lacunarity  float64 // Frequency multiplier per octave
}

// DefaultNoiseParams returns the terrain height noise settings.
func DefaultNoiseParams() NoiseParams {
	return NoiseParams{
		Octaves:     5,
		Frequency:   1.0 / 900,
		Amplitude:   1.0,
		Persistence: 0.5,
		Lacunarity:  2.0,
	}
}

// JitterAmplitude is the maximum micro-jitter, in world units, added to
// interior vertices of procedural chunks.
const JitterAmplitude = 0.35

// Generator samples the world's procedural height field. The field is a
// function of global position and the world seed only, so any two chunks
// agree on their shared edge.
type Generator struct {
	seed   int64
	noise  opensimplex.Noise
	detail opensimplex.Noise
	params NoiseParams
}

// New creates a generator for a world seed.
func New(seed int64) *Generator {
	return &Generator{
		seed:   seed,
		noise:  opensimplex.New(seed),
		detail: opensimplex.New(seed ^ 0x5deece66d),
		params: DefaultNoiseParams(),
	}
}

// WithParams returns a copy of the generator using different noise settings.
func (g *Generator) WithParams(p NoiseParams) *Generator {
	c := *g
	c.params = p
	return &c
}

// Seed returns the world seed.
func (g *Generator) Seed() int64 { return g.seed }

// Noise2D returns raw OpenSimplex noise in [-1, 1].
func (g *Generator) Noise2D(x, z float64) float64 {
	return g.noise.Eval2(x, z)
}

// Noise3D returns raw OpenSimplex noise in [-1, 1].
func (g *Generator) Noise3D(x, y, z float64) float64 {
	return g.detail.Eval3(x, y, z)
}

// FractalNoise sums octaves of noise and normalizes the result to [-1, 1].
func (g *Generator) FractalNoise(x, z float64) float64 {
	p := g.params
	var total, norm float64
	freq := p.Frequency
	amp := p.Amplitude
	for range p.Octaves {
		total += g.noise.Eval2(x*freq, z*freq) * amp
		norm += amp
		freq *= p.Lacunarity
		amp *= p.Persistence
	}
	if norm == 0 {
		return 0
	}
	return total / norm
}

// Height returns the normalized terrain height in [0, 1] at a global
// horizontal position.
func (g *Generator) Height(x, z float64) float32 {
	h := (g.FractalNoise(x, z) + 1) / 2
	return float32(math.Min(1, math.Max(0, h)))
}

// Heightmap samples a size×size heightmap covering chunk c. Samples sit on
// the same global positions the chunk's mesh vertices will occupy.
func (g *Generator) Heightmap(grid chunk.Grid, c chunk.Coord, size int) *terrain.Heightmap {
	ox, oz := grid.Origin(c)
	step := grid.ChunkSize / float64(size-1)
	h := &terrain.Heightmap{Samples: make([]float32, size*size), Size: size}
	for z := range size {
		for x := range size {
			h.Samples[z*size+x] = g.Height(ox+float64(x)*step, oz+float64(z)*step)
		}
	}
	return h
}

// Jitter returns the deterministic micro-jitter function for chunk c.
// Values lie in [-JitterAmplitude, JitterAmplitude].
func (g *Generator) Jitter(c chunk.Coord) func(x, z int) float32 {
	cs := uint64(ChunkSeed(g.seed, c))
	return func(x, z int) float32 {
		h := Hash2(cs, x, z)
		unit := float64(h>>11) / float64(1<<53) // [0, 1)
		return float32((unit*2 - 1) * JitterAmplitude)
	}
}

// ChunkSeed derives a stable per-chunk seed from the world seed and chunk
// coordinate.
func ChunkSeed(worldSeed int64, c chunk.Coord) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(worldSeed))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(c.X)))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(c.Y)))
	h.Write(buf[:])
	return int64(h.Sum64())
}

// Hash2 mixes a seed with two integers using a murmur3-style finalizer.
func Hash2(seed uint64, x, z int) uint64 {
	h := seed ^ uint64(int64(x))*0x9e3779b97f4a7c15 ^ uint64(int64(z))*0xc2b2ae3d27d4eb4f
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}
