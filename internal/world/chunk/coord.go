// Package chunk defines chunk coordinates, keys and per-chunk records.
package chunk

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidKey is returned when a chunk key cannot be parsed.
var ErrInvalidKey = errors.New("invalid chunk key")

// Coord identifies a chunk by grid column X and grid row Y.
// Y runs along world Z.
type Coord struct {
	X, Y int
}

// Key is the canonical string key "cx_cy" used by the resident map and the
// persistence store.
type Key string

// Key returns the canonical key for the coordinate.
func (c Coord) Key() Key {
	return Key(strconv.Itoa(c.X) + "_" + strconv.Itoa(c.Y))
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Add returns the coordinate offset by (dx, dy).
func (c Coord) Add(dx, dy int) Coord {
	return Coord{c.X + dx, c.Y + dy}
}

// Chebyshev returns the ring distance max(|dx|, |dy|) between two chunks.
func (c Coord) Chebyshev(o Coord) int {
	return max(absi(c.X-o.X), absi(c.Y-o.Y))
}

// ParseKey parses a "cx_cy" key.
func ParseKey(k Key) (Coord, error) {
	xs, ys, ok := strings.Cut(string(k), "_")
	if !ok {
		return Coord{}, fmt.Errorf("%w: %q", ErrInvalidKey, k)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return Coord{}, fmt.Errorf("%w: %q", ErrInvalidKey, k)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return Coord{}, fmt.Errorf("%w: %q", ErrInvalidKey, k)
	}
	return Coord{x, y}, nil
}

// Grid is the fixed patch grid covering the world surface.
type Grid struct {
	Width     int     // Patches along X
	Height    int     // Patches along Z
	ChunkSize float64 // World units per patch side
}

// Contains reports whether the coordinate lies inside the grid.
func (g Grid) Contains(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.Width && c.Y < g.Height
}

// CoordAt returns the chunk containing world position (x, z):
// floor(x/ChunkSize), floor(z/ChunkSize). The result may lie outside the grid.
func (g Grid) CoordAt(x, z float64) Coord {
	return Coord{
		X: int(math.Floor(x / g.ChunkSize)),
		Y: int(math.Floor(z / g.ChunkSize)),
	}
}

// Origin returns the world position of the chunk's minimum corner.
func (g Grid) Origin(c Coord) (x, z float64) {
	return float64(c.X) * g.ChunkSize, float64(c.Y) * g.ChunkSize
}

// Extent returns the world size along X and Z.
func (g Grid) Extent() (width, height float64) {
	return float64(g.Width) * g.ChunkSize, float64(g.Height) * g.ChunkSize
}

func absi(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
