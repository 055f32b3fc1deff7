// Package storage persists per-chunk state: vertex overrides from terrain
// edits and resource node state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Storage errors.
var (
	ErrNotFound = errors.New("chunk state not found")
	ErrClosed   = errors.New("store closed")
)

// VertexProperties are the surface properties shared by every vertex of a
// chunk unless overridden.
type VertexProperties struct {
	Material  string     `json:"material"`
	Roughness float32    `json:"roughness"`
	Tint      [3]float32 `json:"tint"`
}

// DefaultVertexProperties returns the properties of untouched ground.
func DefaultVertexProperties() VertexProperties {
	return VertexProperties{Material: "soil", Roughness: 0.9, Tint: [3]float32{1, 1, 1}}
}

// VertexOverride is an accumulated height delta for one vertex, recorded at
// the mesh resolution it was made at.
type VertexOverride struct {
	Index      int     `json:"i"`
	Resolution int     `json:"r"`
	Delta      float32 `json:"d"`
}

// ResourceNode is the persisted form of a collectible resource.
type ResourceNode struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Quantity int        `json:"quantity"`
	Local    [3]float32 `json:"local"`
	Mined    bool       `json:"mined"`
	Loose    bool       `json:"loose"`
}

// ChunkState is everything persisted for one chunk key.
type ChunkState struct {
	DefaultVertexProperties VertexProperties `json:"defaultVertexProperties"`
	VertexOverrides         []VertexOverride `json:"vertexOverrides"`
	ResourceNodes           []ResourceNode   `json:"resourceNodes"`

	// ResourcesGenerated is set once the chunk's resource nodes were
	// generated, so an empty list is not mistaken for "not yet generated".
	ResourcesGenerated bool `json:"resourcesGenerated"`
}

// NewChunkState returns an empty state with default properties.
func NewChunkState() *ChunkState {
	return &ChunkState{DefaultVertexProperties: DefaultVertexProperties()}
}

// Clone returns a deep copy.
func (s *ChunkState) Clone() *ChunkState {
	c := *s
	c.VertexOverrides = append([]VertexOverride(nil), s.VertexOverrides...)
	c.ResourceNodes = append([]ResourceNode(nil), s.ResourceNodes...)
	return &c
}

// AddOverrides merges a batch of vertex deltas made at the given resolution.
func (s *ChunkState) AddOverrides(resolution int, deltas map[int]float32) {
	pos := make(map[int]int, len(s.VertexOverrides))
	for i, o := range s.VertexOverrides {
		if o.Resolution == resolution {
			pos[o.Index] = i
		}
	}
	for idx, d := range deltas {
		if i, ok := pos[idx]; ok {
			s.VertexOverrides[i].Delta += d
			continue
		}
		pos[idx] = len(s.VertexOverrides)
		s.VertexOverrides = append(s.VertexOverrides, VertexOverride{Index: idx, Resolution: resolution, Delta: d})
	}
}

// OverridesFor returns the accumulated deltas mapped onto a mesh of the given
// resolution. Overrides recorded at another resolution land on the nearest
// vertex of the target grid.
func (s *ChunkState) OverridesFor(resolution int) map[int]float32 {
	if len(s.VertexOverrides) == 0 || resolution < 2 {
		return nil
	}
	out := make(map[int]float32)
	for _, o := range s.VertexOverrides {
		if o.Resolution < 2 || o.Index < 0 || o.Index >= o.Resolution*o.Resolution {
			continue
		}
		out[RemapIndex(o.Index, o.Resolution, resolution)] += o.Delta
	}
	return out
}

// RemapIndex maps a vertex index of a from x from grid onto the nearest
// vertex of a to x to grid.
func RemapIndex(idx, from, to int) int {
	if from == to || from < 2 || to < 2 {
		return idx
	}
	scale := float64(to-1) / float64(from-1)
	x := int(math.Round(float64(idx%from) * scale))
	z := int(math.Round(float64(idx/from) * scale))
	return z*to + x
}

// FindResource returns the persisted node with the given ID.
func (s *ChunkState) FindResource(id string) (*ResourceNode, bool) {
	for i := range s.ResourceNodes {
		if s.ResourceNodes[i].ID == id {
			return &s.ResourceNodes[i], true
		}
	}
	return nil, false
}

// Store is a key-value store of chunk state keyed by "cx_cy".
type Store interface {
	// Get returns ErrNotFound when nothing is stored for key.
	Get(ctx context.Context, key string) (*ChunkState, error)
	Put(ctx context.Context, key string, state *ChunkState) error
	Close() error
}

// updater is implemented by stores that can read-modify-write atomically.
type updater interface {
	Update(ctx context.Context, key string, fn func(*ChunkState) error) error
}

// Update applies fn to the state stored under key, starting from an empty
// state when none exists, and writes the result back. Stores that support it
// run the whole cycle atomically.
func Update(ctx context.Context, s Store, key string, fn func(*ChunkState) error) error {
	if u, ok := s.(updater); ok {
		return u.Update(ctx, key, fn)
	}
	state, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		state = NewChunkState()
	} else if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.Put(ctx, key, state)
}

// GetOrCreate returns the stored state for key, or an empty state and
// false when none exists.
func GetOrCreate(ctx context.Context, s Store, key string) (*ChunkState, bool, error) {
	state, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return NewChunkState(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}
