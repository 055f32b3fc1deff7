// Package pipeline turns a chunk coordinate into renderable geometry:
// heightmap fetch and decode, procedural fallback, mesh build, persisted
// edits and resource placement.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/engine/scene"
	"github.com/Faultbox/terrastream/internal/engine/terrain"
	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/internal/procgen"
	"github.com/Faultbox/terrastream/internal/resources"
	"github.com/Faultbox/terrastream/internal/storage"
	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/internal/world/coords"
	"github.com/Faultbox/terrastream/pkg/formats"
)

// Pipeline errors.
var (
	ErrInvalidCoordinate = errors.New("chunk coordinate outside world grid")
	ErrNetworkFetch      = errors.New("heightmap fetch failed")
	ErrDecode            = errors.New("heightmap decode failed")
)

// Source records where a chunk's heights came from.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceProcedural  Source = "procedural"
	SourceRemote      Source = "remote"
	SourcePlaceholder Source = "placeholder"
)

// HeightmapSource fetches raw patch bytes for a chunk.
type HeightmapSource interface {
	Fetch(ctx context.Context, cx, cy int) ([]byte, error)
}

// Deps are the collaborators a pipeline needs. Source, Resources and Store
// are optional.
type Deps struct {
	Mapper      *coords.Mapper
	Generator   *procgen.Generator
	Source      HeightmapSource
	Resources   *resources.Framework
	Store       storage.Store
	HeightScale float32
	Logger      *zap.Logger
}

// Pipeline builds chunks. It is safe to call Build from several goroutines;
// results are independent until integrated by their owner.
type Pipeline struct {
	mapper      *coords.Mapper
	gen         *procgen.Generator
	source      HeightmapSource
	resources   *resources.Framework
	store       storage.Store
	heightScale float32
	log         *zap.Logger
}

// New creates a pipeline.
func New(d Deps) *Pipeline {
	if d.HeightScale == 0 {
		d.HeightScale = 1
	}
	return &Pipeline{
		mapper:      d.Mapper,
		gen:         d.Generator,
		source:      d.Source,
		resources:   d.Resources,
		store:       d.Store,
		heightScale: d.HeightScale,
		log:         logger.OrNop(d.Logger),
	}
}

// Result is a built chunk ready to be attached to the scene.
type Result struct {
	Coord        chunk.Coord
	LOD          int
	Resolution   int
	Mesh         *terrain.Mesh
	Node         *scene.Node
	Resources    []*resources.Node
	Source       Source
	GlobalOrigin coords.Global
	Overrides    int // Persisted vertex edits re-applied
	Took         time.Duration
}

// Dispose releases the result's scene node and resource props.
func (r *Result) Dispose() {
	if r == nil || r.Node == nil {
		return
	}
	r.Node.Dispose()
}

// Build produces the chunk at c for the given LOD and vertex resolution.
// Fetch and decode failures fall back to procedural terrain, so for in-grid
// coordinates Build fails only on cancellation or invalid resolution.
func (p *Pipeline) Build(ctx context.Context, c chunk.Coord, lod, resolution int) (*Result, error) {
	if !p.mapper.Grid().Contains(c) {
		p.log.Debug("build skipped, coordinate outside grid", zap.Stringer("chunk", c))
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinate, c)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	hm, err := p.fetch(ctx, c)
	source := SourceNetwork
	var jitter func(x, z int) float32
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.log.Debug("using procedural terrain", zap.Stringer("chunk", c), zap.Error(err))
		hm = p.gen.Heightmap(p.mapper.Grid(), c, resolution)
		jitter = p.gen.Jitter(c)
		source = SourceProcedural
	}

	res, err := p.assemble(ctx, c, lod, resolution, hm, jitter, source)
	if err != nil {
		return nil, err
	}
	res.Took = time.Since(start)
	return res, nil
}

// BuildFromHeightmap builds a chunk from a patch received from elsewhere,
// bypassing the fetch.
func (p *Pipeline) BuildFromHeightmap(ctx context.Context, c chunk.Coord, lod, resolution int, raw []byte) (*Result, error) {
	if !p.mapper.Grid().Contains(c) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinate, c)
	}
	patch, err := formats.ParsePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return p.assemble(ctx, c, lod, resolution, terrain.HeightmapFromPatch(patch), nil, SourceRemote)
}

// BuildPlaceholder returns a flat platform for c at the given height. It
// never fails and carries no resources.
func (p *Pipeline) BuildPlaceholder(c chunk.Coord, height float32) *Result {
	size := float32(p.mapper.Grid().ChunkSize)
	mesh, _ := terrain.BuildGridMesh(terrain.NewFlatHeightmap(2, 0), terrain.GridParams{
		Resolution: 2, Size: size, HeightScale: 1,
	})
	for i := range mesh.Vertices {
		mesh.Vertices[i].Position[1] = height
	}
	terrain.RecomputeBounds(mesh)
	return &Result{
		Coord:        c,
		Resolution:   2,
		Mesh:         mesh,
		Source:       SourcePlaceholder,
		GlobalOrigin: p.mapper.ChunkOrigin(c),
		Node: &scene.Node{
			Name:     string(c.Key()),
			Kind:     scene.KindPlaceholder,
			Position: p.mapper.ChunkRenderOrigin(c),
			Mesh:     mesh,
			Flags:    scene.TerrainFlags,
		},
	}
}

func (p *Pipeline) fetch(ctx context.Context, c chunk.Coord) (*terrain.Heightmap, error) {
	if p.source == nil {
		return nil, fmt.Errorf("%w: no heightmap source", ErrNetworkFetch)
	}
	raw, err := p.source.Fetch(ctx, c.X, c.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetworkFetch, err)
	}
	patch, err := formats.ParsePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return terrain.HeightmapFromPatch(patch), nil
}

func (p *Pipeline) assemble(ctx context.Context, c chunk.Coord, lod, resolution int,
	hm *terrain.Heightmap, jitter func(x, z int) float32, source Source) (*Result, error) {

	grid := p.mapper.Grid()
	mesh, err := terrain.BuildGridMesh(hm, terrain.GridParams{
		Resolution:  resolution,
		Size:        float32(grid.ChunkSize),
		HeightScale: p.heightScale,
		Jitter:      jitter,
	})
	if err != nil {
		return nil, fmt.Errorf("building mesh for %v: %w", c, err)
	}

	key := string(c.Key())
	applied := p.applyOverrides(ctx, key, mesh)

	node := &scene.Node{
		Name:     key,
		Kind:     scene.KindTerrain,
		Position: p.mapper.ChunkRenderOrigin(c),
		Mesh:     mesh,
		Flags:    scene.TerrainFlags,
	}

	var nodes []*resources.Node
	if p.resources != nil {
		params := resources.Params{
			CX:      c.X,
			CY:      c.Y,
			Width:   grid.ChunkSize,
			Height:  grid.ChunkSize,
			Seed:    procgen.ChunkSeed(p.gen.Seed(), c),
			Noise2D: p.gen.Noise2D,
			Noise3D: p.gen.Noise3D,
			HeightAt: func(x, z float32) float32 {
				h, _ := mesh.HeightAt(x, z)
				return h
			},
		}
		nodes, err = p.resources.Load(ctx, key, params)
		if err != nil {
			p.log.Warn("resource load failed", zap.String("chunk", key), zap.Error(err))
			nodes = nil
		}
		p.resources.Attach(node, nodes)
	}

	return &Result{
		Coord:        c,
		LOD:          lod,
		Resolution:   resolution,
		Mesh:         mesh,
		Node:         node,
		Resources:    nodes,
		Source:       source,
		GlobalOrigin: p.mapper.ChunkOrigin(c),
		Overrides:    applied,
	}, nil
}

// applyOverrides re-applies persisted terrain edits to a fresh mesh.
func (p *Pipeline) applyOverrides(ctx context.Context, key string, mesh *terrain.Mesh) int {
	if p.store == nil {
		return 0
	}
	state, found, err := storage.GetOrCreate(ctx, p.store, key)
	if err != nil {
		p.log.Warn("chunk state read failed", zap.String("chunk", key), zap.Error(err))
		return 0
	}
	if !found {
		return 0
	}
	deltas := state.OverridesFor(mesh.Resolution)
	if len(deltas) == 0 {
		return 0
	}
	for idx, d := range deltas {
		if idx >= 0 && idx < len(mesh.Vertices) {
			mesh.Vertices[idx].Position[1] += d
		}
	}
	terrain.ComputeNormals(mesh)
	terrain.RecomputeBounds(mesh)
	return len(deltas)
}
