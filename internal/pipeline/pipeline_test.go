package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Faultbox/terrastream/internal/engine/scene"
	"github.com/Faultbox/terrastream/internal/procgen"
	"github.com/Faultbox/terrastream/internal/resources"
	"github.com/Faultbox/terrastream/internal/storage"
	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/internal/world/coords"
	"github.com/Faultbox/terrastream/pkg/formats"
)

var testGrid = chunk.Grid{Width: 144, Height: 72, ChunkSize: 128}

type failingSource struct{ calls atomic.Int32 }

func (f *failingSource) Fetch(ctx context.Context, cx, cy int) ([]byte, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

type staticSource struct {
	patch []byte
	asked chunk.Coord
}

func (s *staticSource) Fetch(ctx context.Context, cx, cy int) ([]byte, error) {
	s.asked = chunk.Coord{X: cx, Y: cy}
	return s.patch, nil
}

func newPipeline(t *testing.T, src HeightmapSource, store storage.Store) (*Pipeline, *coords.Mapper) {
	t.Helper()
	m := coords.NewMapper(coords.Config{Grid: testGrid, MaxRenderMagnitude: 10000}, nil)
	var fw *resources.Framework
	if store != nil {
		fw = resources.NewFramework(resources.DefaultRegistry(), store, nil)
	}
	return New(Deps{
		Mapper:      m,
		Generator:   procgen.New(1337),
		Source:      src,
		Resources:   fw,
		Store:       store,
		HeightScale: 100,
	}), m
}

// rowPatch encodes a 3x3 patch where sample (col, row) = row*3 + col,
// scaled into [0, 1].
func rowPatch(t *testing.T) []byte {
	t.Helper()
	samples := make([]float32, 9)
	for i := range samples {
		samples[i] = float32(i) / 8
	}
	b, err := formats.EncodePatch(3, samples)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBuildFromNetwork(t *testing.T) {
	src := &staticSource{patch: rowPatch(t)}
	p, _ := newPipeline(t, src, nil)

	res, err := p.Build(context.Background(), chunk.Coord{X: 5, Y: 7}, 0, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Source != SourceNetwork {
		t.Errorf("source = %s", res.Source)
	}
	if src.asked != (chunk.Coord{X: 5, Y: 7}) {
		t.Errorf("fetched %v", src.asked)
	}
	if res.Node == nil || res.Node.Mesh != res.Mesh {
		t.Fatal("node not wired to mesh")
	}
	if res.Node.Flags != scene.TerrainFlags || res.Node.Flags.CastShadows {
		t.Errorf("terrain flags = %+v", res.Node.Flags)
	}
}

// The payload's second sample must land one vertex along +X, not +Z.
func TestBuildRowOrderNotMirrored(t *testing.T) {
	p, _ := newPipeline(t, &staticSource{patch: rowPatch(t)}, nil)
	res, err := p.Build(context.Background(), chunk.Coord{}, 0, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	m := res.Mesh
	alongX := m.Vertices[m.Index(1, 0)].Position
	alongZ := m.Vertices[m.Index(0, 1)].Position
	if alongX[0] != 64 || alongX[2] != 0 {
		t.Fatalf("vertex (1,0) at %v", alongX)
	}
	if diff := alongX[1] - 100.0/8; diff > 0.01 || diff < -0.01 {
		t.Errorf("vertex (1,0) height = %v, want %v", alongX[1], 100.0/8)
	}
	if diff := alongZ[1] - 300.0/8; diff > 0.01 || diff < -0.01 {
		t.Errorf("vertex (0,1) height = %v, want %v", alongZ[1], 300.0/8)
	}
}

func TestProceduralFallbackNeverFails(t *testing.T) {
	src := &failingSource{}
	p, _ := newPipeline(t, src, nil)

	for _, c := range []chunk.Coord{{0, 0}, {72, 36}, {143, 71}, {10, 60}} {
		res, err := p.Build(context.Background(), c, 0, 17)
		if err != nil {
			t.Fatalf("Build(%v): %v", c, err)
		}
		if res.Mesh == nil || len(res.Mesh.Vertices) != 17*17 {
			t.Fatalf("Build(%v): bad mesh", c)
		}
		if res.Source != SourceProcedural {
			t.Errorf("Build(%v): source %s", c, res.Source)
		}
	}
	if src.calls.Load() != 4 {
		t.Errorf("expected 4 fetch attempts, got %d", src.calls.Load())
	}
}

func TestProceduralDeterministic(t *testing.T) {
	p, _ := newPipeline(t, &failingSource{}, nil)
	a, _ := p.Build(context.Background(), chunk.Coord{X: 3, Y: 4}, 0, 9)
	b, _ := p.Build(context.Background(), chunk.Coord{X: 3, Y: 4}, 0, 9)
	for i := range a.Mesh.Vertices {
		if a.Mesh.Vertices[i].Position != b.Mesh.Vertices[i].Position {
			t.Fatalf("vertex %d differs", i)
		}
	}
}

func TestProceduralEdgesAlign(t *testing.T) {
	p, _ := newPipeline(t, nil, nil)
	left, _ := p.Build(context.Background(), chunk.Coord{X: 3, Y: 4}, 0, 9)
	right, _ := p.Build(context.Background(), chunk.Coord{X: 4, Y: 4}, 0, 9)
	for z := range 9 {
		l := left.Mesh.Vertices[left.Mesh.Index(8, z)].Position[1]
		r := right.Mesh.Vertices[right.Mesh.Index(0, z)].Position[1]
		if l != r {
			t.Fatalf("row %d: edge heights %v vs %v", z, l, r)
		}
	}
}

func TestDecodeFailureFallsBack(t *testing.T) {
	p, _ := newPipeline(t, &staticSource{patch: []byte{1, 2, 3}}, nil)
	res, err := p.Build(context.Background(), chunk.Coord{X: 1, Y: 1}, 0, 5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Source != SourceProcedural {
		t.Errorf("source = %s", res.Source)
	}
}

func TestBuildInvalidCoordinate(t *testing.T) {
	p, _ := newPipeline(t, nil, nil)
	for _, c := range []chunk.Coord{{-1, 0}, {144, 0}, {0, 72}} {
		if _, err := p.Build(context.Background(), c, 0, 5); !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("Build(%v) = %v, want ErrInvalidCoordinate", c, err)
		}
	}
}

func TestBuildCancelled(t *testing.T) {
	p, _ := newPipeline(t, &failingSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Build(ctx, chunk.Coord{}, 0, 5); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildPositionsNodeInRenderSpace(t *testing.T) {
	p, m := newPipeline(t, nil, nil)
	m.SetOffset(coords.Global{9216, 0, 4608})
	res, _ := p.Build(context.Background(), chunk.Coord{X: 71, Y: 37}, 0, 5)
	if res.Node.Position.X != -128 || res.Node.Position.Z != 128 {
		t.Errorf("node at %v", res.Node.Position)
	}
	if res.GlobalOrigin != (coords.Global{71 * 128, 0, 37 * 128}) {
		t.Errorf("global origin = %v", res.GlobalOrigin)
	}
}

func TestPersistedOverridesReapplied(t *testing.T) {
	store := storage.NewMemoryStore()
	p, _ := newPipeline(t, nil, store)
	c := chunk.Coord{X: 2, Y: 2}

	before, _ := p.Build(context.Background(), c, 0, 5)
	centre := before.Mesh.Index(2, 2)
	base := before.Mesh.Vertices[centre].Position[1]

	err := storage.Update(context.Background(), store, string(c.Key()), func(st *storage.ChunkState) error {
		st.AddOverrides(5, map[int]float32{centre: -7})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	after, _ := p.Build(context.Background(), c, 0, 5)
	if after.Overrides != 1 {
		t.Errorf("expected 1 override, got %d", after.Overrides)
	}
	if got := after.Mesh.Vertices[centre].Position[1]; got != base-7 {
		t.Errorf("centre height = %v, want %v", got, base-7)
	}

	// A coarser rebuild maps the edit onto the nearest vertex.
	coarse, _ := p.Build(context.Background(), c, 1, 3)
	if coarse.Overrides != 1 {
		t.Errorf("expected remapped override at LOD 1, got %d", coarse.Overrides)
	}
}

func TestBuildFromHeightmap(t *testing.T) {
	p, _ := newPipeline(t, &failingSource{}, nil)
	res, err := p.BuildFromHeightmap(context.Background(), chunk.Coord{X: 9, Y: 9}, 0, 3, rowPatch(t))
	if err != nil {
		t.Fatalf("BuildFromHeightmap: %v", err)
	}
	if res.Source != SourceRemote {
		t.Errorf("source = %s", res.Source)
	}
	if _, err := p.BuildFromHeightmap(context.Background(), chunk.Coord{}, 0, 3, []byte{1}); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestBuildPlaceholder(t *testing.T) {
	p, _ := newPipeline(t, nil, nil)
	res := p.BuildPlaceholder(chunk.Coord{X: 1, Y: 1}, 42)
	if res.Source != SourcePlaceholder || res.Node.Kind != scene.KindPlaceholder {
		t.Errorf("unexpected placeholder %+v", res)
	}
	for _, v := range res.Mesh.Vertices {
		if v.Position[1] != 42 {
			t.Fatalf("placeholder not flat at 42: %v", v.Position)
		}
	}
}

func TestResourcesAttachedAndPersisted(t *testing.T) {
	store := storage.NewMemoryStore()
	p, _ := newPipeline(t, nil, store)
	res, err := p.Build(context.Background(), chunk.Coord{X: 30, Y: 30}, 0, 9)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	st, err := store.Get(context.Background(), "30_30")
	if err != nil {
		t.Fatalf("state not persisted: %v", err)
	}
	if !st.ResourcesGenerated || len(st.ResourceNodes) != len(res.Resources) {
		t.Errorf("persisted %d nodes, built %d", len(st.ResourceNodes), len(res.Resources))
	}
	if len(res.Node.Children) != len(res.Resources) {
		t.Errorf("expected %d props, got %d", len(res.Resources), len(res.Node.Children))
	}
}
