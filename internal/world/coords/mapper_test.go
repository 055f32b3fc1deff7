package coords

import (
	"math"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/terrastream/internal/world/chunk"
)

func testConfig() Config {
	return Config{
		Grid:               chunk.Grid{Width: 144, Height: 72, ChunkSize: 128},
		RecenterThreshold:  2048,
		MaxRenderMagnitude: 10000,
	}
}

func TestRoundTripWithinSafeRadius(t *testing.T) {
	m := NewMapper(testConfig(), nil)
	m.SetOffset(Global{9000, 0, 4600})

	points := []Global{
		{9216, 12.5, 4608},
		{9000, 0, 4600},
		{8000.25, -30, 5500.75},
		{19000, 3, 4600}, // exactly at the clamp edge
	}
	for _, g := range points {
		back := m.ToGlobal(m.ToRender(g))
		for i := range 3 {
			if math.Abs(back[i]-g[i]) > 1e-3 {
				t.Errorf("round trip %v -> %v", g, back)
				break
			}
		}
	}
}

func TestToRenderClampsMagnitude(t *testing.T) {
	m := NewMapper(testConfig(), nil)
	r := m.ToRender(Global{50000, 0, -50000})
	if r.X != 10000 || r.Z != -10000 {
		t.Errorf("expected clamp to ±10000, got %v", r)
	}
}

func TestNonFiniteInput(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := NewMapper(testConfig(), zap.New(core))
	m.SetOffset(Global{100, 0, 200})

	if r := m.ToRender(Global{math.NaN(), 0, 0}); r != (Render{}) {
		t.Errorf("NaN global should map to render origin, got %v", r)
	}
	inf := float32(math.Inf(1))
	if g := m.ToGlobal(Render{X: inf}); g != (Global{100, 0, 200}) {
		t.Errorf("Inf render should map to offset, got %v", g)
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 warnings, got %d", logs.Len())
	}
}

func TestSetOffsetReturnsDelta(t *testing.T) {
	m := NewMapper(testConfig(), nil)
	m.SetOffset(Global{10, 0, 20})
	delta := m.SetOffset(Global{110, 0, 0})
	if delta != (Global{100, 0, -20}) {
		t.Errorf("delta = %v", delta)
	}
	if m.Offset() != (Global{110, 0, 0}) {
		t.Errorf("offset = %v", m.Offset())
	}
}

func TestTrackThreshold(t *testing.T) {
	m := NewMapper(testConfig(), nil)

	if _, moved := m.Track(Global{2000, 50, 0}); moved {
		t.Error("should not re-center within threshold")
	}
	delta, moved := m.Track(Global{2100, 50, 300})
	if !moved {
		t.Fatal("expected re-center beyond threshold")
	}
	if delta != (Global{2100, 0, 300}) {
		t.Errorf("delta = %v", delta)
	}
	// Player sits at the render origin horizontally after re-centering.
	r := m.ToRender(Global{2100, 50, 300})
	if r.X != 0 || r.Z != 0 || r.Y != 50 {
		t.Errorf("player render pos = %v", r)
	}
}

func TestChunkOf(t *testing.T) {
	m := NewMapper(testConfig(), nil)
	tests := []struct {
		pos  Global
		want chunk.Coord
		ok   bool
	}{
		{Global{9216, 0, 4608}, chunk.Coord{X: 72, Y: 36}, true},
		{Global{0, 0, 0}, chunk.Coord{X: 0, Y: 0}, true},
		{Global{127.9, 0, 128}, chunk.Coord{X: 0, Y: 1}, true},
		{Global{-1, 0, 0}, chunk.Coord{X: -1, Y: 0}, false},
		{Global{144 * 128, 0, 0}, chunk.Coord{X: 144, Y: 0}, false},
	}
	for _, tc := range tests {
		got, ok := m.ChunkOf(tc.pos)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ChunkOf(%v) = %v,%v want %v,%v", tc.pos, got, ok, tc.want, tc.ok)
		}
	}
}

func TestChunkRenderOrigin(t *testing.T) {
	m := NewMapper(testConfig(), nil)
	m.SetOffset(Global{9216, 0, 4608})
	r := m.ChunkRenderOrigin(chunk.Coord{X: 73, Y: 35})
	if r.X != 128 || r.Z != -128 {
		t.Errorf("render origin = %v", r)
	}
}

func TestClampGlobal(t *testing.T) {
	m := NewMapper(testConfig(), nil)
	g := m.ClampGlobal(Global{-5, 7, 1e9})
	if g != (Global{0, 7, 72 * 128}) {
		t.Errorf("ClampGlobal = %v", g)
	}
}
