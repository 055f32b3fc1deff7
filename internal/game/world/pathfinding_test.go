package world

import (
	"testing"

	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/internal/world/coords"
)

// blockedGrid returns a 5x5 grid where the listed chunks are closed.
func blockedGrid(blocked ...chunk.Coord) (chunk.Grid, Passable) {
	closed := make(map[chunk.Coord]bool)
	for _, c := range blocked {
		closed[c] = true
	}
	return chunk.Grid{Width: 5, Height: 5, ChunkSize: 10}, func(c chunk.Coord) bool { return !closed[c] }
}

func c(x, y int) chunk.Coord { return chunk.Coord{X: x, Y: y} }

func TestFindPathSimple(t *testing.T) {
	pf := NewPathFinder(blockedGrid())

	path := pf.FindPath(c(0, 0), c(4, 4))
	if path == nil {
		t.Fatal("expected path, got nil")
	}
	if path[0] != c(0, 0) || path[len(path)-1] != c(4, 4) {
		t.Errorf("path runs %v .. %v", path[0], path[len(path)-1])
	}
	// Straight diagonal: 5 chunks.
	if len(path) != 5 {
		t.Errorf("path length = %d, want 5", len(path))
	}
}

func TestFindPathAroundWall(t *testing.T) {
	pf := NewPathFinder(blockedGrid(c(2, 0), c(2, 1), c(2, 2), c(2, 3)))

	path := pf.FindPath(c(0, 0), c(4, 0))
	if path == nil {
		t.Fatal("expected path around wall")
	}
	through := false
	for _, p := range path {
		if p.X == 2 {
			if p.Y != 4 {
				t.Errorf("path crosses wall at %v", p)
			}
			through = true
		}
	}
	if !through {
		t.Error("path never crossed column 2")
	}
}

func TestFindPathNoRoute(t *testing.T) {
	tests := []struct {
		name        string
		blocked     []chunk.Coord
		start, goal chunk.Coord
	}{
		{"goal blocked", []chunk.Coord{c(4, 4)}, c(0, 0), c(4, 4)},
		{"goal outside grid", nil, c(0, 0), c(5, 0)},
		{"start outside grid", nil, c(-1, 0), c(2, 2)},
		{"walled in", []chunk.Coord{c(0, 1), c(1, 1), c(1, 0)}, c(0, 0), c(4, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf := NewPathFinder(blockedGrid(tt.blocked...))
			if path := pf.FindPath(tt.start, tt.goal); path != nil {
				t.Errorf("expected no path, got %v", path)
			}
		})
	}
}

func TestFindPathNoCornerCutting(t *testing.T) {
	// (1,0) and (0,1) closed: the diagonal (0,0)->(1,1) squeezes between them.
	pf := NewPathFinder(blockedGrid(c(1, 0), c(0, 1)))
	if path := pf.FindPath(c(0, 0), c(1, 1)); path != nil {
		t.Errorf("path cut a corner: %v", path)
	}
}

func TestWaypoints(t *testing.T) {
	grid := chunk.Grid{Width: 5, Height: 5, ChunkSize: 10}
	m := coords.NewMapper(coords.Config{Grid: grid, RecenterThreshold: 100}, nil)

	points := Waypoints(m, []chunk.Coord{c(0, 0), c(1, 0), c(1, 1)})
	want := []coords.Global{{15, 0, 5}, {15, 0, 15}}
	if len(points) != len(want) {
		t.Fatalf("waypoints = %v, want %v", points, want)
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("waypoint %d = %v, want %v", i, points[i], want[i])
		}
	}
	if Waypoints(m, []chunk.Coord{c(0, 0)}) != nil {
		t.Error("single-chunk path should need no waypoints")
	}
}
