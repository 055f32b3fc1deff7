package world

import (
	"container/heap"

	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/internal/world/coords"
)

// PathNode represents a node in the A* search.
type PathNode struct {
	Coord  chunk.Coord
	G      float32 // Cost from start
	H      float32 // Heuristic (estimated cost to goal)
	F      float32 // Total cost (G + H)
	Parent *PathNode
	Index  int // Index in heap
}

// PathHeap implements a priority queue for A* search.
type PathHeap []*PathNode

func (h PathHeap) Len() int           { return len(h) }
func (h PathHeap) Less(i, j int) bool { return h[i].F < h[j].F }
func (h PathHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].Index = i
	h[j].Index = j
}

func (h *PathHeap) Push(x any) {
	n := len(*h)
	node := x.(*PathNode)
	node.Index = n
	*h = append(*h, node)
}

func (h *PathHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.Index = -1
	*h = old[0 : n-1]
	return node
}

// Passable reports whether a route may cross a chunk.
type Passable func(chunk.Coord) bool

// PathFinder plans chunk-to-chunk routes across the grid.
type PathFinder struct {
	grid     chunk.Grid
	passable Passable
}

// NewPathFinder creates a path finder. A nil passable treats every chunk
// in the grid as open.
func NewPathFinder(grid chunk.Grid, passable Passable) *PathFinder {
	if passable == nil {
		passable = func(chunk.Coord) bool { return true }
	}
	return &PathFinder{grid: grid, passable: passable}
}

// directions allows 8-way movement; odd indices are diagonal.
var directions = [8]chunk.Coord{
	{X: 0, Y: 1}, {X: -1, Y: 1}, {X: -1, Y: 0}, {X: -1, Y: -1},
	{X: 0, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1},
}

const (
	straightCost = float32(1.0)
	diagonalCost = float32(1.414)
)

// FindPath returns the chunks from start to goal, both included, or nil
// if no route exists. The start chunk itself need not be passable.
func (pf *PathFinder) FindPath(start, goal chunk.Coord) []chunk.Coord {
	if !pf.grid.Contains(start) || !pf.grid.Contains(goal) || !pf.passable(goal) {
		return nil
	}

	openSet := &PathHeap{}
	heap.Init(openSet)

	closedSet := make(map[chunk.Coord]bool)
	nodeMap := make(map[chunk.Coord]*PathNode)

	startNode := &PathNode{Coord: start, H: heuristic(start, goal)}
	startNode.F = startNode.H
	heap.Push(openSet, startNode)
	nodeMap[start] = startNode

	for openSet.Len() > 0 {
		current := heap.Pop(openSet).(*PathNode)
		if current.Coord == goal {
			return reconstructPath(current)
		}
		closedSet[current.Coord] = true

		for i, dir := range directions {
			next := chunk.Coord{X: current.Coord.X + dir.X, Y: current.Coord.Y + dir.Y}
			if closedSet[next] || !pf.open(next) {
				continue
			}

			moveCost := straightCost
			if i%2 == 1 {
				moveCost = diagonalCost
				// No cutting corners: both side chunks must be open
				if !pf.open(chunk.Coord{X: next.X, Y: current.Coord.Y}) ||
					!pf.open(chunk.Coord{X: current.Coord.X, Y: next.Y}) {
					continue
				}
			}

			g := current.G + moveCost
			neighbor, exists := nodeMap[next]
			if !exists {
				neighbor = &PathNode{Coord: next, G: g, H: heuristic(next, goal), Parent: current}
				neighbor.F = neighbor.G + neighbor.H
				nodeMap[next] = neighbor
				heap.Push(openSet, neighbor)
			} else if g < neighbor.G {
				neighbor.G = g
				neighbor.F = neighbor.G + neighbor.H
				neighbor.Parent = current
				heap.Fix(openSet, neighbor.Index)
			}
		}
	}
	return nil
}

// Waypoints converts a chunk path to the centres of its chunks, dropping
// the start chunk.
func Waypoints(m *coords.Mapper, path []chunk.Coord) []coords.Global {
	if len(path) < 2 {
		return nil
	}
	size := m.Grid().ChunkSize
	points := make([]coords.Global, 0, len(path)-1)
	for _, c := range path[1:] {
		o := m.ChunkOrigin(c)
		points = append(points, coords.Global{o.X() + size/2, 0, o.Z() + size/2})
	}
	return points
}

func (pf *PathFinder) open(c chunk.Coord) bool {
	return pf.grid.Contains(c) && pf.passable(c)
}

// heuristic is the octile distance between two chunks.
func heuristic(a, b chunk.Coord) float32 {
	dx := abs(b.X - a.X)
	dy := abs(b.Y - a.Y)
	if dx < dy {
		return float32(dx)*diagonalCost + float32(dy-dx)
	}
	return float32(dy)*diagonalCost + float32(dx-dy)
}

func reconstructPath(node *PathNode) []chunk.Coord {
	var path []chunk.Coord
	for node != nil {
		path = append(path, node.Coord)
		node = node.Parent
	}
	// Reverse path (it's built from goal to start)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
