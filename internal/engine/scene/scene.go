// Package scene provides the boundary between chunk streaming and the
// renderer: nodes positioned in render space and a collection that owns them.
// Drawing is left to whatever consumes the collection.
package scene

import (
	"sort"

	"github.com/sasha-s/go-deadlock"

	"github.com/Faultbox/terrastream/internal/engine/picking"
	"github.com/Faultbox/terrastream/internal/engine/terrain"
	"github.com/Faultbox/terrastream/pkg/math"
)

// Kind classifies scene nodes.
type Kind int

const (
	KindTerrain Kind = iota
	KindProp
	KindPlaceholder
)

func (k Kind) String() string {
	switch k {
	case KindTerrain:
		return "terrain"
	case KindProp:
		return "prop"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// Flags holds per-node render hints.
type Flags struct {
	CastShadows    bool
	ReceiveShadows bool
	Pickable       bool
}

// TerrainFlags are the flags every terrain chunk carries.
var TerrainFlags = Flags{ReceiveShadows: true, Pickable: true}

// PropFlags are the flags resource props carry.
var PropFlags = Flags{CastShadows: true, Pickable: true}

// Node is a renderable positioned in render space.
// Children are positioned relative to their parent.
type Node struct {
	Name     string
	Kind     Kind
	Position math.Vec3 // Render-space origin
	Mesh     *terrain.Mesh
	Extent   [3]float32 // Local half extents for nodes without a mesh
	Flags    Flags
	Children []*Node

	version  uint64
	disposed bool
}

// Version returns how many times the node was marked dirty.
func (n *Node) Version() uint64 { return n.version }

// Disposed reports whether Dispose was called.
func (n *Node) Disposed() bool { return n.disposed }

// Dispose releases the node and its children. Geometry is dropped so the
// memory can be reclaimed even if something still holds the node.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	n.disposed = true
	n.Mesh = nil
	for _, c := range n.Children {
		c.Dispose()
	}
	n.Children = nil
}

// AddChild attaches c under n.
func (n *Node) AddChild(c *Node) {
	n.Children = append(n.Children, c)
}

// RemoveChild detaches and disposes c. Returns false if c is not a child.
func (n *Node) RemoveChild(c *Node) bool {
	for i, child := range n.Children {
		if child == c {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			c.Dispose()
			return true
		}
	}
	return false
}

// Bounds returns the node's box in render space, or false if it has none.
func (n *Node) Bounds() (picking.AABB, bool) {
	if n.Mesh != nil && len(n.Mesh.Vertices) > 0 {
		return picking.NewAABB(n.Mesh.Bounds.Min, n.Mesh.Bounds.Max).Translate(n.Position), true
	}
	if n.Extent != [3]float32{} {
		e := n.Extent
		return picking.NewAABB([3]float32{-e[0], -e[1], -e[2]}, e).Translate(n.Position), true
	}
	return picking.AABB{}, false
}

// Graph is what the streaming core needs from a scene.
type Graph interface {
	Add(n *Node)
	Remove(n *Node)
	Shift(delta math.Vec3)
	MarkDirty(n *Node)
}

// Collection is an in-memory Graph.
type Collection struct {
	mu     deadlock.RWMutex
	nodes  map[*Node]struct{}
	shifts int
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{nodes: make(map[*Node]struct{})}
}

// Add attaches a top-level node.
func (c *Collection) Add(n *Node) {
	if n == nil {
		return
	}
	c.mu.Lock()
	c.nodes[n] = struct{}{}
	c.mu.Unlock()
}

// Remove detaches and disposes a node.
func (c *Collection) Remove(n *Node) {
	if n == nil {
		return
	}
	c.mu.Lock()
	delete(c.nodes, n)
	c.mu.Unlock()
	n.Dispose()
}

// Shift moves every top-level node by delta. Called when the floating
// origin moves.
func (c *Collection) Shift(delta math.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := range c.nodes {
		n.Position = n.Position.Add(delta)
	}
	c.shifts++
}

// MarkDirty flags a node whose geometry changed.
func (c *Collection) MarkDirty(n *Node) {
	c.mu.Lock()
	n.version++
	c.mu.Unlock()
}

// Len returns the number of top-level nodes.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// Contains reports whether n is attached.
func (c *Collection) Contains(n *Node) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.nodes[n]
	return ok
}

// Shifts returns how many origin shifts were applied.
func (c *Collection) Shifts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shifts
}

// Nodes returns the top-level nodes sorted by name.
func (c *Collection) Nodes() []*Node {
	c.mu.RLock()
	out := make([]*Node, 0, len(c.nodes))
	for n := range c.nodes {
		out = append(out, n)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
