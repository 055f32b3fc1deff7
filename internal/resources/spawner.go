// Package resources places collectible resource nodes on chunks and handles
// player interaction with them.
package resources

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"

	"github.com/Faultbox/terrastream/internal/engine/scene"
	"github.com/Faultbox/terrastream/internal/storage"
)

// namespace scopes deterministic node IDs.
var namespace = uuid.MustParse("6f1c4a52-93d8-4c1e-b7a4-2d0f5e8b9a31")

// Node is a collectible resource on a chunk.
type Node struct {
	ID       string
	Type     string
	Quantity int
	Local    [3]float32 // Position relative to the chunk origin
	Mined    bool
	Loose    bool // Can be picked up without a tool

	Render *scene.Node // Prop representation while attached
	parent *scene.Node
}

// State returns the persisted form of the node.
func (n *Node) State() storage.ResourceNode {
	return storage.ResourceNode{
		ID:       n.ID,
		Type:     n.Type,
		Quantity: n.Quantity,
		Local:    n.Local,
		Mined:    n.Mined,
		Loose:    n.Loose,
	}
}

// NodeFromState rebuilds a node from its persisted form.
func NodeFromState(s storage.ResourceNode) *Node {
	return &Node{
		ID:       s.ID,
		Type:     s.Type,
		Quantity: s.Quantity,
		Local:    s.Local,
		Mined:    s.Mined,
		Loose:    s.Loose,
	}
}

// Params describes the chunk being populated.
type Params struct {
	CX, CY        int
	Width, Height float64 // Chunk footprint in world units
	Seed          int64   // Chunk seed

	Noise2D func(x, z float64) float64    // Values in [-1, 1]
	Noise3D func(x, y, z float64) float64 // Values in [-1, 1]

	// HeightAt returns the surface height at a local position. Nodes sit at
	// height 0 when unset.
	HeightAt func(localX, localZ float32) float32
}

// center returns the chunk centre in global coordinates.
func (p Params) center() (x, z float64) {
	return (float64(p.CX) + 0.5) * p.Width, (float64(p.CY) + 0.5) * p.Height
}

// Spawner generates and services one resource type.
type Spawner interface {
	ResourceType() string
	// CalculateProbability maps a chunk noise sample in [-1, 1] to the
	// chance the chunk carries this resource at all.
	CalculateProbability(sample float64) float64
	MinimumCount() int
	MaximumCount() int
	CreateResourceNode(p Params, rng *rand.Rand, index int) *Node
	Spawn(p Params) []*Node
	// HandleInteraction removes up to amount from the node and returns how
	// much was taken.
	HandleInteraction(n *Node, amount int) int
}

// noiseScale converts global positions to chunk-sampling noise space.
const noiseScale = 1.0 / 2048

// typeHash hashes a resource type with FNV-1a.
func typeHash(t string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(t))
	return h.Sum64()
}

// spawn is the generation routine shared by every spawner. The RNG is keyed
// by the chunk seed and the resource type, so each type draws an independent
// stream that depends on nothing else.
func spawn(s Spawner, p Params) []*Node {
	rng := rand.New(rand.NewPCG(uint64(p.Seed), typeHash(s.ResourceType())))

	sample := 0.0
	if p.Noise2D != nil {
		cx, cz := p.center()
		sample = p.Noise2D(cx*noiseScale, cz*noiseScale)
	}
	if rng.Float64() >= s.CalculateProbability(sample) {
		return nil
	}

	lo, hi := s.MinimumCount(), s.MaximumCount()
	unit := math.Min(math.Max((sample+1)/2, 0), 1)
	count := lo + int(unit*float64(hi-lo+1))
	count = min(count, hi)

	nodes := make([]*Node, 0, count)
	for i := range count {
		nodes = append(nodes, s.CreateResourceNode(p, rng, i))
	}
	return nodes
}

// nodeID derives a stable ID from the chunk, type and index.
func nodeID(p Params, typ string, index int) string {
	name := fmt.Sprintf("%d/%d_%d/%s/%d", p.Seed, p.CX, p.CY, typ, index)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// placeNode picks a local position inside the chunk footprint, keeping a
// margin from the edges.
func placeNode(p Params, rng *rand.Rand) [3]float32 {
	const margin = 0.05
	x := float32((margin + rng.Float64()*(1-2*margin)) * p.Width)
	z := float32((margin + rng.Float64()*(1-2*margin)) * p.Height)
	var y float32
	if p.HeightAt != nil {
		y = p.HeightAt(x, z)
	}
	return [3]float32{x, y, z}
}

func take(n *Node, amount int) int {
	if n.Mined || amount <= 0 {
		return 0
	}
	taken := min(amount, n.Quantity)
	n.Quantity -= taken
	return taken
}

// Registry selects spawners by resource type.
type Registry struct {
	spawners map[string]Spawner
}

// NewRegistry creates a registry holding the given spawners.
func NewRegistry(spawners ...Spawner) *Registry {
	r := &Registry{spawners: make(map[string]Spawner)}
	for _, s := range spawners {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns a registry with the mineral and water spawners.
func DefaultRegistry() *Registry {
	return NewRegistry(NewMineralSpawner(), NewWaterSpawner())
}

// Register adds or replaces the spawner for its type.
func (r *Registry) Register(s Spawner) {
	r.spawners[s.ResourceType()] = s
}

// Get returns the spawner for a type.
func (r *Registry) Get(typ string) (Spawner, bool) {
	s, ok := r.spawners[typ]
	return s, ok
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.spawners))
	for t := range r.spawners {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// GenerateResourceNodes runs every registered spawner for a chunk. Output is
// identical for identical parameters.
func (r *Registry) GenerateResourceNodes(p Params) []*Node {
	var nodes []*Node
	for _, t := range r.Types() {
		nodes = append(nodes, r.spawners[t].Spawn(p)...)
	}
	return nodes
}
