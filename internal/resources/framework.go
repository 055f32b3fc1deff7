package resources

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/engine/scene"
	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/internal/storage"
	"github.com/Faultbox/terrastream/pkg/math"
)

// Framework errors.
var (
	ErrUnknownType  = errors.New("unknown resource type")
	ErrAlreadyMined = errors.New("resource node already mined")
	ErrNodeNotFound = errors.New("resource node not found")
)

// Framework ties spawners to persistence and the scene.
type Framework struct {
	registry *Registry
	store    storage.Store
	log      *zap.Logger
}

// NewFramework creates a framework. store may be nil, in which case nodes are
// regenerated on every load and interactions are not persisted.
func NewFramework(registry *Registry, store storage.Store, log *zap.Logger) *Framework {
	return &Framework{registry: registry, store: store, log: logger.OrNop(log)}
}

// Registry returns the spawner registry.
func (f *Framework) Registry() *Registry { return f.registry }

// Load returns the resource nodes for a chunk: the persisted list when the
// chunk was generated before, otherwise a freshly generated list which is
// then persisted. Mined nodes therefore stay mined across reloads.
func (f *Framework) Load(ctx context.Context, key string, p Params) ([]*Node, error) {
	if f.store == nil {
		return f.registry.GenerateResourceNodes(p), nil
	}

	if st, found, err := storage.GetOrCreate(ctx, f.store, key); err == nil && found && st.ResourcesGenerated {
		nodes := make([]*Node, 0, len(st.ResourceNodes))
		for _, rn := range st.ResourceNodes {
			nodes = append(nodes, NodeFromState(rn))
		}
		return nodes, nil
	}

	var nodes []*Node
	err := storage.Update(ctx, f.store, key, func(st *storage.ChunkState) error {
		if !st.ResourcesGenerated {
			st.ResourceNodes = st.ResourceNodes[:0]
			for _, n := range f.registry.GenerateResourceNodes(p) {
				st.ResourceNodes = append(st.ResourceNodes, n.State())
			}
			st.ResourcesGenerated = true
		}
		nodes = make([]*Node, 0, len(st.ResourceNodes))
		for _, rn := range st.ResourceNodes {
			nodes = append(nodes, NodeFromState(rn))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading resources for %s: %w", key, err)
	}
	return nodes, nil
}

// propExtent returns the half extents of a node's prop.
func propExtent(n *Node) [3]float32 {
	if n.Type == TypeWater {
		return [3]float32{1.5, 0.1, 1.5}
	}
	return [3]float32{0.8, 0.8, 0.8}
}

// Attach creates prop nodes for unmined resources as children of a chunk
// node. Props cast shadows; the chunk terrain does not.
func (f *Framework) Attach(parent *scene.Node, nodes []*Node) {
	for _, n := range nodes {
		if n.Mined || n.Render != nil {
			continue
		}
		n.Render = &scene.Node{
			Name:     n.ID,
			Kind:     scene.KindProp,
			Position: math.Vec3{X: n.Local[0], Y: n.Local[1], Z: n.Local[2]},
			Extent:   propExtent(n),
			Flags:    scene.PropFlags,
		}
		n.parent = parent
		parent.AddChild(n.Render)
	}
}

// Interact applies a player interaction to a node. When the quantity reaches
// zero the node is marked mined and its prop disposed. The new state is
// persisted before returning.
func (f *Framework) Interact(ctx context.Context, key string, n *Node, amount int) (int, error) {
	if n.Mined {
		return 0, ErrAlreadyMined
	}
	sp, ok := f.registry.Get(n.Type)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, n.Type)
	}

	taken := sp.HandleInteraction(n, amount)
	if n.Quantity <= 0 {
		n.Quantity = 0
		n.Mined = true
		disposeRender(n)
		f.log.Debug("resource mined", zap.String("chunk", key), zap.String("node", n.ID), zap.String("type", n.Type))
	}

	if f.store == nil {
		return taken, nil
	}
	state := n.State()
	err := storage.Update(ctx, f.store, key, func(st *storage.ChunkState) error {
		if rn, ok := st.FindResource(state.ID); ok {
			*rn = state
			return nil
		}
		st.ResourceNodes = append(st.ResourceNodes, state)
		return nil
	})
	if err != nil {
		return taken, fmt.Errorf("persisting %s: %w", n.ID, err)
	}
	return taken, nil
}

// Detach disposes the props of all nodes, e.g. when their chunk unloads.
func (f *Framework) Detach(nodes []*Node) {
	for _, n := range nodes {
		disposeRender(n)
	}
}

// Carry copies the mined state and remaining quantity of every node in prev
// onto the node with the same ID in next, and disposes the props of nodes
// that are mined by now. prev is the live list of a resident chunk; next
// comes from a rebuild whose store read may predate interactions on prev.
func Carry(prev, next []*Node) {
	if len(prev) == 0 {
		return
	}
	live := make(map[string]*Node, len(prev))
	for _, n := range prev {
		live[n.ID] = n
	}
	for _, n := range next {
		old, ok := live[n.ID]
		if !ok {
			continue
		}
		n.Quantity = old.Quantity
		n.Mined = old.Mined
		if n.Mined {
			disposeRender(n)
		}
	}
}

func disposeRender(n *Node) {
	if n.Render == nil {
		return
	}
	if n.parent == nil || !n.parent.RemoveChild(n.Render) {
		n.Render.Dispose()
	}
	n.Render = nil
	n.parent = nil
}

// Find returns the node with the given ID.
func Find(nodes []*Node, id string) (*Node, error) {
	for _, n := range nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
}
