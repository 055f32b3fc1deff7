package scene

import (
	"testing"

	"github.com/Faultbox/terrastream/internal/engine/picking"
	"github.com/Faultbox/terrastream/internal/engine/terrain"
	"github.com/Faultbox/terrastream/pkg/math"
)

func flatNode(t *testing.T, name string, pos math.Vec3, level float32) *Node {
	t.Helper()
	m, err := terrain.BuildGridMesh(terrain.NewFlatHeightmap(5, level),
		terrain.GridParams{Resolution: 5, Size: 100, HeightScale: 10})
	if err != nil {
		t.Fatalf("BuildGridMesh: %v", err)
	}
	return &Node{Name: name, Kind: KindTerrain, Position: pos, Mesh: m, Flags: TerrainFlags}
}

func TestCollectionAddRemove(t *testing.T) {
	c := NewCollection()
	n := flatNode(t, "a", math.Vec3{}, 0)
	c.Add(n)
	if c.Len() != 1 || !c.Contains(n) {
		t.Fatal("node not added")
	}
	c.Remove(n)
	if c.Len() != 0 {
		t.Error("node not removed")
	}
	if !n.Disposed() || n.Mesh != nil {
		t.Error("removed node should be disposed")
	}
}

func TestCollectionShift(t *testing.T) {
	c := NewCollection()
	a := flatNode(t, "a", math.Vec3{X: 100}, 0)
	b := flatNode(t, "b", math.Vec3{Z: -50}, 0)
	c.Add(a)
	c.Add(b)

	c.Shift(math.Vec3{X: -100, Z: 10})
	if a.Position != (math.Vec3{X: 0, Z: 10}) {
		t.Errorf("a at %v", a.Position)
	}
	if b.Position != (math.Vec3{X: -100, Z: -40}) {
		t.Errorf("b at %v", b.Position)
	}
	if c.Shifts() != 1 {
		t.Errorf("expected 1 shift, got %d", c.Shifts())
	}
}

func TestCollectionMarkDirty(t *testing.T) {
	c := NewCollection()
	n := flatNode(t, "a", math.Vec3{}, 0)
	c.Add(n)
	c.MarkDirty(n)
	c.MarkDirty(n)
	if n.Version() != 2 {
		t.Errorf("expected version 2, got %d", n.Version())
	}
}

func TestPickTerrainSurface(t *testing.T) {
	c := NewCollection()
	c.Add(flatNode(t, "near", math.Vec3{}, 0.5))          // surface at y=5
	c.Add(flatNode(t, "far", math.Vec3{X: 200}, 0.5))     // not under the ray
	hidden := flatNode(t, "hidden", math.Vec3{Y: -50}, 0) // below "near"
	c.Add(hidden)

	ray := picking.NewRay(math.Vec3{X: 50, Y: 100, Z: 50}, math.Vec3{Y: -1})
	hit, ok := c.Pick(ray)
	if !ok {
		t.Fatal("expected a hit")
	}
	if hit.Node.Name != "near" {
		t.Errorf("hit %q, want near", hit.Node.Name)
	}
	if hit.Point.Y < 4.9 || hit.Point.Y > 5.1 {
		t.Errorf("hit at y=%v, want 5", hit.Point.Y)
	}
}

func TestPickSkipsUnpickable(t *testing.T) {
	c := NewCollection()
	n := flatNode(t, "a", math.Vec3{}, 0)
	n.Flags.Pickable = false
	c.Add(n)
	if _, ok := c.Pick(picking.NewRay(math.Vec3{X: 10, Y: 10, Z: 10}, math.Vec3{Y: -1})); ok {
		t.Error("unpickable node was hit")
	}
}

func TestPickChildProp(t *testing.T) {
	c := NewCollection()
	parent := flatNode(t, "chunk", math.Vec3{X: 1000}, 0)
	parent.Flags.Pickable = false
	prop := &Node{Name: "rock", Kind: KindProp, Position: math.Vec3{X: 10, Y: 1, Z: 10},
		Extent: [3]float32{1, 1, 1}, Flags: PropFlags}
	parent.AddChild(prop)
	c.Add(parent)

	hit, ok := c.Pick(picking.NewRay(math.Vec3{X: 1010, Y: 20, Z: 10}, math.Vec3{Y: -1}))
	if !ok || hit.Node != prop {
		t.Fatalf("expected prop hit, got %+v %v", hit, ok)
	}
	if hit.Distance != 18 {
		t.Errorf("distance = %v, want 18", hit.Distance)
	}

	if !parent.RemoveChild(prop) || !prop.Disposed() {
		t.Error("RemoveChild should detach and dispose")
	}
}
