package scene

import (
	"github.com/Faultbox/terrastream/internal/engine/picking"
	"github.com/Faultbox/terrastream/pkg/math"
)

// surfaceSteps is the number of march steps used to refine a terrain hit
// inside its bounding box.
const surfaceSteps = 64

// Hit describes a pick result.
type Hit struct {
	Node     *Node
	Distance float32
	Point    math.Vec3
}

// Pick returns the closest pickable node hit by the ray. Terrain nodes are
// refined against their height field; other nodes use their bounds.
// Children are tested relative to their parent.
func (c *Collection) Pick(ray picking.Ray) (Hit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best Hit
	found := false
	consider := func(n *Node, origin math.Vec3) {
		if !n.Flags.Pickable || n.disposed {
			return
		}
		t, ok := pickNode(ray, n, origin)
		if ok && (!found || t < best.Distance) {
			best = Hit{Node: n, Distance: t, Point: ray.At(t)}
			found = true
		}
	}
	for n := range c.nodes {
		consider(n, n.Position)
		for _, child := range n.Children {
			consider(child, n.Position.Add(child.Position))
		}
	}
	return best, found
}

func pickNode(ray picking.Ray, n *Node, origin math.Vec3) (float32, bool) {
	shifted := *n
	shifted.Position = origin
	box, ok := shifted.Bounds()
	if !ok {
		return 0, false
	}
	enter, exit, ok := ray.Span(box)
	if !ok {
		return 0, false
	}
	enter = max(enter, 0)
	if n.Mesh == nil || n.Kind == KindProp {
		return enter, true
	}
	return marchSurface(ray, n, origin, enter, exit)
}

// marchSurface walks the ray through [enter, exit] and bisects the first
// step that crosses below the surface.
func marchSurface(ray picking.Ray, n *Node, origin math.Vec3, enter, exit float32) (float32, bool) {
	above := func(t float32) (bool, bool) {
		p := ray.At(t).Sub(origin)
		h, ok := n.Mesh.HeightAt(p.X, p.Z)
		if !ok {
			return true, false
		}
		return p.Y > h, true
	}

	step := (exit - enter) / surfaceSteps
	if step <= 0 {
		return enter, true
	}
	prev := enter
	if a, ok := above(prev); ok && !a {
		return prev, true
	}
	for i := 1; i <= surfaceSteps; i++ {
		t := enter + step*float32(i)
		a, ok := above(t)
		if !ok || a {
			prev = t
			continue
		}
		lo, hi := prev, t
		for range 16 {
			mid := (lo + hi) / 2
			if a, ok := above(mid); ok && !a {
				hi = mid
			} else {
				lo = mid
			}
		}
		return hi, true
	}
	return 0, false
}
