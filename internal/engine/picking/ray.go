// Package picking provides ray casting against render-space bounds.
package picking

import (
	gomath "math"

	"github.com/Faultbox/terrastream/pkg/math"
)

// Ray represents a ray in render space with origin and direction.
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3 // Normalized direction
}

// AABB represents an axis-aligned bounding box.
type AABB struct {
	Min [3]float32
	Max [3]float32
}

// NewRay creates a ray, normalizing the direction.
func NewRay(origin, direction math.Vec3) Ray {
	return Ray{Origin: origin, Direction: direction.Normalize()}
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) math.Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// IntersectPlaneY intersects a ray with a horizontal plane at the given Y level.
// Returns the intersection point (X, Z) and whether the intersection is valid.
func (r Ray) IntersectPlaneY(planeY float32) (x, z float32, ok bool) {
	if gomath.Abs(float64(r.Direction.Y)) < 0.001 {
		return 0, 0, false // Ray parallel to plane
	}

	t := (planeY - r.Origin.Y) / r.Direction.Y
	if t < 0 {
		return 0, 0, false // Intersection behind ray origin
	}

	p := r.At(t)
	return p.X, p.Z, true
}

// IntersectAABB tests ray intersection with an axis-aligned bounding box
// using the slab method. Returns the entry distance, or the exit distance
// when the ray starts inside the box.
func (r Ray) IntersectAABB(box AABB) (t float32, hit bool) {
	enter, exit, ok := r.Span(box)
	if !ok {
		return 0, false
	}
	if enter < 0 {
		return exit, true
	}
	return enter, true
}

// Span returns the parametric interval [enter, exit] the ray spends inside
// the box. enter may be negative when the origin is inside.
func (r Ray) Span(box AABB) (enter, exit float32, ok bool) {
	origin := r.Origin.Array()
	dir := r.Direction.Array()
	enter = float32(-gomath.MaxFloat32)
	exit = float32(gomath.MaxFloat32)

	for axis := range 3 {
		if dir[axis] == 0 {
			if origin[axis] < box.Min[axis] || origin[axis] > box.Max[axis] {
				return 0, 0, false
			}
			continue
		}
		t1 := (box.Min[axis] - origin[axis]) / dir[axis]
		t2 := (box.Max[axis] - origin[axis]) / dir[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		enter = max(enter, t1)
		exit = min(exit, t2)
	}

	if exit < enter || exit < 0 {
		return 0, 0, false
	}
	return enter, exit, true
}

// NewAABB creates an AABB from two corners in any order.
func NewAABB(a, b [3]float32) AABB {
	var box AABB
	for i := range 3 {
		box.Min[i] = min(a[i], b[i])
		box.Max[i] = max(a[i], b[i])
	}
	return box
}

// Translate returns the box moved by offset.
func (b AABB) Translate(offset math.Vec3) AABB {
	o := offset.Array()
	for i := range 3 {
		b.Min[i] += o[i]
		b.Max[i] += o[i]
	}
	return b
}

// Contains reports whether p lies inside the box.
func (b AABB) Contains(p math.Vec3) bool {
	a := p.Array()
	for i := range 3 {
		if a[i] < b.Min[i] || a[i] > b.Max[i] {
			return false
		}
	}
	return true
}
