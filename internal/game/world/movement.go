// Package world provides player movement over the streamed terrain.
package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/internal/world/coords"
)

// GroundFunc returns the terrain height under a global position, if known.
type GroundFunc func(coords.Global) (float32, bool)

// Walker moves the player along a heading, bouncing off the world edges
// and following the ground where it is resident. With a route set it walks
// the waypoints instead and halts at the last one.
type Walker struct {
	Position coords.Global
	Heading  float64 // Radians, 0 along +X, pi/2 along +Z
	Speed    float64 // World units per second
	Eye      float64 // Height above ground

	width, height float64
	route         []coords.Global
	routed        bool
}

// NewWalker creates a walker inside grid.
func NewWalker(grid chunk.Grid, start coords.Global, heading, speed float64) *Walker {
	w, h := grid.Extent()
	wk := &Walker{Heading: heading, Speed: speed, Eye: 1.8, width: w, height: h}
	wk.Teleport(start)
	return wk
}

// Direction returns the horizontal unit heading vector.
func (w *Walker) Direction() coords.Global {
	return coords.Global{math.Cos(w.Heading), 0, math.Sin(w.Heading)}
}

// Teleport places the walker, clamped to the world.
func (w *Walker) Teleport(g coords.Global) {
	w.Position = coords.Global{
		mgl64.Clamp(g.X(), 0, w.width),
		g.Y(),
		mgl64.Clamp(g.Z(), 0, w.height),
	}
}

// SetRoute makes the walker follow points in order. An empty route returns
// it to free walking.
func (w *Walker) SetRoute(points []coords.Global) {
	w.route = append([]coords.Global(nil), points...)
	w.routed = len(points) > 0
}

// Route returns the waypoints still ahead.
func (w *Walker) Route() []coords.Global { return w.route }

// Arrived reports whether a route was set and has been walked.
func (w *Walker) Arrived() bool { return w.routed && len(w.route) == 0 }

// Update advances the walker by dt seconds and returns the new position.
func (w *Walker) Update(dt float64, ground GroundFunc) coords.Global {
	if dt <= 0 || w.Speed == 0 || w.Arrived() {
		return w.Position
	}
	if w.routed {
		w.follow(w.Speed * dt)
	} else {
		w.wander(w.Speed * dt)
	}

	if ground != nil {
		if h, ok := ground(w.Position); ok {
			w.Position[1] = float64(h) + w.Eye
		}
	}
	return w.Position
}

// follow spends step units walking towards the pending waypoints.
func (w *Walker) follow(step float64) {
	for step > 0 && len(w.route) > 0 {
		target := w.route[0]
		dx, dz := target.X()-w.Position.X(), target.Z()-w.Position.Z()
		dist := math.Hypot(dx, dz)
		if dist > 0 {
			w.Heading = math.Atan2(dz, dx)
		}
		if dist <= step {
			w.Teleport(coords.Global{target.X(), w.Position.Y(), target.Z()})
			w.route = w.route[1:]
			step -= dist
			continue
		}
		w.Teleport(w.Position.Add(w.Direction().Mul(step)))
		return
	}
}

// wander walks step units along the heading, bouncing at the edges.
func (w *Walker) wander(step float64) {
	next := w.Position.Add(w.Direction().Mul(step))

	dx, dz := math.Cos(w.Heading), math.Sin(w.Heading)
	if next.X() < 0 || next.X() > w.width {
		dx = -dx
	}
	if next.Z() < 0 || next.Z() > w.height {
		dz = -dz
	}
	w.Heading = math.Atan2(dz, dx)
	w.Teleport(next)
}

// Ahead returns the point distance units in front of the walker at ground
// level of the current position.
func (w *Walker) Ahead(distance float64) coords.Global {
	p := w.Position.Add(w.Direction().Mul(distance))
	return coords.Global{
		mgl64.Clamp(p.X(), 0, w.width),
		p.Y() - w.Eye,
		mgl64.Clamp(p.Z(), 0, w.height),
	}
}
