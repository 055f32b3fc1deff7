// Package coords converts between float64 global world positions and
// float32 render positions relative to a movable world offset.
package coords

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/config"
	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/internal/world/chunk"
	gmath "github.com/Faultbox/terrastream/pkg/math"
)

// Global is a position in world units: X east, Y height, Z along grid rows.
type Global = mgl64.Vec3

// Render is a position relative to the current world offset.
type Render = gmath.Vec3

// Config holds mapper settings.
type Config struct {
	Grid               chunk.Grid
	RecenterThreshold  float64 // Horizontal drift before Track moves the offset
	MaxRenderMagnitude float64 // Per-axis clamp on render coordinates
}

// ConfigFrom builds a mapper config from the world section.
func ConfigFrom(w config.WorldConfig) Config {
	return Config{
		Grid: chunk.Grid{
			Width:     w.WidthPatches,
			Height:    w.HeightPatches,
			ChunkSize: w.ChunkSize,
		},
		RecenterThreshold:  w.RecenterThreshold,
		MaxRenderMagnitude: w.MaxRenderMagnitude,
	}
}

// Mapper owns the world offset. Render = global - offset.
//
// Safe for concurrent use: build workers read the offset while the loop
// goroutine may re-center it. Results computed against an older offset must
// be re-anchored by their consumer.
type Mapper struct {
	mu     deadlock.RWMutex
	offset Global
	cfg    Config
	log    *zap.Logger
}

// NewMapper creates a mapper with the offset at the world origin.
func NewMapper(cfg Config, log *zap.Logger) *Mapper {
	if cfg.MaxRenderMagnitude <= 0 {
		cfg.MaxRenderMagnitude = 10000
	}
	return &Mapper{cfg: cfg, log: logger.OrNop(log)}
}

// Grid returns the chunk grid.
func (m *Mapper) Grid() chunk.Grid {
	return m.cfg.Grid
}

// Offset returns the current world offset.
func (m *Mapper) Offset() Global {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offset
}

// SetOffset moves the world offset to anchor and returns the delta
// (new - old). Renderables already placed must be shifted by -delta.
func (m *Mapper) SetOffset(anchor Global) Global {
	if !finite64(anchor) {
		m.log.Warn("ignoring non-finite offset", zap.Float64s("anchor", anchor[:]))
		return Global{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := anchor.Sub(m.offset)
	m.offset = anchor
	if delta != (Global{}) {
		m.log.Debug("world offset moved",
			zap.Float64("x", anchor.X()), zap.Float64("z", anchor.Z()),
			zap.Float64("dx", delta.X()), zap.Float64("dz", delta.Z()))
	}
	return delta
}

// Track re-centers the offset on the player once their horizontal distance
// from it exceeds the threshold. Height is not re-centered.
func (m *Mapper) Track(player Global) (delta Global, recentered bool) {
	if m.cfg.RecenterThreshold <= 0 || !finite64(player) {
		return Global{}, false
	}
	off := m.Offset()
	dx := player.X() - off.X()
	dz := player.Z() - off.Z()
	if math.Hypot(dx, dz) <= m.cfg.RecenterThreshold {
		return Global{}, false
	}
	return m.SetOffset(Global{player.X(), off.Y(), player.Z()}), true
}

// ToRender converts a global position to render space. Non-finite input is
// logged and maps to the render origin. Each axis is clamped to the maximum
// render magnitude.
func (m *Mapper) ToRender(g Global) Render {
	if !finite64(g) {
		m.log.Warn("non-finite global position", zap.Float64s("pos", g[:]))
		return Render{}
	}
	limit := m.cfg.MaxRenderMagnitude
	r := g.Sub(m.Offset())
	return Render{
		X: float32(clamp64(r.X(), limit)),
		Y: float32(clamp64(r.Y(), limit)),
		Z: float32(clamp64(r.Z(), limit)),
	}
}

// ToGlobal converts a render position back to global space. Non-finite input
// is logged and maps to the current offset.
func (m *Mapper) ToGlobal(r Render) Global {
	off := m.Offset()
	if !r.IsFinite() {
		m.log.Warn("non-finite render position",
			zap.Float32("x", r.X), zap.Float32("y", r.Y), zap.Float32("z", r.Z))
		return off
	}
	c := r.ClampAbs(float32(m.cfg.MaxRenderMagnitude))
	return off.Add(Global{float64(c.X), float64(c.Y), float64(c.Z)})
}

// ClampGlobal clamps a position to the world's horizontal extent.
func (m *Mapper) ClampGlobal(g Global) Global {
	w, h := m.cfg.Grid.Extent()
	return Global{
		mgl64.Clamp(g.X(), 0, w),
		g.Y(),
		mgl64.Clamp(g.Z(), 0, h),
	}
}

// ChunkOf returns the chunk containing g and whether it lies inside the grid.
func (m *Mapper) ChunkOf(g Global) (chunk.Coord, bool) {
	c := m.cfg.Grid.CoordAt(g.X(), g.Z())
	return c, finite64(g) && m.cfg.Grid.Contains(c)
}

// ChunkOrigin returns the global position of a chunk's minimum corner.
func (m *Mapper) ChunkOrigin(c chunk.Coord) Global {
	x, z := m.cfg.Grid.Origin(c)
	return Global{x, 0, z}
}

// ChunkRenderOrigin returns the render position of a chunk's minimum corner.
func (m *Mapper) ChunkRenderOrigin(c chunk.Coord) Render {
	return m.ToRender(m.ChunkOrigin(c))
}

func finite64(v Global) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func clamp64(v, limit float64) float64 {
	return mgl64.Clamp(v, -limit, limit)
}
