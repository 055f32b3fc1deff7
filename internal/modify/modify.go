// Package modify applies terrain height edits to resident chunks. Edits
// are gathered per chunk, flushed to the mesh after a short debounce and
// persisted in the background.
package modify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/config"
	"github.com/Faultbox/terrastream/internal/engine/scene"
	"github.com/Faultbox/terrastream/internal/engine/terrain"
	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/internal/storage"
	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/internal/world/coords"
)

// Modification errors.
var (
	ErrNotResident   = errors.New("chunk not resident")
	ErrInvalidRadius = errors.New("invalid edit radius")
)

// persistTimeout bounds one background write.
const persistTimeout = 5 * time.Second

// Residents gives access to the resident chunk records.
// *streaming.Manager satisfies it.
type Residents interface {
	Resident(key chunk.Key) (*chunk.Record, bool)
	Records() []*chunk.Record
}

// Config holds modification settings.
type Config struct {
	FlushDelay       time.Duration
	MinEditMagnitude float32
	MaxRadius        float64 // 0 means unbounded
}

// ConfigFrom converts the modify section of the client config.
func ConfigFrom(c config.ModifyConfig) Config {
	return Config{
		FlushDelay:       c.FlushDelay,
		MinEditMagnitude: c.MinEditMagnitude,
		MaxRadius:        c.MaxRadius,
	}
}

// Deps are the manager's collaborators. Store, Logger and Clock are optional.
type Deps struct {
	Mapper *coords.Mapper
	Graph  scene.Graph
	Chunks Residents
	Store  storage.Store
	Logger *zap.Logger
	Clock  func() time.Time
}

// Stats are lifetime counters.
type Stats struct {
	Edits         uint64 // Vertex contributions recorded
	Flushes       uint64
	Rescheduled   uint64 // Flushes pushed back because a write was in flight
	Persisted     uint64
	PersistErrors uint64
	Pending       int // Background writes still running
}

type persistDone struct {
	key chunk.Key
	err error
}

// Manager owns pending edits. Like the lifecycle manager it is driven from
// the loop goroutine; only persistence runs elsewhere.
type Manager struct {
	cfg    Config
	mapper *coords.Mapper
	graph  scene.Graph
	chunks Residents
	store  storage.Store
	log    *zap.Logger
	now    func() time.Time

	done    chan persistDone
	pending int
	stats   Stats
}

// New creates a modification manager.
func New(cfg Config, d Deps) *Manager {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &Manager{
		cfg:    cfg,
		mapper: d.Mapper,
		graph:  d.Graph,
		chunks: d.Chunks,
		store:  d.Store,
		log:    logger.OrNop(d.Logger),
		now:    d.Clock,
		done:   make(chan persistDone, 64),
	}
}

// ModifyAtPoint raises (or lowers, for negative delta) the terrain around
// the global point (worldX, worldZ) with a quadratic falloff over radius.
// The chunk at key and its resident neighbours all receive the edit, so
// shared edge vertices move together. Contributions below the minimum
// magnitude are dropped; a zero delta changes nothing.
func (m *Manager) ModifyAtPoint(key chunk.Key, worldX, worldZ, radius float64, delta float32) error {
	rec, ok := m.chunks.Resident(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotResident, key)
	}
	if radius <= 0 || math.IsNaN(radius) || (m.cfg.MaxRadius > 0 && radius > m.cfg.MaxRadius) {
		return fmt.Errorf("%w: %v", ErrInvalidRadius, radius)
	}
	if delta == 0 {
		return nil
	}

	touched := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			target := rec
			if dx != 0 || dy != 0 {
				target, ok = m.chunks.Resident(rec.Coord.Add(dx, dy).Key())
				if !ok {
					continue
				}
			}
			if m.applyTo(target, worldX, worldZ, radius, delta) > 0 {
				touched++
			}
		}
	}
	if touched > 0 {
		m.log.Debug("terrain edit",
			zap.String("chunk", string(key)),
			zap.Float64("x", worldX), zap.Float64("z", worldZ),
			zap.Float64("radius", radius), zap.Float32("delta", delta),
			zap.Int("chunks", touched))
	}
	return nil
}

// applyTo records the falloff contributions on one chunk and returns how
// many vertices were touched. Distances are measured in global space.
func (m *Manager) applyTo(rec *chunk.Record, worldX, worldZ, radius float64, delta float32) int {
	if rec.Node == nil || rec.Node.Mesh == nil || rec.Node.Mesh.Resolution < 2 {
		return 0
	}
	mesh := rec.Node.Mesh
	res := mesh.Resolution
	origin := m.mapper.ChunkOrigin(rec.Coord)
	spacing := m.mapper.Grid().ChunkSize / float64(res-1)

	lx, lz := worldX-origin.X(), worldZ-origin.Z()
	x0 := max(0, int(math.Floor((lx-radius)/spacing)))
	x1 := min(res-1, int(math.Ceil((lx+radius)/spacing)))
	z0 := max(0, int(math.Floor((lz-radius)/spacing)))
	z1 := min(res-1, int(math.Ceil((lz+radius)/spacing)))

	n := 0
	for z := z0; z <= z1; z++ {
		for x := x0; x <= x1; x++ {
			d := math.Hypot(float64(x)*spacing-lx, float64(z)*spacing-lz)
			if d >= radius {
				continue
			}
			f := 1 - d/radius
			contrib := delta * float32(f*f)
			if float32(math.Abs(float64(contrib))) < m.cfg.MinEditMagnitude {
				continue
			}
			rec.AddEdit(z*res+x, contrib)
			n++
		}
	}
	if n > 0 {
		m.stats.Edits += uint64(n)
		if rec.FlushDue.IsZero() {
			rec.FlushDue = m.now().Add(m.cfg.FlushDelay)
		}
	}
	return n
}

// Tick collects finished writes and flushes every chunk whose debounce has
// expired. It returns the number of chunks flushed.
func (m *Manager) Tick(now time.Time) int {
	m.collect()

	flushed := 0
	for _, rec := range m.chunks.Records() {
		if !rec.HasPendingEdits() || rec.FlushDue.IsZero() || now.Before(rec.FlushDue) {
			continue
		}
		if rec.Flushing {
			rec.FlushDue = now.Add(m.cfg.FlushDelay)
			m.stats.Rescheduled++
			continue
		}
		if m.flush(rec) {
			flushed++
		}
	}
	return flushed
}

// flush applies a chunk's pending edits to its mesh and starts persisting
// them.
func (m *Manager) flush(rec *chunk.Record) bool {
	if rec.Node == nil || rec.Node.Mesh == nil {
		return false
	}
	mesh := rec.Node.Mesh
	edits := rec.TakeEdits()
	for idx, d := range edits {
		if idx >= 0 && idx < len(mesh.Vertices) {
			mesh.Vertices[idx].Position[1] += d
		}
	}
	terrain.ComputeNormals(mesh)
	terrain.RecomputeBounds(mesh)
	m.graph.MarkDirty(rec.Node)
	rec.EditSeq++
	m.stats.Flushes++

	if m.store == nil {
		return true
	}
	rec.Flushing = true
	m.pending++
	key, res := rec.Key, mesh.Resolution
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		m.done <- persistDone{key: key, err: m.persist(ctx, key, res, edits)}
	}()
	return true
}

func (m *Manager) persist(ctx context.Context, key chunk.Key, resolution int, edits map[int]float32) error {
	return storage.Update(ctx, m.store, string(key), func(st *storage.ChunkState) error {
		st.AddOverrides(resolution, edits)
		return nil
	})
}

// collect handles finished background writes without blocking.
func (m *Manager) collect() {
	for {
		select {
		case d := <-m.done:
			m.finish(d)
		default:
			return
		}
	}
}

func (m *Manager) finish(d persistDone) {
	m.pending--
	if rec, ok := m.chunks.Resident(d.key); ok {
		rec.Flushing = false
	}
	if d.err != nil {
		m.stats.PersistErrors++
		m.log.Error("persisting terrain edits failed", zap.String("chunk", string(d.key)), zap.Error(d.err))
		return
	}
	m.stats.Persisted++
}

// FlushRecord persists a chunk's pending edits synchronously. It is meant
// as the lifecycle manager's unload hook: the geometry is about to go, so
// only storage is updated.
func (m *Manager) FlushRecord(rec *chunk.Record) {
	if !rec.HasPendingEdits() {
		return
	}
	edits := rec.TakeEdits()
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.persist(ctx, rec.Key, rec.Resolution(), edits); err != nil {
		m.stats.PersistErrors++
		m.log.Error("persisting edits on unload failed", zap.String("chunk", string(rec.Key)), zap.Error(err))
		return
	}
	m.stats.Persisted++
}

// HeightAt returns the rendered terrain height under a global position.
func (m *Manager) HeightAt(g coords.Global) (float32, bool) {
	c, ok := m.mapper.ChunkOf(g)
	if !ok {
		return 0, false
	}
	rec, ok := m.chunks.Resident(c.Key())
	if !ok || rec.Node == nil || rec.Node.Mesh == nil {
		return 0, false
	}
	origin := m.mapper.ChunkOrigin(c)
	return rec.Node.Mesh.HeightAt(float32(g.X()-origin.X()), float32(g.Z()-origin.Z()))
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	s := m.stats
	s.Pending = m.pending
	return s
}

// Close waits for background writes to finish.
func (m *Manager) Close() {
	for m.pending > 0 {
		m.finish(<-m.done)
	}
}
