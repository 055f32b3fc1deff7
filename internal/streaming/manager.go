// Package streaming keeps the chunks around the player resident: it decides
// what to load and unload, runs builds on a bounded pool and integrates the
// results on the caller's loop goroutine.
package streaming

import (
	"context"
	"errors"
	"fmt"
	stdmath "math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Faultbox/terrastream/internal/config"
	"github.com/Faultbox/terrastream/internal/engine/scene"
	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/internal/network/packets"
	"github.com/Faultbox/terrastream/internal/pipeline"
	"github.com/Faultbox/terrastream/internal/resources"
	"github.com/Faultbox/terrastream/internal/storage"
	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/internal/world/coords"
	"github.com/Faultbox/terrastream/pkg/math"
)

// Manager errors.
var (
	ErrCriticalFailure = errors.New("critical chunk failure")
	ErrNotResident     = errors.New("chunk not resident")
	ErrClosed          = errors.New("manager closed")
)

// Builder produces chunk geometry. *pipeline.Pipeline satisfies it.
type Builder interface {
	Build(ctx context.Context, c chunk.Coord, lod, resolution int) (*pipeline.Result, error)
	BuildFromHeightmap(ctx context.Context, c chunk.Coord, lod, resolution int, raw []byte) (*pipeline.Result, error)
	BuildPlaceholder(c chunk.Coord, height float32) *pipeline.Result
}

// Config holds lifecycle settings.
type Config struct {
	RenderDistance      int
	UnloadDistance      int
	MaxConcurrentBuilds int
	MaxResidentChunks   int // 0 disables emergency eviction
	UpdateInterval      time.Duration
	LODResolutions      []int
	LODRingWidth        int
	BuildTimeout        time.Duration
}

// ConfigFrom converts the streaming section of the client config.
func ConfigFrom(s config.StreamingConfig) Config {
	return Config{
		RenderDistance:      s.RenderDistance,
		UnloadDistance:      s.UnloadDistance,
		MaxConcurrentBuilds: s.MaxConcurrentBuilds,
		MaxResidentChunks:   s.MaxResidentChunks,
		UpdateInterval:      s.UpdateInterval,
		LODResolutions:      append([]int(nil), s.LODResolutions...),
		LODRingWidth:        s.LODRingWidth,
		BuildTimeout:        s.BuildTimeout,
	}
}

// Deps are the manager's collaborators. Resources, Logger and Clock are
// optional.
type Deps struct {
	Mapper    *coords.Mapper
	Graph     scene.Graph
	Builder   Builder
	Resources *resources.Framework
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Stats are lifetime counters.
type Stats struct {
	Resident  int
	InFlight  int
	Requested uint64
	Loaded    uint64
	Upgraded  uint64
	Unloaded  uint64
	Evicted   uint64
	Disposed  uint64 // Stale results thrown away on arrival
	Failed    uint64
	Deferred  uint64 // Requests pushed to a later pass by the concurrency cap
	Remote    uint64
	Recenters uint64
	Passes    uint64
}

// Manager owns the resident chunk map. All methods except Close must be
// called from a single goroutine.
type Manager struct {
	cfg       Config
	mapper    *coords.Mapper
	graph     scene.Graph
	builder   Builder
	resources *resources.Framework
	log       *zap.Logger
	now       func() time.Time

	sched   *scheduler
	limiter *rate.Limiter
	offsets []chunk.Coord

	records    map[chunk.Key]*chunk.Record
	nodes      map[chunk.Key][]*resources.Node // Live resource nodes of loaded records
	inFlight   int
	generation uint64
	player     chunk.Coord
	hasPlayer  bool
	locked     bool
	closed     bool
	onUnload   func(*chunk.Record)

	stats Stats
}

// New creates a manager and starts its worker pool.
func New(cfg Config, d Deps) *Manager {
	if cfg.MaxConcurrentBuilds < 1 {
		cfg.MaxConcurrentBuilds = 1
	}
	if cfg.UnloadDistance <= cfg.RenderDistance {
		cfg.UnloadDistance = cfg.RenderDistance + 1
	}
	if len(cfg.LODResolutions) == 0 {
		cfg.LODResolutions = []int{65}
	}
	if cfg.LODRingWidth < 1 {
		cfg.LODRingWidth = 1
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	m := &Manager{
		cfg:       cfg,
		mapper:    d.Mapper,
		graph:     d.Graph,
		builder:   d.Builder,
		resources: d.Resources,
		log:       logger.OrNop(d.Logger),
		now:       d.Clock,
		sched:     newScheduler(cfg.MaxConcurrentBuilds, cfg.MaxConcurrentBuilds, cfg.BuildTimeout),
		offsets:   ringOffsets(cfg.RenderDistance),
		records:   make(map[chunk.Key]*chunk.Record),
		nodes:     make(map[chunk.Key][]*resources.Node),
	}
	m.limiter = m.newLimiter()
	return m
}

func (m *Manager) newLimiter() *rate.Limiter {
	if m.cfg.UpdateInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(m.cfg.UpdateInterval), 1)
}

// SetUnloadHook registers a function called for every loaded record just
// before it leaves the resident map. The terrain modifier uses it to flush
// pending edits.
func (m *Manager) SetUnloadHook(fn func(*chunk.Record)) {
	m.onUnload = fn
}

// ringOffsets returns every offset within radius, ordered by Chebyshev
// ring, then Euclidean distance, then row-major. The first entry is the
// origin.
func ringOffsets(radius int) []chunk.Coord {
	if radius < 0 {
		radius = 0
	}
	var out []chunk.Coord
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			out = append(out, chunk.Coord{X: dx, Y: dy})
		}
	}
	var origin chunk.Coord
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Chebyshev(origin), out[j].Chebyshev(origin)
		if ri != rj {
			return ri < rj
		}
		ei := out[i].X*out[i].X + out[i].Y*out[i].Y
		ej := out[j].X*out[j].X + out[j].Y*out[j].Y
		return ei < ej
	})
	return out
}

// LODForDistance maps a Chebyshev distance to a LOD level. The player chunk
// and its direct neighbours get full detail; each further LODRingWidth
// rings step one level coarser.
func (m *Manager) LODForDistance(d int) int {
	if d <= 1 {
		return 0
	}
	lod := (d - 1 + m.cfg.LODRingWidth - 1) / m.cfg.LODRingWidth
	return min(lod, len(m.cfg.LODResolutions)-1)
}

func (m *Manager) resolutionFor(lod int) int {
	return m.cfg.LODResolutions[max(0, min(lod, len(m.cfg.LODResolutions)-1))]
}

// playerChunk returns the chunk under g, clamped into the grid.
func (m *Manager) playerChunk(g coords.Global) chunk.Coord {
	if c, ok := m.mapper.ChunkOf(g); ok {
		return c
	}
	grid := m.mapper.Grid()
	if stdmath.IsNaN(g.X()) || stdmath.IsNaN(g.Z()) {
		return m.player
	}
	g = m.mapper.ClampGlobal(g)
	c := grid.CoordAt(g.X(), g.Z())
	c.X = max(0, min(c.X, grid.Width-1))
	c.Y = max(0, min(c.Y, grid.Height-1))
	return c
}

// UpdateChunks runs one lifecycle pass for the player's global position.
// It does nothing while locked for a teleport or when called again before
// UpdateInterval has elapsed.
func (m *Manager) UpdateChunks(player coords.Global) {
	if m.locked || m.closed {
		return
	}
	if !m.limiter.AllowN(m.now(), 1) {
		return
	}
	m.stats.Passes++

	m.ProcessCompleted()

	if delta, moved := m.mapper.Track(player); moved {
		m.graph.Shift(math.Vec3{X: float32(-delta.X()), Y: float32(-delta.Y()), Z: float32(-delta.Z())})
		m.stats.Recenters++
		m.log.Debug("world re-centered", zap.Float64("dx", delta.X()), zap.Float64("dz", delta.Z()))
	}

	pc := m.playerChunk(player)
	if !m.hasPlayer || pc != m.player {
		m.log.Debug("player chunk changed", zap.Stringer("chunk", pc))
	}
	m.player, m.hasPlayer = pc, true

	m.unloadFar()
	m.requestNear()
	m.evictOverflow()
}

func (m *Manager) unloadFar() {
	for _, rec := range m.sortedRecords() {
		rec.Distance = rec.Coord.Chebyshev(m.player)
		if rec.Distance > m.cfg.UnloadDistance {
			m.removeRecord(rec)
			m.stats.Unloaded++
		}
	}
}

func (m *Manager) requestNear() {
	grid := m.mapper.Grid()
	for _, off := range m.offsets {
		c := m.player.Add(off.X, off.Y)
		if !grid.Contains(c) {
			continue
		}
		d := c.Chebyshev(m.player)
		lod := m.LODForDistance(d)

		rec, ok := m.records[c.Key()]
		if ok {
			rec.Distance = d
			if rec.WantLOD >= 0 || rec.State == chunk.Loading {
				continue
			}
			if rec.State == chunk.Failed || lod < rec.LOD {
				// Rebuilds wait for the last edit batch to reach the store.
				if rec.Flushing || m.inFlight >= m.cfg.MaxConcurrentBuilds {
					m.stats.Deferred++
					continue
				}
				m.submit(rec, lod)
			}
			continue
		}

		if m.inFlight >= m.cfg.MaxConcurrentBuilds {
			m.stats.Deferred++
			continue
		}
		rec = chunk.NewRecord(c)
		rec.State = chunk.Loading
		rec.LOD = lod
		rec.Distance = d
		m.records[rec.Key] = rec
		m.submit(rec, lod)
	}
}

// submit starts a build for rec. Records that already hold geometry keep
// it until the new build arrives.
func (m *Manager) submit(rec *chunk.Record, lod int) {
	m.generation++
	rec.Generation = m.generation
	rec.WantLOD = lod
	c := completion{
		key:        rec.Key,
		coord:      rec.Coord,
		lod:        lod,
		generation: rec.Generation,
		editSeq:    rec.EditSeq,
	}
	res := m.resolutionFor(lod)
	builder := m.builder
	if !m.sched.submit(c, func(ctx context.Context) (*pipeline.Result, error) {
		return builder.Build(ctx, c.coord, c.lod, res)
	}) {
		rec.WantLOD = -1
		return
	}
	m.inFlight++
	m.stats.Requested++
}

// evictOverflow removes the farthest records while the resident count is
// above the ceiling. The player chunk is never evicted.
func (m *Manager) evictOverflow() {
	limit := m.cfg.MaxResidentChunks
	if limit <= 0 || len(m.records) <= limit {
		return
	}
	recs := m.sortedRecords()
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Coord.Chebyshev(m.player) > recs[j].Coord.Chebyshev(m.player)
	})
	for _, rec := range recs {
		if len(m.records) <= limit {
			break
		}
		if rec.Coord == m.player {
			continue
		}
		m.log.Warn("evicting chunk over resident limit",
			zap.String("chunk", string(rec.Key)), zap.Int("resident", len(m.records)), zap.Int("limit", limit))
		m.removeRecord(rec)
		m.stats.Evicted++
	}
}

// ProcessCompleted integrates every finished build without blocking and
// returns how many were handled.
func (m *Manager) ProcessCompleted() int {
	n := 0
	for {
		select {
		case c := <-m.sched.results:
			m.integrate(c)
			n++
		default:
			return n
		}
	}
}

func (m *Manager) integrate(c completion) {
	m.inFlight--
	rec, ok := m.records[c.key]
	if !ok || rec.Generation != c.generation {
		m.discard(c, "stale")
		return
	}
	rec.WantLOD = -1

	if c.err != nil {
		if rec.Node != nil {
			// Keep the geometry we have; the next pass retries.
			m.log.Warn("chunk rebuild failed", zap.String("chunk", string(c.key)), zap.Error(c.err))
			return
		}
		if !errors.Is(c.err, errBuildCancelled) {
			m.log.Warn("chunk build failed", zap.String("chunk", string(c.key)), zap.Error(c.err))
		}
		rec.State = chunk.Failed
		delete(m.records, rec.Key)
		m.stats.Failed++
		return
	}

	if m.hasPlayer && rec.Coord.Chebyshev(m.player) > m.cfg.UnloadDistance {
		m.discard(c, "out of range")
		m.removeRecord(rec)
		m.stats.Unloaded++
		return
	}
	if rec.Node != nil && rec.EditSeq != c.editSeq {
		// Edits were persisted after this build read the store.
		m.discard(c, "edited during build")
		return
	}

	upgrade := rec.Node != nil
	m.attach(rec, c.result)
	if upgrade {
		m.stats.Upgraded++
	} else {
		m.stats.Loaded++
	}
	m.log.Debug("chunk loaded",
		zap.String("chunk", string(rec.Key)),
		zap.Int("lod", rec.LOD),
		zap.String("source", rec.Source),
		zap.Duration("took", c.result.Took))
}

func (m *Manager) discard(c completion, reason string) {
	if c.result != nil {
		c.result.Dispose()
	}
	m.stats.Disposed++
	m.log.Debug("build discarded", zap.String("chunk", string(c.key)), zap.String("reason", reason))
}

// attach swaps res into rec, re-anchoring it to the current offset.
func (m *Manager) attach(rec *chunk.Record, res *pipeline.Result) {
	res.Node.Position = m.mapper.ChunkRenderOrigin(rec.Coord)

	old := rec.Node
	if old != nil && rec.HasPendingEdits() && old.Mesh != nil && res.Mesh != nil &&
		old.Mesh.Resolution != res.Mesh.Resolution {
		rec.PendingEdits = remapEdits(rec.PendingEdits, old.Mesh.Resolution, res.Mesh.Resolution)
	}

	resources.Carry(m.nodes[rec.Key], res.Resources)
	if len(res.Resources) > 0 {
		m.nodes[rec.Key] = res.Resources
	} else {
		delete(m.nodes, rec.Key)
	}

	rec.Node = res.Node
	rec.LOD = res.LOD
	rec.Source = string(res.Source)
	rec.State = chunk.Loaded
	m.graph.Add(res.Node)
	if old != nil {
		m.graph.Remove(old)
	}
}

// remapEdits moves pending edits onto the nearest vertex of another
// resolution.
func remapEdits(edits map[int]float32, from, to int) map[int]float32 {
	out := make(map[int]float32, len(edits))
	for idx, d := range edits {
		out[storage.RemapIndex(idx, from, to)] += d
	}
	return out
}

func (m *Manager) removeRecord(rec *chunk.Record) {
	if rec.State == chunk.Loaded && m.onUnload != nil {
		m.onUnload(rec)
	}
	if rec.Node != nil {
		m.graph.Remove(rec.Node)
		rec.Node = nil
	}
	delete(m.nodes, rec.Key)
	rec.State = chunk.Unloaded
	delete(m.records, rec.Key)
}

// LoadPriorityChunk builds the chunk at (cx, cy) synchronously at full
// detail, bypassing the queue. If the build fails a flat placeholder is
// attached instead and ErrCriticalFailure is returned; the record is
// rebuilt on a later pass.
func (m *Manager) LoadPriorityChunk(ctx context.Context, cx, cy int) (*chunk.Record, error) {
	if m.closed {
		return nil, ErrClosed
	}
	c := chunk.Coord{X: cx, Y: cy}
	if !m.mapper.Grid().Contains(c) {
		m.log.Debug("priority load outside grid", zap.Stringer("chunk", c))
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidCoordinate, c)
	}

	rec, ok := m.records[c.Key()]
	if !ok {
		rec = chunk.NewRecord(c)
		rec.State = chunk.Loading
		m.records[rec.Key] = rec
	}
	// Supersedes anything in flight for this key.
	m.generation++
	rec.Generation = m.generation
	rec.WantLOD = -1
	rec.Distance = 0
	if m.hasPlayer {
		rec.Distance = c.Chebyshev(m.player)
	}

	res, err := m.builder.Build(ctx, c, 0, m.resolutionFor(0))
	if err != nil {
		m.log.Error("priority chunk failed, using placeholder",
			zap.String("chunk", string(rec.Key)), zap.Error(err))
		ph := m.builder.BuildPlaceholder(c, float32(m.mapper.Offset().Y()))
		m.attach(rec, ph)
		rec.State = chunk.Failed
		m.stats.Failed++
		return rec, fmt.Errorf("%w: %v: %w", ErrCriticalFailure, c, err)
	}
	m.attach(rec, res)
	m.stats.Loaded++
	return rec, nil
}

// LockForTeleport suspends or resumes UpdateChunks.
func (m *Manager) LockForTeleport(locked bool) {
	m.locked = locked
}

// Locked reports whether updates are suspended.
func (m *Manager) Locked() bool { return m.locked }

// Teleport moves the player to target: queued builds are cancelled, every
// chunk is released, the offset jumps to target and the destination chunk
// is loaded synchronously.
func (m *Manager) Teleport(ctx context.Context, target coords.Global) (*chunk.Record, error) {
	if m.closed {
		return nil, ErrClosed
	}
	m.LockForTeleport(true)
	defer m.LockForTeleport(false)

	target = m.mapper.ClampGlobal(target)
	m.sched.cancelBatch()
	released := len(m.records)
	m.clear()

	delta := m.mapper.SetOffset(target)
	m.graph.Shift(math.Vec3{X: float32(-delta.X()), Y: float32(-delta.Y()), Z: float32(-delta.Z())})

	pc := m.playerChunk(target)
	m.player, m.hasPlayer = pc, true
	m.limiter = m.newLimiter()

	m.log.Info("teleport",
		zap.Float64("x", target.X()), zap.Float64("z", target.Z()),
		zap.Stringer("chunk", pc), zap.Int("released", released))
	return m.LoadPriorityChunk(ctx, pc.X, pc.Y)
}

// clear releases every record. Builds still in flight arrive stale.
func (m *Manager) clear() {
	for _, rec := range m.sortedRecords() {
		m.removeRecord(rec)
		m.stats.Unloaded++
	}
}

// HandleMessage applies a message from the chunk sync channel.
func (m *Manager) HandleMessage(ctx context.Context, msg packets.Message) error {
	switch v := msg.(type) {
	case packets.ChunkData:
		return m.ApplyRemoteChunk(ctx, v)
	case packets.ChunkUnload:
		m.UnloadChunk(chunk.Coord{X: v.X, Y: v.Y})
		return nil
	default:
		return fmt.Errorf("%w: %T", packets.ErrUnknownType, msg)
	}
}

// ApplyRemoteChunk builds a chunk from a pushed heightmap and makes it
// resident, superseding any build in flight for the same key.
func (m *Manager) ApplyRemoteChunk(ctx context.Context, msg packets.ChunkData) error {
	if m.closed {
		return ErrClosed
	}
	if err := msg.Verify(); err != nil {
		return err
	}
	c := chunk.Coord{X: msg.X, Y: msg.Y}
	lod := max(0, min(msg.LOD, len(m.cfg.LODResolutions)-1))
	res, err := m.builder.BuildFromHeightmap(ctx, c, lod, m.resolutionFor(lod), msg.Heightmap)
	if err != nil {
		m.log.Warn("remote chunk rejected", zap.Stringer("chunk", c), zap.Error(err))
		return err
	}

	rec, ok := m.records[c.Key()]
	if !ok {
		rec = chunk.NewRecord(c)
		m.records[rec.Key] = rec
	}
	m.generation++
	rec.Generation = m.generation
	rec.WantLOD = -1
	if m.hasPlayer {
		rec.Distance = c.Chebyshev(m.player)
	}
	m.attach(rec, res)
	m.stats.Remote++
	return nil
}

// UnloadChunk releases the chunk at c if it is resident.
func (m *Manager) UnloadChunk(c chunk.Coord) bool {
	rec, ok := m.records[c.Key()]
	if !ok {
		return false
	}
	m.removeRecord(rec)
	m.stats.Unloaded++
	return true
}

// Resident returns the loaded record for key.
func (m *Manager) Resident(key chunk.Key) (*chunk.Record, bool) {
	rec, ok := m.records[key]
	if !ok || rec.Node == nil {
		return nil, false
	}
	return rec, true
}

// Records returns every record, loading ones included, sorted by key.
func (m *Manager) Records() []*chunk.Record {
	return m.sortedRecords()
}

func (m *Manager) sortedRecords() []*chunk.Record {
	out := make([]*chunk.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Resources returns the live resource nodes of a resident chunk.
func (m *Manager) Resources(key chunk.Key) []*resources.Node {
	return m.nodes[key]
}

// Player returns the player chunk of the last pass.
func (m *Manager) Player() chunk.Coord { return m.player }

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	s := m.stats
	s.Resident = len(m.records)
	s.InFlight = m.inFlight
	return s
}

// InteractResource applies an interaction to a resource node of a resident
// chunk and returns the amount taken.
func (m *Manager) InteractResource(ctx context.Context, key chunk.Key, nodeID string, amount int) (int, error) {
	if m.resources == nil {
		return 0, fmt.Errorf("%w: no resource framework", resources.ErrNodeNotFound)
	}
	rec, ok := m.Resident(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotResident, key)
	}
	n, err := resources.Find(m.nodes[rec.Key], nodeID)
	if err != nil {
		return 0, err
	}
	return m.resources.Interact(ctx, string(key), n, amount)
}

// Close stops the worker pool, disposes results still in flight and
// releases every chunk.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.sched.close(func(c completion) {
		m.inFlight--
		if c.result != nil {
			c.result.Dispose()
		}
	})
	m.clear()
	m.log.Debug("streaming manager closed", zap.Uint64("loaded", m.stats.Loaded))
}
