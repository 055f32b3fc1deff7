// Package game implements the headless client loop: it wires the streaming
// stack together and drives it with a simulated player.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/assets"
	"github.com/Faultbox/terrastream/internal/config"
	"github.com/Faultbox/terrastream/internal/engine/debug"
	"github.com/Faultbox/terrastream/internal/engine/scene"
	"github.com/Faultbox/terrastream/internal/game/states"
	"github.com/Faultbox/terrastream/internal/game/world"
	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/internal/modify"
	"github.com/Faultbox/terrastream/internal/network"
	"github.com/Faultbox/terrastream/internal/pipeline"
	"github.com/Faultbox/terrastream/internal/procgen"
	"github.com/Faultbox/terrastream/internal/resources"
	"github.com/Faultbox/terrastream/internal/storage"
	"github.com/Faultbox/terrastream/internal/streaming"
	"github.com/Faultbox/terrastream/internal/world/coords"
)

// Options control the simulated player.
type Options struct {
	Start     *coords.Global // Nil starts at the world centre
	Heading   float64        // Radians
	Speed     float64        // World units per second
	Tick      time.Duration  // Fixed simulation step
	Duration  time.Duration  // Zero runs until the context ends
	DigEvery  time.Duration  // Zero disables digging
	DigRadius float64
	DigDelta  float32
	Goal      *coords.Global // Walk a planned route here instead of wandering
	Snapshot  string         // Directory for a chunk map PNG written on close; empty disables
}

// DefaultOptions returns a walk at running pace with a dig every second.
func DefaultOptions() Options {
	return Options{
		Speed:     40,
		Tick:      time.Second / 60,
		DigEvery:  time.Second,
		DigRadius: 12,
		DigDelta:  -1.5,
	}
}

// Game is the client instance.
type Game struct {
	cfg  *config.Config
	opts Options
	log  *zap.Logger

	store     storage.Store
	patches   *assets.Manager
	mapper    *coords.Mapper
	scene     *scene.Collection
	resources *resources.Framework
	streamer  *streaming.Manager
	modifier  *modify.Manager
	session   *network.Session
	walker    *world.Walker
	states    *states.Manager

	elapsed time.Duration
	dug     int
	took    int
}

// New creates a client from configuration. The chunk sync session is only
// dialed when a sync URL is configured; a failed dial is logged and the
// client runs without it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Game, error) {
	if opts.Tick <= 0 {
		opts.Tick = time.Second / 60
	}
	log := logger.Named("game")
	log.Info("initializing client",
		zap.Int("width", cfg.World.WidthPatches),
		zap.Int("height", cfg.World.HeightPatches),
		zap.Int64("seed", cfg.World.Seed),
		zap.String("store", cfg.Storage.Driver))

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	g := &Game{
		cfg:    cfg,
		opts:   opts,
		log:    log,
		store:  store,
		mapper: coords.NewMapper(coords.ConfigFrom(cfg.World), logger.Named("coords")),
		scene:  scene.NewCollection(),
		states: states.NewManager(logger.Named("states")),
	}

	gen := procgen.New(cfg.World.Seed)
	g.resources = resources.NewFramework(resources.DefaultRegistry(), store, logger.Named("resources"))

	var source pipeline.HeightmapSource
	if cfg.Network.HeightmapHost != "" || len(cfg.Network.PatchDirs) > 0 {
		g.patches = assets.NewManager(cfg.Network.CacheEntries, logger.Named("assets"))
		for _, dir := range cfg.Network.PatchDirs {
			if err := g.patches.AddDir(dir); err != nil {
				store.Close()
				return nil, err
			}
		}
		if cfg.Network.HeightmapHost != "" {
			g.patches.SetRemote(network.NewHeightmapClient(cfg.Network.HeightmapHost, cfg.Network.FetchTimeout, logger.Named("fetch")))
		}
		source = g.patches
	}
	pipe := pipeline.New(pipeline.Deps{
		Mapper:      g.mapper,
		Generator:   gen,
		Source:      source,
		Resources:   g.resources,
		Store:       store,
		HeightScale: cfg.World.HeightScale,
		Logger:      logger.Named("pipeline"),
	})

	g.streamer = streaming.New(streaming.ConfigFrom(cfg.Streaming), streaming.Deps{
		Mapper:    g.mapper,
		Graph:     g.scene,
		Builder:   pipe,
		Resources: g.resources,
		Logger:    logger.Named("streaming"),
	})
	g.modifier = modify.New(modify.ConfigFrom(cfg.Modify), modify.Deps{
		Mapper: g.mapper,
		Graph:  g.scene,
		Chunks: g.streamer,
		Store:  store,
		Logger: logger.Named("modify"),
	})
	g.streamer.SetUnloadHook(g.modifier.FlushRecord)

	start := coords.Global{cfg.World.WorldWidth() / 2, 0, cfg.World.WorldHeight() / 2}
	if opts.Start != nil {
		start = *opts.Start
	}
	g.walker = world.NewWalker(g.mapper.Grid(), start, opts.Heading, opts.Speed)

	if cfg.Network.SyncURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Network.ConnectTimeout)
		g.session, err = network.Dial(dialCtx, cfg.Network.SyncURL, logger.Named("sync"))
		cancel()
		if err != nil {
			log.Warn("chunk sync unavailable", zap.String("url", cfg.Network.SyncURL), zap.Error(err))
			g.session = nil
		}
	}

	log.Info("client initialized")
	return g, nil
}

func openStore(c config.StorageConfig) (storage.Store, error) {
	switch c.Driver {
	case "sqlite":
		s, err := storage.OpenSQLite(c.Path, logger.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("opening chunk store: %w", err)
		}
		return s, nil
	case "memory", "":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}

// Run drives the fixed-step loop until the context ends or the configured
// duration has been simulated.
func (g *Game) Run(ctx context.Context) error {
	g.states.Change(&loadingState{g: g, ctx: ctx})

	ticker := time.NewTicker(g.opts.Tick)
	defer ticker.Stop()

	dt := g.opts.Tick.Seconds()
	frames := 0
	report := time.Now()

	g.log.Info("starting client loop", zap.Duration("tick", g.opts.Tick))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := g.states.Update(dt); err != nil {
			return fmt.Errorf("update error: %w", err)
		}
		g.elapsed += g.opts.Tick
		frames++

		if time.Since(report) >= 5*time.Second {
			s := g.streamer.Stats()
			g.log.Debug("tick",
				zap.Int("frames", frames),
				zap.Int("resident", s.Resident),
				zap.Int("in_flight", s.InFlight),
				zap.Stringer("chunk", g.streamer.Player()))
			frames = 0
			report = time.Now()
		}

		if g.opts.Duration > 0 && g.elapsed >= g.opts.Duration {
			return nil
		}
	}
}

// Stats summarises a run.
type Stats struct {
	Streaming streaming.Stats
	Modify    modify.Stats
	Scene     int
	Dug       int
	Taken     int
	Position  coords.Global
	State     string
}

// Stats returns the current counters.
func (g *Game) Stats() Stats {
	s := Stats{
		Streaming: g.streamer.Stats(),
		Modify:    g.modifier.Stats(),
		Scene:     g.scene.Len(),
		Dug:       g.dug,
		Taken:     g.took,
		Position:  g.walker.Position,
	}
	if st := g.states.Current(); st != nil {
		s.State = st.Name()
	}
	return s
}

// snapshotScale is the pixel size of one chunk in the chunk map.
const snapshotScale = 4

// SaveSnapshot writes the current chunk map to dir and returns the file name.
func (g *Game) SaveSnapshot(dir string) (string, error) {
	img := debug.ChunkMap(g.mapper.Grid(), g.streamer.Records(), g.streamer.Player(),
		len(g.cfg.Streaming.LODResolutions), snapshotScale)
	return debug.NewCapture(dir, "chunks").Save(img)
}

// Close releases the client. Pending edits are flushed before the store
// closes.
func (g *Game) Close() {
	g.log.Info("closing client")
	if g.opts.Snapshot != "" {
		if name, err := g.SaveSnapshot(g.opts.Snapshot); err != nil {
			g.log.Warn("saving chunk map", zap.Error(err))
		} else {
			g.log.Info("chunk map saved", zap.String("file", name))
		}
	}
	if err := g.states.Close(); err != nil {
		g.log.Warn("leaving state", zap.Error(err))
	}
	if g.session != nil {
		g.session.Close()
	}
	g.streamer.Close()
	g.modifier.Close()
	if g.patches != nil {
		hits, misses := g.patches.Stats()
		g.log.Debug("patch cache", zap.Int("hits", hits), zap.Int("misses", misses))
		g.patches.Close()
	}

	s := g.Stats()
	g.log.Info("client stats",
		zap.Uint64("loaded", s.Streaming.Loaded),
		zap.Uint64("unloaded", s.Streaming.Unloaded),
		zap.Uint64("disposed", s.Streaming.Disposed),
		zap.Uint64("recenters", s.Streaming.Recenters),
		zap.Uint64("flushes", s.Modify.Flushes),
		zap.Int("dug", s.Dug),
		zap.Int("taken", s.Taken))

	if err := g.store.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
		g.log.Warn("closing chunk store", zap.Error(err))
	}
}
