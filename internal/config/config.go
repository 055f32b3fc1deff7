// Package config handles streaming client configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all client settings.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Streaming StreamingConfig `yaml:"streaming"`
	Modify    ModifyConfig    `yaml:"modify"`
	Network   NetworkConfig   `yaml:"network"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WorldConfig describes the fixed patch grid and the floating origin.
type WorldConfig struct {
	WidthPatches       int     `yaml:"width_patches"`
	HeightPatches      int     `yaml:"height_patches"`
	ChunkSize          float64 `yaml:"chunk_size"`           // World units per patch side
	HeightScale        float32 `yaml:"height_scale"`         // Normalized sample -> world units
	Seed               int64   `yaml:"seed"`                 // Procedural world seed
	RecenterThreshold  float64 `yaml:"recenter_threshold"`   // Drift before the origin moves
	MaxRenderMagnitude float64 `yaml:"max_render_magnitude"` // Clamp for render coordinates
}

// WorldWidth returns the world extent along X in world units.
func (w WorldConfig) WorldWidth() float64 {
	return float64(w.WidthPatches) * w.ChunkSize
}

// WorldHeight returns the world extent along Z in world units.
func (w WorldConfig) WorldHeight() float64 {
	return float64(w.HeightPatches) * w.ChunkSize
}

// StreamingConfig holds chunk lifecycle settings.
type StreamingConfig struct {
	RenderDistance      int           `yaml:"render_distance"` // Chebyshev load radius in chunks
	UnloadDistance      int           `yaml:"unload_distance"` // Must exceed RenderDistance
	MaxConcurrentBuilds int           `yaml:"max_concurrent"`  // Simultaneous builds
	MaxResidentChunks   int           `yaml:"max_resident"`    // Emergency eviction ceiling
	UpdateInterval      time.Duration `yaml:"update_interval"` // Minimum time between passes
	LODResolutions      []int         `yaml:"lod_resolutions"` // Vertex resolution per LOD, finest first
	LODRingWidth        int           `yaml:"lod_ring_width"`  // Chunks per LOD step
	BuildTimeout        time.Duration `yaml:"build_timeout"`   // Per build, includes the fetch
}

// ModifyConfig holds terrain modification settings.
type ModifyConfig struct {
	FlushDelay       time.Duration `yaml:"flush_delay"`
	MinEditMagnitude float32       `yaml:"min_edit_magnitude"`
	MaxRadius        float64       `yaml:"max_radius"`
}

// NetworkConfig holds heightmap host and sync channel settings.
type NetworkConfig struct {
	HeightmapHost  string        `yaml:"heightmap_host"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	SyncURL        string        `yaml:"sync_url"` // Empty disables multiplayer chunk sync
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PatchDirs      []string      `yaml:"patch_dirs"`    // Local patch directories, searched before the host
	CacheEntries   int           `yaml:"cache_entries"` // Raw patches kept in memory (0 disables)
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // "console" or "json"
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		World: WorldConfig{
			WidthPatches:       144,
			HeightPatches:      72,
			ChunkSize:          128,
			HeightScale:        96,
			Seed:               1337,
			RecenterThreshold:  2048,
			MaxRenderMagnitude: 10000,
		},
		Streaming: StreamingConfig{
			RenderDistance:      2,
			UnloadDistance:      4,
			MaxConcurrentBuilds: 3,
			MaxResidentChunks:   96,
			UpdateInterval:      250 * time.Millisecond,
			LODResolutions:      []int{65, 33, 17},
			LODRingWidth:        1,
			BuildTimeout:        10 * time.Second,
		},
		Modify: ModifyConfig{
			FlushDelay:       40 * time.Millisecond,
			MinEditMagnitude: 0.001,
			MaxRadius:        64,
		},
		Network: NetworkConfig{
			HeightmapHost:  "http://127.0.0.1:8080/heightmaps",
			FetchTimeout:   3 * time.Second,
			SyncURL:        "",
			ConnectTimeout: 10 * time.Second,
			CacheEntries:   256,
		},
		Storage: StorageConfig{
			Driver: "memory",
			Path:   "",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "console",
			LogFile: "",
		},
	}
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	var errs []error
	if c.World.WidthPatches <= 0 || c.World.HeightPatches <= 0 {
		errs = append(errs, fmt.Errorf("world: grid must be positive, got %dx%d",
			c.World.WidthPatches, c.World.HeightPatches))
	}
	if c.World.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("world: chunk_size must be positive, got %v", c.World.ChunkSize))
	}
	if c.World.MaxRenderMagnitude <= 0 {
		errs = append(errs, errors.New("world: max_render_magnitude must be positive"))
	}
	if c.Streaming.RenderDistance < 0 {
		errs = append(errs, errors.New("streaming: render_distance must not be negative"))
	}
	if c.Streaming.UnloadDistance <= c.Streaming.RenderDistance {
		errs = append(errs, fmt.Errorf("streaming: unload_distance (%d) must exceed render_distance (%d)",
			c.Streaming.UnloadDistance, c.Streaming.RenderDistance))
	}
	if c.Streaming.MaxConcurrentBuilds < 1 {
		errs = append(errs, errors.New("streaming: max_concurrent must be at least 1"))
	}
	if len(c.Streaming.LODResolutions) == 0 {
		errs = append(errs, errors.New("streaming: lod_resolutions must not be empty"))
	}
	for i, r := range c.Streaming.LODResolutions {
		if r < 2 {
			errs = append(errs, fmt.Errorf("streaming: lod_resolutions[%d] = %d, need at least 2", i, r))
		}
	}
	side := 2*c.Streaming.RenderDistance + 1
	if c.Streaming.MaxResidentChunks < side*side {
		errs = append(errs, fmt.Errorf("streaming: max_resident (%d) below the load area (%d)",
			c.Streaming.MaxResidentChunks, side*side))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown format %q", c.Logging.Format))
	}
	if c.Network.CacheEntries < 0 {
		errs = append(errs, errors.New("network: cache_entries must not be negative"))
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage: sqlite driver needs a path"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}
