package config

import "flag"

var (
	flagConfig   = flag.String("config", "", "Path to config file")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagHost     = flag.String("heightmap-host", "", "Heightmap server base URL")
	flagSync     = flag.String("sync", "", "Chunk sync WebSocket URL")
	flagStore    = flag.String("store", "", "Path to SQLite chunk store (enables sqlite driver)")
	flagRender   = flag.Int("render-distance", -1, "Chunk load radius")
	flagMaxBuild = flag.Int("max-builds", 0, "Maximum concurrent chunk builds")
	flagSeed     = flag.Int64("seed", 0, "Procedural world seed")
	flagPatches  = flag.String("patches", "", "Local patch directory searched before the host")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagHost != "" {
		cfg.Network.HeightmapHost = *flagHost
	}
	if *flagSync != "" {
		cfg.Network.SyncURL = *flagSync
	}
	if *flagStore != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.Path = *flagStore
	}
	if *flagRender >= 0 {
		cfg.Streaming.RenderDistance = *flagRender
		if cfg.Streaming.UnloadDistance <= *flagRender {
			cfg.Streaming.UnloadDistance = *flagRender + 2
		}
		side := 2*(*flagRender) + 1
		if cfg.Streaming.MaxResidentChunks < side*side {
			cfg.Streaming.MaxResidentChunks = side * side * 2
		}
	}
	if *flagMaxBuild > 0 {
		cfg.Streaming.MaxConcurrentBuilds = *flagMaxBuild
	}
	if *flagPatches != "" {
		cfg.Network.PatchDirs = append(cfg.Network.PatchDirs, *flagPatches)
	}
	if *flagSeed != 0 {
		cfg.World.Seed = *flagSeed
	}
}
