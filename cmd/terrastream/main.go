// Package main is the entry point for the headless terrain streaming client.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/config"
	"github.com/Faultbox/terrastream/internal/game"
	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/internal/world/coords"
)

var (
	flagDuration = flag.Duration("duration", 0, "Simulated run time (0 = until interrupted)")
	flagSpeed    = flag.Float64("speed", 40, "Player speed in world units per second")
	flagHeading  = flag.Float64("heading", 0, "Player heading in degrees (0 = +X)")
	flagStartX   = flag.Float64("x", math.NaN(), "Start X in world units (default: world centre)")
	flagStartZ   = flag.Float64("z", math.NaN(), "Start Z in world units (default: world centre)")
	flagDigEvery = flag.Duration("dig-every", 0, "Dig interval (0 = default, negative disables)")
	flagGoalX    = flag.Float64("goal-x", math.NaN(), "Walk a planned route to this X (needs -goal-z)")
	flagGoalZ    = flag.Float64("goal-z", math.NaN(), "Walk a planned route to this Z (needs -goal-x)")
	flagSnapshot = flag.String("snapshot", "", "Write a chunk map PNG to this directory on exit")
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logOpts := logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Console: true}
	if cfg.Logging.LogFile != "" {
		logOpts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.Init(logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== Terrastream Client ===")
	logger.Debug("config loaded", zap.Any("config", cfg))

	opts := game.DefaultOptions()
	opts.Duration = *flagDuration
	opts.Speed = *flagSpeed
	opts.Heading = *flagHeading * math.Pi / 180
	opts.Snapshot = *flagSnapshot
	if !math.IsNaN(*flagStartX) && !math.IsNaN(*flagStartZ) {
		opts.Start = &coords.Global{*flagStartX, 0, *flagStartZ}
	}
	if !math.IsNaN(*flagGoalX) && !math.IsNaN(*flagGoalZ) {
		opts.Goal = &coords.Global{*flagGoalX, 0, *flagGoalZ}
	}
	switch {
	case *flagDigEvery < 0:
		opts.DigEvery = 0
	case *flagDigEvery > 0:
		opts.DigEvery = *flagDigEvery
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create and run client
	g, err := game.New(ctx, cfg, opts)
	if err != nil {
		logger.Error("failed to create client", zap.Error(err))
		os.Exit(1)
	}
	defer g.Close()

	if err := g.Run(ctx); err != nil {
		logger.Error("client error", zap.Error(err))
		os.Exit(1)
	}

	s := g.Stats()
	fmt.Printf("resident %d, loaded %d, unloaded %d, disposed %d, recenters %d, digs %d, gathered %d\n",
		s.Streaming.Resident, s.Streaming.Loaded, s.Streaming.Unloaded,
		s.Streaming.Disposed, s.Streaming.Recenters, s.Dug, s.Taken)
	logger.Info("client closed normally")
}
