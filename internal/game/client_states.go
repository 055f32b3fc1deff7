package game

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/engine/picking"
	"github.com/Faultbox/terrastream/internal/engine/scene"
	"github.com/Faultbox/terrastream/internal/game/world"
	"github.com/Faultbox/terrastream/internal/modify"
	"github.com/Faultbox/terrastream/internal/streaming"
	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/internal/world/coords"
)

// loadingTimeout bounds how long the client waits for the first ring.
const loadingTimeout = 30 * time.Second

// maxMessagesPerTick caps how many sync messages one tick applies.
const maxMessagesPerTick = 16

// pumpMessages applies queued chunk sync messages.
func (g *Game) pumpMessages(ctx context.Context) {
	if g.session == nil {
		return
	}
	msgs := g.session.Drain(maxMessagesPerTick)
	for _, msg := range msgs {
		if err := g.streamer.HandleMessage(ctx, msg); err != nil {
			g.log.Warn("sync message rejected", zap.String("type", msg.MessageType()), zap.Error(err))
		}
	}
	if len(msgs) == maxMessagesPerTick {
		return
	}
	select {
	case <-g.session.Done():
		_, dropped := g.session.Stats()
		g.log.Warn("chunk sync session ended, streaming locally", zap.Int64("dropped", dropped))
		g.session.Close()
		g.session = nil
	default:
	}
}

// loadingState teleports to the start position and waits for the area
// around it to stream in.
type loadingState struct {
	g   *Game
	ctx context.Context
}

func (s *loadingState) Name() string { return "loading" }

func (s *loadingState) Enter() error {
	rec, err := s.g.streamer.Teleport(s.ctx, s.g.walker.Position)
	switch {
	case errors.Is(err, streaming.ErrCriticalFailure):
		s.g.log.Error("spawn chunk unavailable, standing on placeholder", zap.Error(err))
	case err != nil:
		return err
	}
	if h, ok := s.g.modifier.HeightAt(s.g.walker.Position); ok {
		s.g.walker.Position[1] = float64(h) + s.g.walker.Eye
	}
	s.g.log.Info("spawned", zap.String("chunk", string(rec.Key)), zap.String("source", rec.Source))
	return nil
}

func (s *loadingState) Exit() error { return nil }

func (s *loadingState) Update(dt float64) error {
	s.g.pumpMessages(s.ctx)
	s.g.streamer.UpdateChunks(s.g.walker.Position)
	s.g.streamer.ProcessCompleted()

	st := s.g.streamer.Stats()
	if st.Passes > 0 && st.InFlight == 0 {
		s.g.log.Info("area loaded", zap.Int("resident", st.Resident), zap.Float64("seconds", s.g.states.Elapsed()))
		s.g.states.Change(&walkingState{g: s.g, ctx: s.ctx})
		return nil
	}
	if s.g.states.Elapsed() >= loadingTimeout.Seconds() {
		s.g.log.Warn("area still loading, starting anyway", zap.Int("in_flight", st.InFlight))
		s.g.states.Change(&walkingState{g: s.g, ctx: s.ctx})
	}
	return nil
}

// walkingState moves the player, streams chunks around it, digs and
// gathers resources.
type walkingState struct {
	g     *Game
	ctx   context.Context
	since float64
}

func (s *walkingState) Name() string { return "walking" }

func (s *walkingState) Enter() error {
	if s.g.opts.Goal != nil {
		s.g.planRoute(*s.g.opts.Goal)
	}
	return nil
}

// planRoute routes the walker to goal around chunks whose build failed.
func (g *Game) planRoute(goal coords.Global) {
	from, ok := g.mapper.ChunkOf(g.walker.Position)
	to, ok2 := g.mapper.ChunkOf(goal)
	if !ok || !ok2 {
		g.log.Warn("route endpoints outside the world", zap.Float64s("goal", goal[:]))
		return
	}

	failed := make(map[chunk.Coord]bool)
	for _, rec := range g.streamer.Records() {
		if rec.State == chunk.Failed {
			failed[rec.Coord] = true
		}
	}
	pf := world.NewPathFinder(g.mapper.Grid(), func(c chunk.Coord) bool { return !failed[c] })
	path := pf.FindPath(from, to)
	if path == nil {
		g.log.Warn("no route to goal", zap.Stringer("from", from), zap.Stringer("to", to))
		return
	}
	points := append(world.Waypoints(g.mapper, path), coords.Global{goal.X(), 0, goal.Z()})
	g.walker.SetRoute(points)
	g.log.Info("route planned", zap.Int("chunks", len(path)), zap.Stringer("to", to))
}

func (s *walkingState) Exit() error { return nil }

func (s *walkingState) Update(dt float64) error {
	g := s.g
	g.pumpMessages(s.ctx)

	pos := g.walker.Update(dt, g.modifier.HeightAt)
	g.streamer.ProcessCompleted()
	g.streamer.UpdateChunks(pos)

	if every := g.opts.DigEvery.Seconds(); every > 0 {
		s.since += dt
		if s.since >= every {
			s.since = 0
			s.dig()
			s.gather()
		}
	}

	g.modifier.Tick(time.Now())
	return nil
}

// dig lowers the terrain a few units in front of the player.
func (s *walkingState) dig() {
	g := s.g
	at := g.walker.Ahead(8)
	c, ok := g.mapper.ChunkOf(at)
	if !ok {
		return
	}
	err := g.modifier.ModifyAtPoint(c.Key(), at.X(), at.Z(), g.opts.DigRadius, g.opts.DigDelta)
	switch {
	case errors.Is(err, modify.ErrNotResident):
		g.log.Debug("dig target not resident", zap.Stringer("chunk", c))
	case err != nil:
		g.log.Warn("dig failed", zap.Error(err))
	default:
		g.dug++
	}
}

// gather casts a ray from the player's eye towards the ground ahead and
// mines the resource it hits, if any.
func (s *walkingState) gather() {
	g := s.g
	eye := g.mapper.ToRender(g.walker.Position)
	target := g.mapper.ToRender(g.walker.Ahead(6))
	hit, ok := g.scene.Pick(picking.NewRay(eye, target.Sub(eye)))
	if !ok || hit.Node.Kind != scene.KindProp {
		return
	}
	c, ok := g.mapper.ChunkOf(g.mapper.ToGlobal(hit.Point))
	if !ok {
		return
	}
	n, err := g.streamer.InteractResource(s.ctx, c.Key(), hit.Node.Name, 5)
	if err != nil {
		g.log.Debug("gather failed", zap.String("node", hit.Node.Name), zap.Error(err))
		return
	}
	g.took += n
	g.log.Debug("gathered", zap.String("node", hit.Node.Name), zap.Int("amount", n))
}
