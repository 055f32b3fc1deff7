package streaming

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Faultbox/terrastream/internal/pipeline"
	"github.com/Faultbox/terrastream/internal/world/chunk"
)

func TestSchedulerCancelsQueuedBuilds(t *testing.T) {
	s := newScheduler(1, 4, 0)
	defer s.close(func(completion) {})

	gate := make(chan struct{})
	started := make(chan struct{})
	var ranSecond bool

	s.submit(completion{key: "0_0"}, func(ctx context.Context) (*pipeline.Result, error) {
		close(started)
		<-gate
		return nil, ctx.Err()
	})
	<-started
	s.submit(completion{key: "1_0"}, func(ctx context.Context) (*pipeline.Result, error) {
		ranSecond = true
		return nil, nil
	})

	s.cancelBatch()
	close(gate)

	got := make(map[chunk.Key]error)
	for len(got) < 2 {
		select {
		case c := <-s.results:
			got[c.key] = c.err
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out with %v", got)
		}
	}
	if got["0_0"] != nil {
		t.Errorf("started build saw %v, want it to finish uncancelled", got["0_0"])
	}
	if !errors.Is(got["1_0"], errBuildCancelled) || ranSecond {
		t.Errorf("queued build: err=%v ran=%v", got["1_0"], ranSecond)
	}

	// The next batch runs normally.
	s.submit(completion{key: "2_0"}, func(ctx context.Context) (*pipeline.Result, error) {
		return nil, nil
	})
	if c := <-s.results; c.err != nil || c.key != "2_0" {
		t.Errorf("new batch: %+v", c)
	}
}

func TestSchedulerTimeout(t *testing.T) {
	s := newScheduler(1, 1, 10*time.Millisecond)
	defer s.close(func(completion) {})

	s.submit(completion{key: "0_0"}, func(ctx context.Context) (*pipeline.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	select {
	case c := <-s.results:
		if !errors.Is(c.err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", c.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("build not timed out")
	}
}

func TestSchedulerCloseDrains(t *testing.T) {
	s := newScheduler(2, 2, 0)
	for _, k := range []chunk.Key{"0_0", "1_0"} {
		s.submit(completion{key: k}, func(ctx context.Context) (*pipeline.Result, error) {
			time.Sleep(5 * time.Millisecond)
			return nil, nil
		})
	}
	drained := 0
	s.close(func(completion) { drained++ })
	if drained != 2 {
		t.Errorf("drained %d completions, want 2", drained)
	}
	if s.submit(completion{}, nil) {
		t.Error("submit accepted after close")
	}
	s.close(func(completion) { t.Error("second close drained") })
}
