package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/Faultbox/terrastream/internal/pipeline"
	"github.com/Faultbox/terrastream/internal/world/chunk"
)

// errBuildCancelled is reported for builds whose batch was cancelled before
// they started.
var errBuildCancelled = errors.New("build cancelled before start")

// completion is a finished build on its way back to the loop goroutine.
type completion struct {
	key        chunk.Key
	coord      chunk.Coord
	lod        int
	generation uint64
	editSeq    uint64
	result     *pipeline.Result
	err        error
}

// scheduler runs builds on a bounded worker pool. Builds are grouped in a
// batch that can be cancelled as a whole: queued builds then skip their
// work, while started builds run to completion and are discarded by the
// manager on arrival.
type scheduler struct {
	pool    pond.Pool
	results chan completion
	timeout time.Duration

	mu     sync.Mutex
	batch  context.Context
	cancel context.CancelFunc
	closed bool
}

func newScheduler(workers, backlog int, timeout time.Duration) *scheduler {
	s := &scheduler{
		pool:    pond.NewPool(workers),
		results: make(chan completion, backlog),
		timeout: timeout,
	}
	s.batch, s.cancel = context.WithCancel(context.Background())
	return s
}

// submit queues a build. c carries the identity of the request; run does
// the work. The result is delivered on s.results.
func (s *scheduler) submit(c completion, run func(ctx context.Context) (*pipeline.Result, error)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	batch := s.batch
	s.mu.Unlock()

	s.pool.Submit(func() {
		if batch.Err() != nil {
			c.err = errBuildCancelled
			s.results <- c
			return
		}
		// Once started, a build is not interrupted by batch cancellation.
		ctx := context.WithoutCancel(batch)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		c.result, c.err = run(ctx)
		s.results <- c
	})
	return true
}

// cancelBatch cancels every queued build and opens a new batch.
func (s *scheduler) cancelBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	s.batch, s.cancel = context.WithCancel(context.Background())
}

// close cancels queued work and waits for running builds, handing every
// completion still in flight to drain.
func (s *scheduler) close(drain func(completion)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.pool.StopAndWait()
		close(done)
	}()
	for {
		select {
		case c := <-s.results:
			drain(c)
		case <-done:
			for {
				select {
				case c := <-s.results:
					drain(c)
				default:
					return
				}
			}
		}
	}
}
