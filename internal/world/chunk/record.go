package chunk

import (
	"time"

	"github.com/Faultbox/terrastream/internal/engine/scene"
)

// State is a record's lifecycle state.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record tracks one resident chunk. Records are owned by the lifecycle
// manager and only touched from the loop goroutine.
type Record struct {
	Key      Key
	Coord    Coord
	State    State
	LOD      int // 0 is finest
	Distance int // Chebyshev distance to the player chunk at the last pass

	Node   *scene.Node // Terrain node, nil until loaded
	Source string      // Where the geometry came from

	// Generation identifies the build that owns this record. Results from
	// older generations are discarded on arrival.
	Generation uint64

	// WantLOD is set while a finer rebuild is in flight.
	WantLOD int

	// Pending terrain edits: vertex index -> accumulated height delta.
	PendingEdits map[int]float32
	FlushDue     time.Time // Zero when nothing is scheduled
	Flushing     bool      // Persistence of the last batch is in flight
	EditSeq      uint64    // Bumped whenever a batch of edits is flushed
}

// NewRecord creates a record in the Unloaded state.
func NewRecord(c Coord) *Record {
	return &Record{Key: c.Key(), Coord: c, State: Unloaded, WantLOD: -1}
}

// Resolution returns the vertex resolution of the current geometry, or 0.
func (r *Record) Resolution() int {
	if r.Node == nil || r.Node.Mesh == nil {
		return 0
	}
	return r.Node.Mesh.Resolution
}

// HasPendingEdits reports whether unflushed edits exist.
func (r *Record) HasPendingEdits() bool {
	return len(r.PendingEdits) > 0
}

// AddEdit accumulates a delta on a vertex.
func (r *Record) AddEdit(index int, delta float32) {
	if r.PendingEdits == nil {
		r.PendingEdits = make(map[int]float32)
	}
	r.PendingEdits[index] += delta
}

// TakeEdits returns and clears the pending edits.
func (r *Record) TakeEdits() map[int]float32 {
	e := r.PendingEdits
	r.PendingEdits = nil
	r.FlushDue = time.Time{}
	return e
}
