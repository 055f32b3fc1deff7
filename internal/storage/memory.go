package storage

import (
	"context"

	"github.com/sasha-s/go-deadlock"
)

// MemoryStore keeps chunk state in process memory. States are copied on the
// way in and out so callers never share slices with the store.
type MemoryStore struct {
	mu     deadlock.RWMutex
	states map[string]*ChunkState
	writes int
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*ChunkState)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*ChunkState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	s, ok := m.states[key]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, state *ChunkState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.states[key] = state.Clone()
	m.writes++
	return nil
}

// Update runs fn under the store lock.
func (m *MemoryStore) Update(_ context.Context, key string, fn func(*ChunkState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	state := NewChunkState()
	if s, ok := m.states[key]; ok {
		state = s.Clone()
	}
	if err := fn(state); err != nil {
		return err
	}
	m.states[key] = state
	m.writes++
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

// Writes returns the number of successful writes.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
