// Package states implements client state management.
package states

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/logger"
)

// State is one phase of the client (loading, walking, ...).
type State interface {
	// Name identifies the state in logs.
	Name() string

	// Enter is called when entering this state.
	Enter() error

	// Exit is called when leaving this state.
	Exit() error

	// Update is called every tick.
	Update(dt float64) error
}

// Manager manages state transitions.
type Manager struct {
	current State
	next    State
	elapsed float64 // Seconds spent in current
	changes int
	log     *zap.Logger
}

// NewManager creates a new state manager.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{log: logger.OrNop(log)}
}

// Current returns the current state.
func (m *Manager) Current() State {
	return m.current
}

// Elapsed returns the seconds spent in the current state, counting the
// update in progress.
func (m *Manager) Elapsed() float64 {
	return m.elapsed
}

// Changes returns how many transitions have happened.
func (m *Manager) Changes() int {
	return m.changes
}

// Change schedules a state change for the next Update.
func (m *Manager) Change(next State) {
	m.next = next
}

// Update processes a pending transition and updates the current state.
func (m *Manager) Update(dt float64) error {
	if m.next != nil {
		if m.current != nil {
			if err := m.current.Exit(); err != nil {
				return fmt.Errorf("leaving %s: %w", m.current.Name(), err)
			}
		}
		from := "none"
		if m.current != nil {
			from = m.current.Name()
		}
		m.log.Info("state change",
			zap.String("from", from),
			zap.String("to", m.next.Name()),
			zap.Float64("after_seconds", m.elapsed))
		m.current = m.next
		m.next = nil
		m.elapsed = 0
		m.changes++
		if err := m.current.Enter(); err != nil {
			return fmt.Errorf("entering %s: %w", m.current.Name(), err)
		}
	}

	if m.current != nil {
		m.elapsed += dt
		return m.current.Update(dt)
	}
	return nil
}

// Close exits the current state.
func (m *Manager) Close() error {
	if m.current == nil {
		return nil
	}
	err := m.current.Exit()
	m.current = nil
	return err
}
