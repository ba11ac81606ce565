package persist

import "sync"

// Memory keeps the last saved snapshot in memory. It backs engines that run
// without storage and the tests.
type Memory struct {
	mu    sync.Mutex
	state *State
	saves int
}

// NewMemory creates a memory backend holding state (which may be nil)
func NewMemory(state *State) *Memory {
	return &Memory{state: state}
}

// Load returns the held snapshot
func (m *Memory) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return NewState(), nil
	}
	return m.state, nil
}

// Save replaces the held snapshot
func (m *Memory) Save(state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.saves++
	return nil
}

// Saves returns how many snapshots were saved
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close does nothing
func (m *Memory) Close() error {
	return nil
}
