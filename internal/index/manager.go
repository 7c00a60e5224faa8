package index

import (
	"sync"
	"sync/atomic"
)

// Manager publishes the active index. Rebuilds construct the new index off
// to the side and swap a single pointer, so a concurrent Search observes
// either the complete old index or the complete new one, never a mixture.
// Old indexes are reclaimed by the garbage collector once the last in-flight
// search drops its reference.
type Manager struct {
	active  atomic.Pointer[Index]
	buildMu sync.Mutex
}

func NewManager() *Manager { return &Manager{} }

// Active returns the current index, or nil before the first successful
// build. A nil index searches as empty.
func (m *Manager) Active() *Index { return m.active.Load() }

// Replace serializes rebuilds: one writer at a time runs build, and only a
// successful result replaces the active index. Failed or cancelled builds
// leave the previous index in place.
func (m *Manager) Replace(build func() (*Index, error)) (*Index, error) {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	ix, err := build()
	if err != nil {
		return nil, err
	}
	m.active.Store(ix)
	return ix, nil
}

// Restore installs a previously snapshotted index, used at startup.
func (m *Manager) Restore(ix *Index) {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	m.active.Store(ix)
}
