package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. Used by tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
	now   func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot), now: time.Now}
}

// Get returns a copy of the stored snapshot or an idle one.
func (m *MemoryStore) Get(_ context.Context, key Key) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[key.String()]
	if !ok {
		return Snapshot{State: StateIdle, Data: Data{}}, nil
	}
	return snap.Clone(), nil
}

// Set stores a copy of snap.
func (m *MemoryStore) Set(_ context.Context, key Key, snap Snapshot) error {
	snap = snap.Clone()
	snap.UpdatedAt = m.now()
	m.mu.Lock()
	m.snaps[key.String()] = snap
	m.mu.Unlock()
	return nil
}

// Clear forgets the conversation.
func (m *MemoryStore) Clear(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.snaps, key.String())
	m.mu.Unlock()
	return nil
}

// Len reports how many conversations are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}
