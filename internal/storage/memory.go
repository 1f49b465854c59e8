package storage

import (
	"context"
	"sync"
)

// MemoryCursors keeps cursors in process memory. Positions are lost on
// restart, so every retained event is processed again on the next run.
type MemoryCursors struct {
	mu      sync.RWMutex
	cursors map[string]uint64
}

func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{cursors: make(map[string]uint64)}
}

func (m *MemoryCursors) GetCursor(_ context.Context, streamID string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seq, ok := m.cursors[streamID]
	return seq, ok, nil
}

func (m *MemoryCursors) UpsertCursor(_ context.Context, streamID string, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[streamID] = seq
	return nil
}
