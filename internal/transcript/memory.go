package transcript

import (
	"context"
	"sync"
)

// Memory is an in-memory transcript store for tests.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string][]Entry
}

// NewMemory creates an empty in-memory transcript store.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string][]Entry)}
}

func (m *Memory) Append(_ context.Context, roomID string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = append(m.rooms[roomID], e)
	return nil
}

func (m *Memory) Read(_ context.Context, roomID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.rooms[roomID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}
