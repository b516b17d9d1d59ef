package profile

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Store used in tests and single-node development.
// It is goroutine-safe and returns copies so callers can mutate freely
// before calling Save.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Participant
}

// NewMemory creates an empty in-memory profile store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Participant)}
}

func (m *Memory) GetOrCreate(_ context.Context, id string) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.records[id]; ok {
		cp := p
		return &cp, nil
	}

	p := Participant{
		ID:       id,
		Nickname: DefaultNickname(id),
		Role:     RoleUser,
	}
	m.records[id] = p
	cp := p
	return &cp, nil
}

func (m *Memory) Save(_ context.Context, p *Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[p.ID] = *p
	return nil
}

func (m *Memory) ListAll(_ context.Context) ([]*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Participant, 0, len(m.records))
	for _, p := range m.records {
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
