package violation

import (
	"context"
	"sync"
)

// Memory is an in-memory violation log for tests.
type Memory struct {
	mu      sync.RWMutex
	records []Violation
}

// NewMemory creates an empty in-memory violation log.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, v Violation) error {
	if err := validate(v); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, v)
	return nil
}

func (m *Memory) ListAll(_ context.Context) ([]Violation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Violation, len(m.records))
	copy(out, m.records)
	return out, nil
}
