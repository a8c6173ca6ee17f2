package usage

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory usage store for demo/development mode.
type MemoryStore struct {
	records []*Record
	keys    map[string]bool // idempotency keys already appended
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]bool)}
}

func (m *MemoryStore) Append(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.IdempotencyKey != "" && m.keys[rec.IdempotencyKey] {
		return nil // duplicate delivery; already recorded
	}

	cp := *rec
	m.records = append(m.records, &cp)
	if rec.IdempotencyKey != "" {
		m.keys[rec.IdempotencyKey] = true
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, tenantID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Record
	for i := len(m.records) - 1; i >= 0 && len(result) < limit; i-- {
		if m.records[i].TenantID == tenantID {
			cp := *m.records[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)
