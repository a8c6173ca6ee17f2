package ledger

import (
	"context"
	"sync"

	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/syncutil"
)

// MemoryStore is an in-memory balance store for demo/development mode.
// Mutations serialize per tenant through a sharded mutex, so concurrent
// charges for the same tenant never lose updates while different tenants
// proceed in parallel.
type MemoryStore struct {
	balances map[string]*Balance
	mu       sync.RWMutex          // guards the map itself
	locks    syncutil.ShardedMutex // serializes read-modify-write per tenant
}

// NewMemoryStore creates a new in-memory balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]*Balance)}
}

func (m *MemoryStore) GetBalance(_ context.Context, tenantID string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bal, ok := m.balances[tenantID]
	if !ok {
		return nil, ErrBalanceNotFound
	}
	cp := *bal
	return &cp, nil
}

func (m *MemoryStore) PutBalance(_ context.Context, bal *Balance, expectedVersion int64) error {
	unlock := m.locks.Lock(bal.TenantID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.balances[bal.TenantID]
	if expectedVersion == 0 {
		if ok {
			return ErrVersionConflict
		}
	} else {
		if !ok {
			return ErrBalanceNotFound
		}
		if existing.Version != expectedVersion {
			return ErrVersionConflict
		}
	}

	cp := *bal
	cp.Version = expectedVersion + 1
	m.balances[bal.TenantID] = &cp
	return nil
}

func (m *MemoryStore) AddUsedCredits(_ context.Context, tenantID string, amount credits.Amount) (*Balance, error) {
	unlock := m.locks.Lock(tenantID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[tenantID]
	if !ok {
		return nil, ErrBalanceNotFound
	}

	bal.UsedCredits += amount
	bal.Version++
	cp := *bal
	return &cp, nil
}

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)
