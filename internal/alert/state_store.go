package alert

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// MemoryStateStore keeps alert state in process memory. Losing it on
// restart is acceptable: the throttler degrades to sending again.
type MemoryStateStore struct {
	sent map[string]time.Time // tenantID + "/" + class
	mu   sync.RWMutex
}

// NewMemoryStateStore creates an in-memory alert state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{sent: make(map[string]time.Time)}
}

func stateKey(tenantID string, class Class) string {
	return tenantID + "/" + string(class)
}

func (m *MemoryStateStore) LastSent(_ context.Context, tenantID string, class Class) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.sent[stateKey(tenantID, class)]
	return at, ok, nil
}

func (m *MemoryStateStore) MarkSent(_ context.Context, tenantID string, class Class, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[stateKey(tenantID, class)] = at
	return nil
}

// PostgresStateStore persists alert state for multi-process deployments.
type PostgresStateStore struct {
	db *sql.DB
}

// NewPostgresStateStore creates a PostgreSQL-backed alert state store.
func NewPostgresStateStore(db *sql.DB) *PostgresStateStore {
	return &PostgresStateStore{db: db}
}

func (p *PostgresStateStore) LastSent(ctx context.Context, tenantID string, class Class) (time.Time, bool, error) {
	var at time.Time
	err := p.db.QueryRowContext(ctx, `
		SELECT last_sent_at FROM alert_state WHERE tenant_id = $1 AND class = $2
	`, tenantID, string(class)).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

func (p *PostgresStateStore) MarkSent(ctx context.Context, tenantID string, class Class, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO alert_state (tenant_id, class, last_sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, class) DO UPDATE SET last_sent_at = EXCLUDED.last_sent_at
	`, tenantID, string(class), at)
	return err
}

// Compile-time assertions.
var (
	_ StateStore = (*MemoryStateStore)(nil)
	_ StateStore = (*PostgresStateStore)(nil)
)
