package usage

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL. The unique index on
// idempotency_key plus ON CONFLICT DO NOTHING makes retried appends
// harmless.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed usage store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, rec *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO credit_usage_records
			(id, tenant_id, credits_charged, model_used, resolution, estimated_cost_usd, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, rec.ID, rec.TenantID, int64(rec.CreditsCharged), rec.ModelUsed, rec.Resolution,
		rec.EstimatedCostUSD, rec.IdempotencyKey, rec.CreatedAt)
	return err
}

func (p *PostgresStore) List(ctx context.Context, tenantID string, limit int) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, credits_charged, model_used, resolution, estimated_cost_usd, idempotency_key, created_at
		FROM credit_usage_records
		WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.CreditsCharged, &rec.ModelUsed,
			&rec.Resolution, &rec.EstimatedCostUSD, &rec.IdempotencyKey, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Compile-time assertion.
var _ Store = (*PostgresStore)(nil)
