package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/plan"
)

// PostgresStore implements Store with PostgreSQL. Credits are stored as
// BIGINT smallest units; the single-statement increment in AddUsedCredits
// is what makes concurrent charges safe without application-side locking.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed balance store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, tenantID string) (*Balance, error) {
	bal := &Balance{TenantID: tenantID}
	var tier string

	err := p.db.QueryRowContext(ctx, `
		SELECT tier, base_credits, purchased_credits, used_credits, reset_date, version, updated_at
		FROM credit_balances WHERE tenant_id = $1
	`, tenantID).Scan(&tier, &bal.BaseCredits, &bal.PurchasedCredits, &bal.UsedCredits,
		&bal.ResetDate, &bal.Version, &bal.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrBalanceNotFound
	}
	if err != nil {
		return nil, err
	}
	bal.Tier = plan.Tier(tier)
	return bal, nil
}

func (p *PostgresStore) PutBalance(ctx context.Context, bal *Balance, expectedVersion int64) error {
	if expectedVersion == 0 {
		result, err := p.db.ExecContext(ctx, `
			INSERT INTO credit_balances (tenant_id, tier, base_credits, purchased_credits, used_credits, reset_date, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, NOW())
			ON CONFLICT (tenant_id) DO NOTHING
		`, bal.TenantID, string(bal.Tier), int64(bal.BaseCredits), int64(bal.PurchasedCredits),
			int64(bal.UsedCredits), bal.ResetDate)
		if err != nil {
			return fmt.Errorf("failed to insert balance: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	result, err := p.db.ExecContext(ctx, `
		UPDATE credit_balances SET
			tier              = $2,
			base_credits      = $3,
			purchased_credits = $4,
			used_credits      = $5,
			reset_date        = $6,
			version           = version + 1,
			updated_at        = NOW()
		WHERE tenant_id = $1 AND version = $7
	`, bal.TenantID, string(bal.Tier), int64(bal.BaseCredits), int64(bal.PurchasedCredits),
		int64(bal.UsedCredits), bal.ResetDate, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (p *PostgresStore) AddUsedCredits(ctx context.Context, tenantID string, amount credits.Amount) (*Balance, error) {
	bal := &Balance{TenantID: tenantID}
	var tier string

	err := p.db.QueryRowContext(ctx, `
		UPDATE credit_balances SET
			used_credits = used_credits + $2,
			version      = version + 1,
			updated_at   = NOW()
		WHERE tenant_id = $1
		RETURNING tier, base_credits, purchased_credits, used_credits, reset_date, version, updated_at
	`, tenantID, int64(amount)).Scan(&tier, &bal.BaseCredits, &bal.PurchasedCredits,
		&bal.UsedCredits, &bal.ResetDate, &bal.Version, &bal.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrBalanceNotFound
	}
	if err != nil {
		return nil, err
	}
	bal.Tier = plan.Tier(tier)
	return bal, nil
}

// Compile-time assertion.
var _ Store = (*PostgresStore)(nil)
