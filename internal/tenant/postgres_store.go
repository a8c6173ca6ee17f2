package tenant

import (
	"context"
	"database/sql"

	"github.com/pixelmint/pixelmint/internal/plan"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, email, tier, stripe_customer_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, t.ID, t.Name, t.Email, string(t.Tier), nullable(t.StripeCustomerID), string(t.Status))
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, email, tier, stripe_customer_id, status, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id)
	return scanTenant(row)
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET name = $2, email = $3, tier = $4, stripe_customer_id = $5,
			status = $6, updated_at = NOW()
		WHERE id = $1
	`, t.ID, t.Name, t.Email, string(t.Tier), nullable(t.StripeCustomerID), string(t.Status))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Tenant, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, tier, stripe_customer_id, status, created_at, updated_at
		FROM tenants ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*Tenant, error) {
	t := &Tenant{}
	var tier, status string
	var stripeID sql.NullString

	err := row.Scan(&t.ID, &t.Name, &t.Email, &tier, &stripeID, &status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Tier = plan.Tier(tier)
	t.Status = Status(status)
	if stripeID.Valid {
		t.StripeCustomerID = stripeID.String
	}
	return t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Compile-time assertion.
var _ Store = (*PostgresStore)(nil)
