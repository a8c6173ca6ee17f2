// Package tenant provides the minimal tenant directory the gateway needs:
// which tier an account is on and where to send its notifications.
// Account management CRUD lives in the surrounding application.
package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/pixelmint/pixelmint/internal/plan"
)

var ErrTenantNotFound = errors.New("tenant: not found")

// Status represents a tenant's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Tenant represents an account using the gateway.
type Tenant struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Tier             plan.Tier `json:"tier"`
	StripeCustomerID string    `json:"stripeCustomerId,omitempty"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Store persists tenant records.
type Store interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	List(ctx context.Context, limit int) ([]*Tenant, error)
}

// Directory answers the gateway's two tenant questions: tier and contact.
type Directory struct {
	store       Store
	defaultTier plan.Tier
}

// NewDirectory creates a tenant directory.
func NewDirectory(store Store, defaultTier plan.Tier) *Directory {
	return &Directory{store: store, defaultTier: defaultTier}
}

// TierFor returns the tenant's subscription tier, or the default tier
// for tenants the directory has not seen.
func (d *Directory) TierFor(ctx context.Context, tenantID string) plan.Tier {
	t, err := d.store.Get(ctx, tenantID)
	if err != nil {
		return d.defaultTier
	}
	return t.Tier
}

// ContactEmail returns the notification address for a tenant.
func (d *Directory) ContactEmail(ctx context.Context, tenantID string) (string, error) {
	t, err := d.store.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return t.Email, nil
}

// Get returns a tenant record.
func (d *Directory) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	return d.store.Get(ctx, tenantID)
}

// Store exposes the underlying store for wiring.
func (d *Directory) Store() Store {
	return d.store
}
