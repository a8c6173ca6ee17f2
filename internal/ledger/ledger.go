// Package ledger tracks per-tenant credit balances.
//
// Flow:
//  1. A balance is created lazily on a tenant's first request, seeded from its plan
//  2. Every read first applies the monthly reset transform if the cycle has rolled
//  3. Completed generations debit the balance; debits never fail for insufficient credits
//  4. Overage is a derived fact (available may go negative), never an enforced gate
//
// The transform functions in this file are pure: they take a Balance value
// and return a new one. Persistence and serialization of concurrent writes
// are the Store's concern.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/plan"
)

var (
	ErrBalanceNotFound = errors.New("ledger: balance not found")
	ErrVersionConflict = errors.New("ledger: balance version conflict")
	ErrInvalidAmount   = errors.New("ledger: invalid amount")
)

// Balance is a snapshot of a tenant's credit position. Values are
// immutable: every mutation goes through a transform returning a new
// Balance, persisted via the Store.
type Balance struct {
	TenantID         string         `json:"tenantId"`
	Tier             plan.Tier      `json:"tier"`
	BaseCredits      credits.Amount `json:"baseCredits"`
	PurchasedCredits credits.Amount `json:"purchasedCredits"` // add-ons; zeroed on reset
	UsedCredits      credits.Amount `json:"usedCredits"`      // monotonically increasing within a cycle
	ResetDate        time.Time      `json:"resetDate"`        // first-of-month cycle boundary
	Version          int64          `json:"version"`          // optimistic-concurrency token
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// AvailableCredits returns base + purchased - used. The result is signed:
// a negative value means the tenant is in overage. Never clamp this in
// internal calculations.
func (b Balance) AvailableCredits() credits.Amount {
	return b.BaseCredits + b.PurchasedCredits - b.UsedCredits
}

// DisplayAvailable returns the available credits clamped to zero, for
// user-facing surfaces only.
func (b Balance) DisplayAvailable() credits.Amount {
	return b.AvailableCredits().Clamped()
}

// ResetDue reports whether the cycle boundary has passed.
func (b Balance) ResetDue(now time.Time) bool {
	return !now.Before(b.ResetDate)
}

// NewBalance seeds a fresh balance from a plan. The first reset lands on
// the first day of the month following now.
func NewBalance(tenantID string, cfg plan.Config, now time.Time) Balance {
	return Balance{
		TenantID:    tenantID,
		Tier:        cfg.Tier,
		BaseCredits: cfg.BaseCredits,
		ResetDate:   firstOfNextMonth(now),
		UpdatedAt:   now,
	}
}

// ApplyResetIfDue returns the balance with the monthly reset applied when
// now has passed the reset date, and the input unchanged otherwise.
// The transform zeroes used and purchased credits, re-reads the base
// allowance from the plan, and advances the reset date past now — so the
// function is idempotent and safe to call on every read, even after the
// balance sat untouched for several cycles.
func ApplyResetIfDue(b Balance, cfg plan.Config, now time.Time) Balance {
	if !b.ResetDue(now) {
		return b
	}
	b.UsedCredits = 0
	b.PurchasedCredits = 0
	b.BaseCredits = cfg.BaseCredits
	b.ResetDate = firstOfNextMonth(now)
	b.UpdatedAt = now
	return b
}

// Charge returns the balance with amount added to used credits. It never
// rejects for insufficient funds: overage is derived, not enforced.
func Charge(b Balance, amount credits.Amount, now time.Time) Balance {
	b.UsedCredits += amount
	b.UpdatedAt = now
	return b
}

// PurchaseAddOn returns the balance with amount added to purchased credits.
func PurchaseAddOn(b Balance, amount credits.Amount, now time.Time) Balance {
	b.PurchasedCredits += amount
	b.UpdatedAt = now
	return b
}

// ChangeTier returns the balance moved to a new plan. The base allowance
// is re-read from the new plan; used credits are not retroactively changed.
func ChangeTier(b Balance, cfg plan.Config, now time.Time) Balance {
	b.Tier = cfg.Tier
	b.BaseCredits = cfg.BaseCredits
	b.UpdatedAt = now
	return b
}

// firstOfNextMonth returns midnight UTC on the first day of the month
// after t.
func firstOfNextMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Store persists balances. Implementations must serialize writes per
// tenant: either via the expectedVersion check on Put (optimistic) or via
// a single-statement atomic increment in AddUsedCredits. Operations for
// different tenants must not contend.
type Store interface {
	// GetBalance returns the stored balance or ErrBalanceNotFound.
	GetBalance(ctx context.Context, tenantID string) (*Balance, error)

	// PutBalance writes bal if the stored version equals expectedVersion,
	// bumping the version by one. expectedVersion 0 means "create"; an
	// existing row or a mismatched version yields ErrVersionConflict.
	PutBalance(ctx context.Context, bal *Balance, expectedVersion int64) error

	// AddUsedCredits atomically increments used credits and returns the
	// updated balance. This is the lost-update-proof charge primitive.
	AddUsedCredits(ctx context.Context, tenantID string, amount credits.Amount) (*Balance, error)
}
