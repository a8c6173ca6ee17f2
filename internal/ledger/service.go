package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/metrics"
	"github.com/pixelmint/pixelmint/internal/plan"
	"github.com/pixelmint/pixelmint/internal/retry"
)

// casAttempts bounds the optimistic-write retry loop. Conflicts only
// happen when two writes for the same tenant race, so a handful of
// attempts is plenty.
const casAttempts = 5

// Service is a stateless coordinator over the balance store. All ledger
// state lives in the store, addressed by tenant key; the service applies
// the pure transforms and handles write contention.
type Service struct {
	store       Store
	defaultTier plan.Tier
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a ledger service.
func NewService(store Store, defaultTier plan.Tier, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		defaultTier: defaultTier,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the service clock (for tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetOrCreate returns the tenant's balance, lazily seeding one from the
// default tier on first sight, and applies the monthly reset transform
// before returning. The returned balance is always current-cycle.
func (s *Service) GetOrCreate(ctx context.Context, tenantID string, tier plan.Tier) (*Balance, error) {
	if tier == "" {
		tier = s.defaultTier
	}

	bal, err := s.store.GetBalance(ctx, tenantID)
	if errors.Is(err, ErrBalanceNotFound) {
		cfg, perr := plan.For(tier)
		if perr != nil {
			return nil, perr
		}
		fresh := NewBalance(tenantID, cfg, s.now())
		if err := s.store.PutBalance(ctx, &fresh, 0); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				// Lost the create race; the winner's row is authoritative.
				return s.GetOrCreate(ctx, tenantID, tier)
			}
			return nil, fmt.Errorf("ledger: seed balance: %w", err)
		}
		fresh.Version = 1
		return &fresh, nil
	}
	if err != nil {
		return nil, err
	}

	return s.resetIfDue(ctx, bal)
}

// PeekBalance returns the stored balance without applying the cycle
// reset. Billing reads the closing cycle's numbers through this: a
// regular read at sweep time would zero the overage before it is
// invoiced.
func (s *Service) PeekBalance(ctx context.Context, tenantID string) (*Balance, error) {
	return s.store.GetBalance(ctx, tenantID)
}

// resetIfDue applies and persists the cycle reset. On a write conflict
// another caller already applied it, so the re-read is authoritative.
func (s *Service) resetIfDue(ctx context.Context, bal *Balance) (*Balance, error) {
	now := s.now()
	if !bal.ResetDue(now) {
		return bal, nil
	}

	cfg, err := plan.For(bal.Tier)
	if err != nil {
		return nil, err
	}

	reset := ApplyResetIfDue(*bal, cfg, now)
	if err := s.store.PutBalance(ctx, &reset, bal.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			fresh, rerr := s.store.GetBalance(ctx, bal.TenantID)
			if rerr != nil {
				return nil, rerr
			}
			if fresh.ResetDue(now) {
				// Concurrent write was not the reset; apply ours on top.
				return s.resetIfDue(ctx, fresh)
			}
			return fresh, nil
		}
		return nil, fmt.Errorf("ledger: persist reset: %w", err)
	}
	reset.Version = bal.Version + 1
	return &reset, nil
}

// Charge debits amount from the tenant's balance as one atomically
// applied transaction. Charges are never rejected for insufficient
// credits. Concurrent charges for the same tenant serialize in the store;
// the final used-credit count is the exact sum of all charges.
func (s *Service) Charge(ctx context.Context, tenantID string, amount credits.Amount) (*Balance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	// Make sure the row exists and the cycle is current before the
	// increment; the increment itself is the store's atomic primitive.
	if _, err := s.GetOrCreate(ctx, tenantID, ""); err != nil {
		return nil, err
	}

	bal, err := s.store.AddUsedCredits(ctx, tenantID, amount)
	if err != nil {
		return nil, fmt.Errorf("ledger: charge: %w", err)
	}
	metrics.CreditsChargedTotal.Add(amount.Float())
	return bal, nil
}

// PurchaseAddOn credits purchased add-on credits to the balance.
func (s *Service) PurchaseAddOn(ctx context.Context, tenantID string, amount credits.Amount) (*Balance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.update(ctx, tenantID, func(b Balance) (Balance, error) {
		return PurchaseAddOn(b, amount, s.now()), nil
	})
}

// ChangeTier moves the tenant to a new plan. Used credits carry over
// unchanged; only the base allowance is re-read.
func (s *Service) ChangeTier(ctx context.Context, tenantID string, newTier plan.Tier) (*Balance, error) {
	cfg, err := plan.For(newTier)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, tenantID, func(b Balance) (Balance, error) {
		return ChangeTier(b, cfg, s.now()), nil
	})
}

// update runs a read → transform → optimistic-write loop, retrying on
// version conflicts.
func (s *Service) update(ctx context.Context, tenantID string, transform func(Balance) (Balance, error)) (*Balance, error) {
	var result *Balance
	err := retry.Do(ctx, casAttempts, 5*time.Millisecond, func() error {
		bal, err := s.GetOrCreate(ctx, tenantID, "")
		if err != nil {
			return retry.Permanent(err)
		}
		next, err := transform(*bal)
		if err != nil {
			return retry.Permanent(err)
		}
		if err := s.store.PutBalance(ctx, &next, bal.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				metrics.ChargeConflictsTotal.Inc()
				return err // retryable
			}
			return retry.Permanent(err)
		}
		next.Version = bal.Version + 1
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
