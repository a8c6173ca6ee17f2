// Package billing turns overage usage into invoice line items.
//
// The ledger never blocks work on an empty allowance; instead, credits
// used beyond the allowance are billed at the plan's pay-as-you-go rate
// when the monthly cycle closes. This package computes that amount and
// pushes it to the payment processor.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/ledger"
	"github.com/pixelmint/pixelmint/internal/plan"
	"github.com/pixelmint/pixelmint/internal/tenant"
)

// sweepBatchSize bounds one overage sweep.
const sweepBatchSize = 10000

// Reporter pushes one overage charge to the payment processor.
type Reporter interface {
	ReportOverage(ctx context.Context, customerID string, amountCents int64, description string) error
}

// Service computes overage charges at cycle close.
type Service struct {
	tenants  tenant.Store
	ledger   *ledger.Service
	reporter Reporter
	logger   *slog.Logger
}

// NewService creates a billing service.
func NewService(tenants tenant.Store, led *ledger.Service, reporter Reporter, logger *slog.Logger) *Service {
	return &Service{tenants: tenants, ledger: led, reporter: reporter, logger: logger}
}

// OverageCents converts an overage credit amount to invoice cents at the
// plan's pay-as-you-go rate, rounding up so fractions of a cent are never
// given away.
func OverageCents(overage credits.Amount, cfg plan.Config) int64 {
	if overage <= 0 {
		return 0
	}
	return int64(math.Ceil(overage.Float() * cfg.PayAsYouGoUSD * 100))
}

// ReportTenantOverage reports one tenant's current overage, if any.
// Returns the amount reported in cents.
//
// The balance is read without the lazy cycle reset: a sweep at or past
// the boundary must invoice the closing cycle's overage, not the fresh
// cycle's zero.
func (s *Service) ReportTenantOverage(ctx context.Context, t *tenant.Tenant) (int64, error) {
	bal, err := s.ledger.PeekBalance(ctx, t.ID)
	if errors.Is(err, ledger.ErrBalanceNotFound) {
		return 0, nil // never generated, nothing to bill
	}
	if err != nil {
		return 0, err
	}

	overage := -bal.AvailableCredits()
	if overage <= 0 {
		return 0, nil
	}

	cfg, err := plan.For(bal.Tier)
	if err != nil {
		return 0, err
	}
	cents := OverageCents(overage, cfg)

	if t.StripeCustomerID == "" {
		return 0, fmt.Errorf("billing: tenant %s has overage but no payment customer", t.ID)
	}

	desc := fmt.Sprintf("Pay-as-you-go: %s credits beyond the %s plan allowance", overage, bal.Tier)
	if err := s.reporter.ReportOverage(ctx, t.StripeCustomerID, cents, desc); err != nil {
		return 0, fmt.Errorf("billing: report overage for %s: %w", t.ID, err)
	}

	s.logger.Info("overage reported",
		"tenant", t.ID, "credits", overage, "cents", cents, "tier", bal.Tier)
	return cents, nil
}

// SweepOverages reports overage for every known tenant. Called at cycle
// close, before balances reset. Per-tenant failures are logged and
// skipped so one bad customer record doesn't stall the sweep.
func (s *Service) SweepOverages(ctx context.Context) error {
	tenants, err := s.tenants.List(ctx, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("billing: list tenants: %w", err)
	}

	for _, t := range tenants {
		if t.Status != tenant.StatusActive {
			continue
		}
		if _, err := s.ReportTenantOverage(ctx, t); err != nil {
			s.logger.Error("overage sweep failed for tenant", "tenant", t.ID, "error", err)
		}
	}
	return nil
}
