package ledger

import (
	"context"
	"time"

	"github.com/pixelmint/pixelmint/internal/plan"
)

// Stats is the read-only derived view of a tenant's credit position.
// Available is clamped for display; the overage fields carry the signed
// truth.
type Stats struct {
	TenantID        string    `json:"tenantId"`
	Tier            plan.Tier `json:"tier"`
	TotalCredits    float64   `json:"totalCredits"`
	UsedCredits     float64   `json:"usedCredits"`
	Available       float64   `json:"available"` // clamped to 0
	OverageCredits  float64   `json:"overageCredits"`
	OverageCostUSD  float64   `json:"overageCostUsd"`
	UsagePercent    float64   `json:"usagePercent"`
	RemainingDays   int       `json:"remainingDays"`
	IsOverage       bool      `json:"isOverage"`
	ResetDate       time.Time `json:"resetDate"`
}

// Stats builds the admin stats view for a tenant. Read-only: it applies
// the reset transform like any other read but performs no other mutation.
func (s *Service) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	bal, err := s.GetOrCreate(ctx, tenantID, "")
	if err != nil {
		return nil, err
	}

	cfg, err := plan.For(bal.Tier)
	if err != nil {
		return nil, err
	}

	total := bal.BaseCredits + bal.PurchasedCredits
	available := bal.AvailableCredits()

	stats := &Stats{
		TenantID:     bal.TenantID,
		Tier:         bal.Tier,
		TotalCredits: total.Float(),
		UsedCredits:  bal.UsedCredits.Float(),
		Available:    available.Clamped().Float(),
		IsOverage:    available < 0,
		ResetDate:    bal.ResetDate,
	}

	if available < 0 {
		overage := -available
		stats.OverageCredits = overage.Float()
		stats.OverageCostUSD = overage.Float() * cfg.PayAsYouGoUSD
	}

	if total > 0 {
		stats.UsagePercent = bal.UsedCredits.Float() / total.Float() * 100
	}

	if days := int(bal.ResetDate.Sub(s.now()).Hours() / 24); days > 0 {
		stats.RemainingDays = days
	}

	return stats, nil
}
