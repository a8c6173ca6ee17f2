// Package plan defines the subscription plan catalogue.
//
// The catalogue is the single owner of tier pricing: base credit
// allowances, overage unit prices, and feature flags. It is pure data
// and is never mutated at runtime.
package plan

import (
	"errors"
	"fmt"

	"github.com/pixelmint/pixelmint/internal/credits"
)

// ErrUnknownTier is returned for tiers outside the supported set.
// It indicates a configuration or provisioning error, not a per-request
// condition.
var ErrUnknownTier = errors.New("plan: unknown tier")

// Tier identifies a subscription tier.
type Tier string

const (
	TierEssential Tier = "essential"
	TierStudio    Tier = "studio"
	TierAgency    Tier = "agency"
)

// Config defines the limits and pricing for a tier.
type Config struct {
	Tier            Tier
	MonthlyPriceUSD float64
	BaseCredits     credits.Amount // monthly allowance, reset each cycle
	PayAsYouGoUSD   float64        // price per overage credit
	Features        map[string]bool
}

// catalogue is the hardcoded plan table. One row per tier.
var catalogue = map[Tier]Config{
	TierEssential: {
		Tier:            TierEssential,
		MonthlyPriceUSD: 39,
		BaseCredits:     credits.FromCredits(300),
		PayAsYouGoUSD:   0.20,
		Features: map[string]bool{
			"premium_resolutions": false,
			"priority_queue":      false,
		},
	},
	TierStudio: {
		Tier:            TierStudio,
		MonthlyPriceUSD: 79,
		BaseCredits:     credits.FromCredits(800),
		PayAsYouGoUSD:   0.15,
		Features: map[string]bool{
			"premium_resolutions": true,
			"priority_queue":      false,
		},
	},
	TierAgency: {
		Tier:            TierAgency,
		MonthlyPriceUSD: 149,
		BaseCredits:     credits.FromCredits(2000),
		PayAsYouGoUSD:   0.10,
		Features: map[string]bool{
			"premium_resolutions": true,
			"priority_queue":      true,
		},
	},
}

// For returns the plan config for a tier, or ErrUnknownTier.
func For(t Tier) (Config, error) {
	cfg, ok := catalogue[t]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownTier, t)
	}
	return cfg, nil
}

// Valid returns true if the tier is in the supported set.
func Valid(t Tier) bool {
	_, ok := catalogue[t]
	return ok
}

// Tiers returns the supported tiers in ascending price order.
func Tiers() []Tier {
	return []Tier{TierEssential, TierStudio, TierAgency}
}
