// Package quota computes credit costs and overage status.
//
// Evaluation is advisory input to billing and alerting. It is never a
// gate on dispatch: an account in overage is still served.
package quota

import (
	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/ledger"
)

// costTable maps output resolution to credit cost. Costs track provider
// pricing: standard square output is the unit, larger outputs cost
// proportionally more.
var costTable = map[string]credits.Amount{
	"512x512":   credits.FromCredits(1),
	"1024x1024": credits.FromCredits(1),
	"1024x1792": 150,
	"1792x1024": 150,
	"2048x2048": 250,
}

// DefaultCost applies to resolutions not in the table.
const DefaultCost = credits.Amount(credits.PerCredit)

// CostOf returns the credit cost of generating at the given resolution.
func CostOf(resolution string) credits.Amount {
	if cost, ok := costTable[resolution]; ok {
		return cost
	}
	return DefaultCost
}

// Evaluation is the result of a quota check.
type Evaluation struct {
	CreditsRequired credits.Amount
	AvailableBefore credits.Amount // signed: negative means already in overage
	IsOverage       bool           // this request would not be covered by the allowance
}

// Evaluate computes the cost and overage status of a request against a
// balance snapshot. Pure: no side effects, never fails.
func Evaluate(bal ledger.Balance, resolution string) Evaluation {
	required := CostOf(resolution)
	available := bal.AvailableCredits()
	return Evaluation{
		CreditsRequired: required,
		AvailableBefore: available,
		IsOverage:       available < required,
	}
}
