// Package credits provides shared credit parsing and formatting utilities.
//
// Credits use 2 decimal places. All amounts are stored as int64 in the
// smallest unit (1 credit = 100 units), so ledger arithmetic stays exact
// even for fractional resolution costs.
package credits

import (
	"fmt"
	"strconv"
	"strings"
)

// Decimals is the number of decimal places in a credit amount.
const Decimals = 2

// PerCredit is the number of smallest units in one credit.
const PerCredit = 100

// Amount is a credit quantity in smallest units. It is signed: a negative
// Amount represents overage.
type Amount int64

// FromCredits converts a whole-credit count to an Amount.
func FromCredits(n int64) Amount {
	return Amount(n * PerCredit)
}

// Parse converts a decimal string (e.g. "1.5") to an Amount (150).
// Returns (0, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are accepted (overage values round-trip)
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (Amount, bool) {
	if s == "" {
		return 0, true
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	v, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return Amount(v), true
}

// String formats the amount as a decimal string with exactly 2 decimal
// places (e.g. "1.50", "-3.00").
func (a Amount) String() string {
	v := int64(a)
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d.%02d", v/PerCredit, v%PerCredit)
	if neg {
		s = "-" + s
	}
	return s
}

// Float returns the amount as a float64 credit count for JSON display.
func (a Amount) Float() float64 {
	return float64(a) / PerCredit
}

// Clamped returns the amount, floored at zero. Display-only: internal
// calculations always use the signed value.
func (a Amount) Clamped() Amount {
	if a < 0 {
		return 0
	}
	return a
}
