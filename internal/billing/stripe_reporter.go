package billing

import (
	"context"
	"sync"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/invoiceitem"
)

// StripeReporter reports overage as pending invoice items, picked up by
// the customer's next subscription invoice.
type StripeReporter struct{}

// NewStripeReporter configures the Stripe client and returns a reporter.
func NewStripeReporter(apiKey string) *StripeReporter {
	stripe.Key = apiKey
	return &StripeReporter{}
}

func (r *StripeReporter) ReportOverage(_ context.Context, customerID string, amountCents int64, description string) error {
	_, err := invoiceitem.New(&stripe.InvoiceItemParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
	})
	return err
}

// MemoryReporter records overage charges in memory for demo mode and tests.
type MemoryReporter struct {
	mu      sync.Mutex
	charges []MemoryCharge
}

// MemoryCharge is one recorded overage report.
type MemoryCharge struct {
	CustomerID  string
	AmountCents int64
	Description string
}

// NewMemoryReporter creates an in-memory reporter.
func NewMemoryReporter() *MemoryReporter {
	return &MemoryReporter{}
}

func (r *MemoryReporter) ReportOverage(_ context.Context, customerID string, amountCents int64, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charges = append(r.charges, MemoryCharge{customerID, amountCents, description})
	return nil
}

// Charges returns a copy of the recorded charges.
func (r *MemoryReporter) Charges() []MemoryCharge {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MemoryCharge, len(r.charges))
	copy(out, r.charges)
	return out
}

// Compile-time assertions.
var (
	_ Reporter = (*StripeReporter)(nil)
	_ Reporter = (*MemoryReporter)(nil)
)
