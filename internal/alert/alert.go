// Package alert decides when to notify account owners about credit usage.
//
// Three alert classes watch the ledger: warning at 80% of the allowance,
// critical at 95%, and overage whenever the signed available balance goes
// negative. Only the highest-priority applicable class fires, and each
// class observes a per-tenant cooldown so a busy tenant is not flooded.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixelmint/pixelmint/internal/ledger"
	"github.com/pixelmint/pixelmint/internal/metrics"
	"github.com/pixelmint/pixelmint/internal/notify"
)

// Class identifies an alert severity.
type Class string

const (
	ClassWarning  Class = "warning"
	ClassCritical Class = "critical"
	ClassOverage  Class = "overage"
)

// Usage thresholds as fractions of the total allowance.
const (
	WarningThreshold  = 0.80
	CriticalThreshold = 0.95
)

// DefaultCooldown is the minimum gap between two alerts of the same
// class for the same tenant.
const DefaultCooldown = 24 * time.Hour

// StateStore tracks the last-sent timestamp per tenant and class. The
// state is ephemeral by design: losing it degrades to re-sending an
// alert, never to silence.
type StateStore interface {
	LastSent(ctx context.Context, tenantID string, class Class) (time.Time, bool, error)
	MarkSent(ctx context.Context, tenantID string, class Class, at time.Time) error
}

// ContactResolver looks up the notification address for a tenant.
type ContactResolver interface {
	ContactEmail(ctx context.Context, tenantID string) (string, error)
}

// Publisher receives fired alerts for live streaming. Best-effort.
// Satisfied by *realtime.Hub.
type Publisher interface {
	PublishAlert(tenantID, class string)
}

// Result reports what CheckAndNotify decided.
type Result struct {
	Sent  bool
	Class Class // set when a class was applicable, even if suppressed or delivery failed
}

// Throttler evaluates usage against the thresholds and dispatches
// notifications through the sender.
type Throttler struct {
	state     StateStore
	contacts  ContactResolver
	sender    notify.Sender
	publisher Publisher // nil = no streaming
	cooldown  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewThrottler creates an alert throttler.
func NewThrottler(state StateStore, contacts ContactResolver, sender notify.Sender, cooldown time.Duration, logger *slog.Logger) *Throttler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Throttler{
		state:    state,
		contacts: contacts,
		sender:   sender,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the throttler clock (for tests).
func (t *Throttler) WithClock(now func() time.Time) *Throttler {
	t.now = now
	return t
}

// WithPublisher streams fired alerts to the given publisher.
func (t *Throttler) WithPublisher(p Publisher) *Throttler {
	t.publisher = p
	return t
}

// classify picks the highest-priority class applicable to the balance,
// or "" when usage is below every threshold. Priority: overage >
// critical > warning.
func classify(bal ledger.Balance) Class {
	if bal.AvailableCredits() < 0 {
		return ClassOverage
	}

	total := bal.BaseCredits + bal.PurchasedCredits
	if total <= 0 {
		return ""
	}
	pct := float64(bal.UsedCredits) / float64(total)

	switch {
	case pct >= CriticalThreshold:
		return ClassCritical
	case pct >= WarningThreshold:
		return ClassWarning
	default:
		return ""
	}
}

// CheckAndNotify evaluates the balance and sends at most one notification.
// It never returns an error: state-store and delivery failures are logged
// and reported as Sent=false. Alerting must not affect the request path.
func (t *Throttler) CheckAndNotify(ctx context.Context, tenantID string, bal ledger.Balance) Result {
	class := classify(bal)
	if class == "" {
		return Result{}
	}

	now := t.now()
	last, ok, err := t.state.LastSent(ctx, tenantID, class)
	if err != nil {
		t.logger.Warn("alert state read failed", "tenant", tenantID, "class", class, "error", err)
		return Result{Class: class}
	}
	if ok && now.Sub(last) < t.cooldown {
		return Result{Class: class} // suppressed by cooldown
	}

	email, err := t.contacts.ContactEmail(ctx, tenantID)
	if err != nil || email == "" {
		t.logger.Warn("no contact email for tenant, alert dropped", "tenant", tenantID, "class", class, "error", err)
		return Result{Class: class}
	}

	subject, body := compose(class, bal)
	if err := t.sender.Send(ctx, email, subject, body); err != nil {
		metrics.AlertDeliveryErrorsTotal.Inc()
		t.logger.Warn("alert delivery failed", "tenant", tenantID, "class", class, "error", err)
		return Result{Class: class}
	}

	if err := t.state.MarkSent(ctx, tenantID, class, now); err != nil {
		// Worst case the alert repeats before the cooldown elapses.
		t.logger.Warn("alert state write failed", "tenant", tenantID, "class", class, "error", err)
	}

	metrics.AlertsSentTotal.WithLabelValues(string(class)).Inc()
	if t.publisher != nil {
		t.publisher.PublishAlert(tenantID, string(class))
	}
	return Result{Sent: true, Class: class}
}

// compose builds the notification subject and body for a class.
func compose(class Class, bal ledger.Balance) (string, string) {
	total := bal.BaseCredits + bal.PurchasedCredits
	switch class {
	case ClassOverage:
		over := -bal.AvailableCredits()
		return "You've used all your monthly credits",
			fmt.Sprintf("Your account is %s credits over this month's allowance. "+
				"Additional generations are billed at your plan's pay-as-you-go rate. "+
				"Your allowance resets on %s.", over, bal.ResetDate.Format("January 2"))
	case ClassCritical:
		return "You're almost out of credits",
			fmt.Sprintf("You've used %s of your %s monthly credits. "+
				"Generations beyond your allowance are billed at your plan's pay-as-you-go rate.",
				bal.UsedCredits, total)
	default:
		return "You've used most of your monthly credits",
			fmt.Sprintf("You've used %s of your %s monthly credits. "+
				"Your allowance resets on %s.", bal.UsedCredits, total, bal.ResetDate.Format("January 2"))
	}
}
