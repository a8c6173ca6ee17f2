// Package usage appends immutable usage events for billing reconciliation.
//
// Records are write-once: nothing in this subsystem updates or deletes
// them. The ledger and the usage log are deliberately independent — the
// log is what reconciliation replays when a charge transaction failed
// after an artifact was delivered.
package usage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/idgen"
	"github.com/pixelmint/pixelmint/internal/metrics"
)

// Record is one completed generation, append-ordered by completion time.
type Record struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenantId"`
	CreditsCharged   credits.Amount `json:"creditsCharged"`
	ModelUsed        string         `json:"modelUsed"`
	Resolution       string         `json:"resolution"`
	EstimatedCostUSD float64        `json:"estimatedCostUsd"`
	IdempotencyKey   string         `json:"idempotencyKey"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// Store persists usage records. Append is idempotent on IdempotencyKey:
// duplicate suppression is the store's responsibility, so retried appends
// are safe.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	List(ctx context.Context, tenantID string, limit int) ([]*Record, error)
}

// Publisher receives appended records for live streaming. Best-effort.
type Publisher interface {
	PublishUsage(rec *Record)
}

// Recorder appends usage events and fans them out to subscribers.
type Recorder struct {
	store     Store
	publisher Publisher // nil = no streaming
	logger    *slog.Logger
}

// NewRecorder creates a usage recorder.
func NewRecorder(store Store, publisher Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, publisher: publisher, logger: logger}
}

// Record appends one usage event. The idempotency key is derived from
// tenant, completion time, and reference so an at-least-once caller can
// retry without double-counting.
func (r *Recorder) Record(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = idgen.WithPrefix("usg_")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.IdempotencyKey == "" {
		rec.IdempotencyKey = IdempotencyKey(rec.TenantID, rec.CreatedAt, rec.ModelUsed+rec.Resolution)
	}

	if err := r.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("usage: append: %w", err)
	}
	metrics.UsageRecordsTotal.Inc()

	if r.publisher != nil {
		r.publisher.PublishUsage(rec)
	}
	return nil
}

// List returns the most recent usage records for a tenant.
func (r *Recorder) List(ctx context.Context, tenantID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.store.List(ctx, tenantID, limit)
}

// IdempotencyKey derives a stable dedup key from tenant, timestamp, and
// request reference.
func IdempotencyKey(tenantID string, at time.Time, reference string) string {
	h := sha256.Sum256([]byte(tenantID + "|" + at.UTC().Format(time.RFC3339Nano) + "|" + reference))
	return hex.EncodeToString(h[:16])
}
