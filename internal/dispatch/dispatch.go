// Package dispatch routes generation requests through the provider tiers
// and settles credits for completed work.
//
// The request path is: evaluate quota (advisory), call the primary model,
// fall back to the secondary model on a transient failure, then charge the
// ledger and append the usage record. A charge is applied only after an
// artifact exists, so a failed or cancelled generation never costs credits.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixelmint/pixelmint/internal/alert"
	"github.com/pixelmint/pixelmint/internal/circuitbreaker"
	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/ledger"
	"github.com/pixelmint/pixelmint/internal/metrics"
	"github.com/pixelmint/pixelmint/internal/plan"
	"github.com/pixelmint/pixelmint/internal/provider"
	"github.com/pixelmint/pixelmint/internal/quota"
	"github.com/pixelmint/pixelmint/internal/traces"
	"github.com/pixelmint/pixelmint/internal/usage"
)

// Error is a classified dispatch failure. Retryable means both provider
// tiers were unavailable and the client may try again later; otherwise
// the request itself was rejected and retrying the same input won't help.
type Error struct {
	Retryable bool
	Model     string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch: model %s: %v", e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Request is one generation request.
type Request struct {
	TenantID    string
	Resolution  string
	Reference   string
	StyleParams map[string]string
}

// Result is a completed generation with its settlement details.
type Result struct {
	Artifact       *provider.Artifact
	CreditsCharged credits.Amount
	IsOverage      bool // this request ran beyond the monthly allowance
	FellBack       bool // served by the fallback model
	Balance        *ledger.Balance
}

// TierResolver maps a tenant to its subscription tier.
type TierResolver interface {
	TierFor(ctx context.Context, tenantID string) plan.Tier
}

// Alerter is notified after settlement with the post-charge balance.
// Satisfied by *alert.Throttler.
type Alerter interface {
	CheckAndNotify(ctx context.Context, tenantID string, bal ledger.Balance) alert.Result
}

// Service is the generation dispatcher.
type Service struct {
	tiers    TierResolver
	ledger   *ledger.Service
	recorder *usage.Recorder
	client   provider.Client
	breaker  *circuitbreaker.Breaker
	alerter  Alerter // nil = alerting disabled
	primary  string
	fallback string
	logger   *slog.Logger
}

// NewService creates a dispatcher routing to primary with fallback as the
// secondary tier.
func NewService(
	tiers TierResolver,
	led *ledger.Service,
	recorder *usage.Recorder,
	client provider.Client,
	breaker *circuitbreaker.Breaker,
	alerter Alerter,
	primary, fallback string,
	logger *slog.Logger,
) *Service {
	return &Service{
		tiers:    tiers,
		ledger:   led,
		recorder: recorder,
		client:   client,
		breaker:  breaker,
		alerter:  alerter,
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Generate runs one request through the full path: quota evaluation,
// provider call with single-step fallback, charge, usage record, and
// async alerting.
//
// Fallback happens only on transient provider failures (rate limiting,
// unavailability, an open circuit). Rejections are terminal immediately:
// a model that refused the input is not routed around, because the
// fallback would refuse it too and the retry would double provider spend.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "dispatch.Generate",
		traces.Tenant(req.TenantID), traces.Resolution(req.Resolution))
	defer span.End()

	tier := s.tiers.TierFor(ctx, req.TenantID)
	bal, err := s.ledger.GetOrCreate(ctx, req.TenantID, tier)
	if err != nil {
		return nil, err
	}
	eval := quota.Evaluate(*bal, req.Resolution)

	preq := provider.GenerateRequest{
		Model:       s.primary,
		Resolution:  req.Resolution,
		Reference:   req.Reference,
		StyleParams: req.StyleParams,
	}

	artifact, fellBack, err := s.callWithFallback(ctx, preq)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Artifact:       artifact,
		CreditsCharged: eval.CreditsRequired,
		IsOverage:      eval.IsOverage,
		FellBack:       fellBack,
	}

	// Settlement. The artifact is already delivered at this point, so a
	// charge failure is surfaced to reconciliation, not to the caller.
	charged, err := s.ledger.Charge(ctx, req.TenantID, eval.CreditsRequired)
	if err != nil {
		metrics.ChargeFailuresTotal.Inc()
		s.logger.Error("charge failed after successful generation",
			"tenant", req.TenantID, "credits", eval.CreditsRequired, "error", err)
	} else {
		result.Balance = charged
	}

	rec := &usage.Record{
		TenantID:         req.TenantID,
		CreditsCharged:   eval.CreditsRequired,
		ModelUsed:        artifact.Model,
		Resolution:       artifact.Resolution,
		EstimatedCostUSD: artifact.EstimatedCostUSD,
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.logger.Error("usage record append failed", "tenant", req.TenantID, "error", err)
	}

	if s.alerter != nil && charged != nil {
		// Alerting is off the request path. Detach from the request
		// context so a fast client disconnect doesn't drop the alert.
		go s.alerter.CheckAndNotify(context.WithoutCancel(ctx), req.TenantID, *charged)
	}

	return result, nil
}

// callWithFallback tries the primary model, then the fallback once if the
// primary failed transiently. Context cancellation aborts immediately.
func (s *Service) callWithFallback(ctx context.Context, req provider.GenerateRequest) (*provider.Artifact, bool, error) {
	req.Model = s.primary
	artifact, err := s.attempt(ctx, req)
	if err == nil {
		return artifact, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	var perr *provider.Error
	if !errors.As(err, &perr) || !perr.Transient() {
		return nil, false, &Error{Model: s.primary, Err: err}
	}

	s.logger.Warn("primary model unavailable, trying fallback",
		"primary", s.primary, "fallback", s.fallback, "kind", perr.Kind)
	metrics.GenerationFallbacksTotal.Inc()

	req.Model = s.fallback
	artifact, err = s.attempt(ctx, req)
	if err == nil {
		return artifact, true, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	if errors.As(err, &perr) && perr.Transient() {
		return nil, false, &Error{Retryable: true, Model: s.fallback, Err: err}
	}
	return nil, false, &Error{Model: s.fallback, Err: err}
}

// attempt runs one provider call through the circuit breaker. An open
// circuit is reported as the model being unavailable, without spending a
// call against it.
func (s *Service) attempt(ctx context.Context, req provider.GenerateRequest) (*provider.Artifact, error) {
	if !s.breaker.Allow(req.Model) {
		metrics.GenerationsTotal.WithLabelValues(req.Model, "circuit_open").Inc()
		return nil, &provider.Error{
			Kind:    provider.KindUnavailable,
			Model:   req.Model,
			Message: "circuit open",
		}
	}

	ctx, span := traces.StartSpan(ctx, "provider.Generate", traces.Model(req.Model))
	defer span.End()

	start := time.Now()
	artifact, err := s.client.Generate(ctx, req)
	metrics.GenerationDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())

	if err != nil {
		var perr *provider.Error
		if errors.As(err, &perr) && perr.Transient() {
			// Only availability failures count against the circuit;
			// a rejected input says nothing about model health.
			s.breaker.RecordFailure(req.Model)
		}
		metrics.GenerationsTotal.WithLabelValues(req.Model, outcome(err)).Inc()
		return nil, err
	}

	s.breaker.RecordSuccess(req.Model)
	metrics.GenerationsTotal.WithLabelValues(req.Model, "success").Inc()
	return artifact, nil
}

func outcome(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return string(perr.Kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}
