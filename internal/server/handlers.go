package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/dispatch"
	"github.com/pixelmint/pixelmint/internal/idgen"
	"github.com/pixelmint/pixelmint/internal/logging"
	"github.com/pixelmint/pixelmint/internal/plan"
	"github.com/pixelmint/pixelmint/internal/provider"
	"github.com/pixelmint/pixelmint/internal/tenant"
	"github.com/pixelmint/pixelmint/internal/usage"
)

// createGeneration handles POST /v1/generations
func (s *Server) createGeneration(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		TenantID    string            `json:"tenantId" binding:"required"`
		Resolution  string            `json:"resolution"`
		Reference   string            `json:"reference"`
		StyleParams map[string]string `json:"styleParams"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tenantId is required",
		})
		return
	}
	if req.Resolution == "" {
		req.Resolution = "1024x1024"
	}

	result, err := s.dispatcher.Generate(ctx, dispatch.Request{
		TenantID:    req.TenantID,
		Resolution:  req.Resolution,
		Reference:   req.Reference,
		StyleParams: req.StyleParams,
	})
	if err != nil {
		s.writeGenerationError(c, err)
		return
	}

	resp := gin.H{
		"artifact": gin.H{
			"url":        result.Artifact.URL,
			"model":      result.Artifact.Model,
			"resolution": result.Artifact.Resolution,
		},
		"creditsCharged": result.CreditsCharged.String(),
		"estimatedCost":  result.Artifact.EstimatedCostUSD,
		"isOverage":      result.IsOverage,
		"fellBack":       result.FellBack,
	}
	if result.Balance != nil {
		resp["creditsRemaining"] = result.Balance.AvailableCredits().Clamped().String()
	}
	c.JSON(http.StatusCreated, resp)
}

// writeGenerationError maps dispatch failures onto HTTP statuses.
func (s *Server) writeGenerationError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	// Client went away; nothing useful to write.
	if ctx.Err() != nil {
		c.Status(499)
		return
	}

	var derr *dispatch.Error
	if errors.As(err, &derr) {
		if derr.Retryable {
			c.Header("Retry-After", "30")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "provider_unavailable",
				"message": "Both generation tiers are currently unavailable. Try again shortly.",
			})
			return
		}

		var perr *provider.Error
		if errors.As(derr.Err, &perr) && perr.Kind == provider.KindRejected {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "generation_rejected",
				"message": perr.Message,
			})
			return
		}

		logging.L(ctx).Error("generation failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "provider_error",
			"message": "The generation provider returned an unexpected error",
		})
		return
	}

	logging.L(ctx).Error("generation failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Failed to process generation request",
	})
}

// listPlans handles GET /v1/plans
func (s *Server) listPlans(c *gin.Context) {
	tiers := plan.Tiers()
	out := make([]gin.H, 0, len(tiers))
	for _, t := range tiers {
		cfg, err := plan.For(t)
		if err != nil {
			continue
		}
		out = append(out, gin.H{
			"tier":            cfg.Tier,
			"monthlyPriceUsd": cfg.MonthlyPriceUSD,
			"baseCredits":     cfg.BaseCredits.String(),
			"payAsYouGoUsd":   cfg.PayAsYouGoUSD,
			"features":        cfg.Features,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// createTenant handles POST /v1/tenants
func (s *Server) createTenant(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Name             string `json:"name" binding:"required"`
		Email            string `json:"email" binding:"required"`
		Tier             string `json:"tier"`
		StripeCustomerID string `json:"stripeCustomerId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name and email are required",
		})
		return
	}

	tier := plan.Tier(req.Tier)
	if req.Tier == "" {
		tier = plan.Tier(s.cfg.DefaultTier)
	}
	if !plan.Valid(tier) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_tier",
			"message": "tier must be one of: essential, studio, agency",
		})
		return
	}

	t := &tenant.Tenant{
		ID:               idgen.WithPrefix("ten_"),
		Name:             req.Name,
		Email:            req.Email,
		Tier:             tier,
		StripeCustomerID: req.StripeCustomerID,
		Status:           tenant.StatusActive,
	}
	if err := s.tenants.Store().Create(ctx, t); err != nil {
		logging.L(ctx).Error("failed to create tenant", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create tenant",
		})
		return
	}

	// Seed the credit balance so the first generation doesn't pay the
	// lazy-create cost.
	if _, err := s.ledger.GetOrCreate(ctx, t.ID, t.Tier); err != nil {
		logging.L(ctx).Warn("failed to seed balance", "tenant", t.ID, "error", err)
	}

	c.JSON(http.StatusCreated, gin.H{"tenant": t})
}

// getTenant handles GET /v1/tenants/:id
func (s *Server) getTenant(c *gin.Context) {
	t, err := s.tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "tenant_not_found",
			"message": "No tenant with that ID",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// getTenantStats handles GET /v1/tenants/:id/stats
func (s *Server) getTenantStats(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("id")

	// Seed with the directory tier so an unseen tenant's first stats view
	// reflects its actual plan, not the default.
	if _, err := s.ledger.GetOrCreate(ctx, tenantID, s.tenants.TierFor(ctx, tenantID)); err != nil {
		logging.L(ctx).Error("failed to load balance", "tenant", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load credit stats",
		})
		return
	}

	stats, err := s.ledger.Stats(ctx, tenantID)
	if err != nil {
		logging.L(ctx).Error("failed to build stats", "tenant", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load credit stats",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// listTenantUsage handles GET /v1/tenants/:id/usage
func (s *Server) listTenantUsage(c *gin.Context) {
	ctx := c.Request.Context()

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := s.recorder.List(ctx, c.Param("id"), limit)
	if err != nil {
		logging.L(ctx).Error("failed to list usage", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list usage records",
		})
		return
	}
	if records == nil {
		records = []*usage.Record{} // keep json as [] not null
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// purchaseCredits handles POST /v1/tenants/:id/credits
func (s *Server) purchaseCredits(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Credits string `json:"credits" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "credits is required",
		})
		return
	}

	amount, ok := credits.Parse(req.Credits)
	if !ok || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "credits must be a positive number",
		})
		return
	}

	// Seed with the directory tier so an unseen tenant's balance starts
	// on its actual plan.
	tenantID := c.Param("id")
	if _, err := s.ledger.GetOrCreate(ctx, tenantID, s.tenants.TierFor(ctx, tenantID)); err != nil {
		logging.L(ctx).Error("failed to load balance", "tenant", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to apply credit purchase",
		})
		return
	}

	bal, err := s.ledger.PurchaseAddOn(ctx, tenantID, amount)
	if err != nil {
		logging.L(ctx).Error("failed to purchase credits", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to apply credit purchase",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"purchased": amount.String(),
		"available": bal.AvailableCredits().Clamped().String(),
	})
}

// changeTier handles POST /v1/tenants/:id/tier
func (s *Server) changeTier(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("id")

	var req struct {
		Tier string `json:"tier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tier is required",
		})
		return
	}

	newTier := plan.Tier(req.Tier)
	if !plan.Valid(newTier) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_tier",
			"message": "tier must be one of: essential, studio, agency",
		})
		return
	}

	// Seed with the directory tier so the carried-over usage is counted
	// against the plan the tenant was actually on.
	if _, err := s.ledger.GetOrCreate(ctx, tenantID, s.tenants.TierFor(ctx, tenantID)); err != nil {
		logging.L(ctx).Error("failed to load balance", "tenant", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to change tier",
		})
		return
	}

	bal, err := s.ledger.ChangeTier(ctx, tenantID, newTier)
	if err != nil {
		logging.L(ctx).Error("failed to change tier", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to change tier",
		})
		return
	}

	// Keep the directory in sync; the ledger row is the billing truth.
	if t, err := s.tenants.Get(ctx, tenantID); err == nil {
		t.Tier = newTier
		if err := s.tenants.Store().Update(ctx, t); err != nil {
			logging.L(ctx).Warn("failed to update tenant tier", "tenant", tenantID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":      bal.Tier,
		"available": bal.AvailableCredits().Clamped().String(),
	})
}

// sweepOverages handles POST /v1/admin/billing/sweep
func (s *Server) sweepOverages(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.billing.SweepOverages(ctx); err != nil {
		logging.L(ctx).Error("overage sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Overage sweep failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
