package ledger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/pixelmint/pixelmint/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() *Service {
	return NewService(NewMemoryStore(), plan.TierEssential, slog.Default())
}

func TestGetOrCreate_SeedsFromDefaultTier(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	bal, err := svc.GetOrCreate(ctx, "ten_new", "")
	require.NoError(t, err)
	assert.Equal(t, plan.TierEssential, bal.Tier)
	assert.Equal(t, credits.FromCredits(300), bal.BaseCredits)
	assert.Equal(t, int64(1), bal.Version)

	// Second read returns the same row, not a fresh seed
	again, err := svc.GetOrCreate(ctx, "ten_new", "")
	require.NoError(t, err)
	assert.Equal(t, bal.ResetDate, again.ResetDate)
}

func TestGetOrCreate_ExplicitTier(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	bal, err := svc.GetOrCreate(ctx, "ten_studio", plan.TierStudio)
	require.NoError(t, err)
	assert.Equal(t, plan.TierStudio, bal.Tier)
	assert.Equal(t, credits.FromCredits(800), bal.BaseCredits)
}

func TestGetOrCreate_UnknownTier(t *testing.T) {
	_, err := testService().GetOrCreate(context.Background(), "ten_x", "platinum")
	assert.ErrorIs(t, err, plan.ErrUnknownTier)
}

func TestGetOrCreate_AppliesResetOnRead(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	bal, err := svc.GetOrCreate(ctx, "ten_1", "")
	require.NoError(t, err)

	_, err = svc.Charge(ctx, "ten_1", credits.FromCredits(200))
	require.NoError(t, err)

	// Cross the cycle boundary; the next read resets
	now = time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	fresh, err := svc.GetOrCreate(ctx, "ten_1", "")
	require.NoError(t, err)
	assert.Equal(t, credits.Amount(0), fresh.UsedCredits)
	assert.True(t, fresh.ResetDate.After(now))
	assert.Greater(t, fresh.Version, bal.Version)
}

func TestCharge_InvalidAmount(t *testing.T) {
	svc := testService()
	_, err := svc.Charge(context.Background(), "ten_1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Charge(context.Background(), "ten_1", credits.FromCredits(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCharge_IntoOverage(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	_, err := svc.GetOrCreate(ctx, "ten_1", "")
	require.NoError(t, err)

	bal, err := svc.Charge(ctx, "ten_1", credits.FromCredits(301))
	require.NoError(t, err)
	assert.Equal(t, credits.FromCredits(-1), bal.AvailableCredits())
}

func TestCharge_ConcurrentChargesSumExactly(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	const workers = 50
	const perWorker = 4

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := svc.Charge(ctx, "ten_hot", credits.FromCredits(1))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	bal, err := svc.GetOrCreate(ctx, "ten_hot", "")
	require.NoError(t, err)
	assert.Equal(t, credits.FromCredits(workers*perWorker), bal.UsedCredits)
}

func TestPurchaseAddOn(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	bal, err := svc.PurchaseAddOn(ctx, "ten_1", credits.FromCredits(100))
	require.NoError(t, err)
	assert.Equal(t, credits.FromCredits(100), bal.PurchasedCredits)
	assert.Equal(t, credits.FromCredits(400), bal.AvailableCredits())

	_, err = svc.PurchaseAddOn(ctx, "ten_1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestChangeTier_Service(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	_, err := svc.Charge(ctx, "ten_1", credits.FromCredits(50))
	require.NoError(t, err)

	bal, err := svc.ChangeTier(ctx, "ten_1", plan.TierAgency)
	require.NoError(t, err)
	assert.Equal(t, plan.TierAgency, bal.Tier)
	assert.Equal(t, credits.FromCredits(2000), bal.BaseCredits)
	assert.Equal(t, credits.FromCredits(50), bal.UsedCredits)

	_, err = svc.ChangeTier(ctx, "ten_1", "platinum")
	assert.ErrorIs(t, err, plan.ErrUnknownTier)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	_, err := svc.Charge(ctx, "ten_1", credits.FromCredits(310))
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "ten_1")
	require.NoError(t, err)
	assert.True(t, stats.IsOverage)
	assert.Equal(t, 0.0, stats.Available)
	assert.Equal(t, 10.0, stats.OverageCredits)
	assert.InDelta(t, 2.0, stats.OverageCostUSD, 1e-9) // 10 credits * $0.20
}

func TestStats_RemainingDaysUsesServiceClock(t *testing.T) {
	ctx := context.Background()
	svc := testService()

	// Seeded on March 10, cycle resets April 1: 21 days remain.
	svc.WithClock(func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	})
	_, err := svc.GetOrCreate(ctx, "ten_1", "")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "ten_1")
	require.NoError(t, err)
	assert.Equal(t, 21, stats.RemainingDays)

	// Same balance read a week later under the same clock control.
	svc.WithClock(func() time.Time {
		return time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	})
	stats, err = svc.Stats(ctx, "ten_1")
	require.NoError(t, err)
	assert.Equal(t, 14, stats.RemainingDays)
}

func TestMemoryStore_VersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cfg, err := plan.For(plan.TierEssential)
	require.NoError(t, err)
	bal := NewBalance("ten_1", cfg, time.Now())

	require.NoError(t, store.PutBalance(ctx, &bal, 0))

	// Create again: conflict
	assert.ErrorIs(t, store.PutBalance(ctx, &bal, 0), ErrVersionConflict)

	// Stale version: conflict
	assert.ErrorIs(t, store.PutBalance(ctx, &bal, 99), ErrVersionConflict)

	// Correct version: ok
	require.NoError(t, store.PutBalance(ctx, &bal, 1))

	got, err := store.GetBalance(ctx, "ten_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}
