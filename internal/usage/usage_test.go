package usage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pixelmint/pixelmint/internal/credits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_FillsFields(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, nil, slog.Default())

	r := &Record{
		TenantID:       "ten_1",
		CreditsCharged: credits.FromCredits(1),
		ModelUsed:      "gemini-2.5-flash-image",
		Resolution:     "1024x1024",
	}
	require.NoError(t, rec.Record(context.Background(), r))

	assert.NotEmpty(t, r.ID)
	assert.Contains(t, r.ID, "usg_")
	assert.NotEmpty(t, r.IdempotencyKey)
	assert.False(t, r.CreatedAt.IsZero())
}

func TestRecorder_PublishesToSubscribers(t *testing.T) {
	published := make(chan *Record, 1)
	rec := NewRecorder(NewMemoryStore(), publisherFunc(func(r *Record) { published <- r }), slog.Default())

	require.NoError(t, rec.Record(context.Background(), &Record{TenantID: "ten_1"}))

	select {
	case r := <-published:
		assert.Equal(t, "ten_1", r.TenantID)
	default:
		t.Fatal("record was not published")
	}
}

type publisherFunc func(*Record)

func (f publisherFunc) PublishUsage(r *Record) { f(r) }

func TestMemoryStore_IdempotentAppend(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	r := &Record{ID: "usg_1", TenantID: "ten_1", IdempotencyKey: "key-1", CreatedAt: time.Now()}
	require.NoError(t, store.Append(ctx, r))
	require.NoError(t, store.Append(ctx, r)) // duplicate delivery

	records, err := store.List(ctx, "ten_1", 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryStore_ListNewestFirstPerTenant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i, id := range []string{"usg_1", "usg_2", "usg_3"} {
		tenant := "ten_a"
		if i == 1 {
			tenant = "ten_b"
		}
		require.NoError(t, store.Append(ctx, &Record{ID: id, TenantID: tenant, IdempotencyKey: id}))
	}

	records, err := store.List(ctx, "ten_a", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "usg_3", records[0].ID)
	assert.Equal(t, "usg_1", records[1].ID)

	// Limit respected
	records, err = store.List(ctx, "ten_a", 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestIdempotencyKey_Stable(t *testing.T) {
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	k1 := IdempotencyKey("ten_1", at, "ref")
	k2 := IdempotencyKey("ten_1", at, "ref")
	k3 := IdempotencyKey("ten_1", at.Add(time.Nanosecond), "ref")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 32)
}
