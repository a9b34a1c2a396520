package quota

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
)

func newTestTracker(t *testing.T) (*Tracker, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewTracker(st), st
}

func testTenant(ceiling int64) *model.Tenant {
	return &model.Tenant{
		ID:             uuid.Must(uuid.NewV7()).String(),
		IndexNamespace: "ns",
		QuotaCeiling:   ceiling,
	}
}

func TestReserveUpToCeiling(t *testing.T) {
	tr, _ := newTestTracker(t)
	tenant := testTenant(2)

	res1, ok := tr.CheckAndReserve(context.Background(), tenant)
	require.True(t, ok)
	assert.Equal(t, int64(1), res1.Remaining)

	res2, ok := tr.CheckAndReserve(context.Background(), tenant)
	require.True(t, ok)
	assert.Equal(t, int64(0), res2.Remaining)

	// Ceiling reached: denied with no mutation.
	_, ok = tr.CheckAndReserve(context.Background(), tenant)
	assert.False(t, ok)
	assert.Equal(t, int64(2), tr.Count(tenant.ID))
}

func TestReleaseReturnsUnit(t *testing.T) {
	tr, _ := newTestTracker(t)
	tenant := testTenant(1)

	res, ok := tr.CheckAndReserve(context.Background(), tenant)
	require.True(t, ok)

	_, ok = tr.CheckAndReserve(context.Background(), tenant)
	require.False(t, ok)

	// A failed attempt never consumes quota.
	res.Release()
	_, ok = tr.CheckAndReserve(context.Background(), tenant)
	assert.True(t, ok)
}

func TestSettleIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)
	tenant := testTenant(10)

	res, ok := tr.CheckAndReserve(ctx, tenant)
	require.True(t, ok)

	require.NoError(t, res.Finalize(ctx))
	require.NoError(t, res.Finalize(ctx))
	res.Release()

	count, err := st.QuotaCount(ctx, tenant.ID, tr.Period())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "exactly one durable increment")
	assert.Equal(t, int64(1), tr.Count(tenant.ID), "release after finalize must not decrement")
}

func TestConcurrentReservationsExactlyFillCeiling(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)
	const ceiling = 20
	tenant := testTenant(ceiling)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < ceiling*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, ok := tr.CheckAndReserve(ctx, tenant)
			if !ok {
				return
			}
			assert.NoError(t, res.Finalize(ctx))
			mu.Lock()
			granted++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, ceiling, granted)
	count, err := st.QuotaCount(ctx, tenant.ID, tr.Period())
	require.NoError(t, err)
	assert.Equal(t, int64(ceiling), count)
}

func TestUnlimitedTenantStillCounts(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)
	tenant := testTenant(model.UnlimitedCeiling)

	for i := 0; i < 5; i++ {
		res, ok := tr.CheckAndReserve(ctx, tenant)
		require.True(t, ok)
		assert.Negative(t, res.Remaining)
		require.NoError(t, res.Finalize(ctx))
	}

	count, err := st.QuotaCount(ctx, tenant.ID, tr.Period())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestPeriodBoundaryResetsFastCount(t *testing.T) {
	tr, _ := newTestTracker(t)
	now := time.Date(2026, 8, 28, 23, 59, 0, 0, time.UTC)
	tr.WithClock(func() time.Time { return now })
	tenant := testTenant(1)

	_, ok := tr.CheckAndReserve(context.Background(), tenant)
	require.True(t, ok)
	_, ok = tr.CheckAndReserve(context.Background(), tenant)
	require.False(t, ok)

	// Next day: fresh period, fresh counter.
	now = now.Add(2 * time.Minute)
	_, ok = tr.CheckAndReserve(context.Background(), tenant)
	assert.True(t, ok)
}

func TestPeriodChangeDropsPriorCounters(t *testing.T) {
	tr, _ := newTestTracker(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tr.WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		_, ok := tr.CheckAndReserve(context.Background(), testTenant(10))
		require.True(t, ok)
	}

	// First touch of the next period sweeps the elapsed period's counters;
	// the durable store keeps the audit record.
	now = now.Add(24 * time.Hour)
	_, ok := tr.CheckAndReserve(context.Background(), testTenant(10))
	require.True(t, ok)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.counters, 1)
	for key := range tr.counters {
		assert.Equal(t, tr.currentPeriod, key.period)
	}
}

func TestResetIn(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.WithClock(func() time.Time {
		return time.Date(2026, 8, 28, 23, 59, 0, 0, time.UTC)
	})
	assert.Equal(t, time.Minute, tr.ResetIn())
}

func TestRebuildFromDurableCounts(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)
	tenant := testTenant(3)

	for i := 0; i < 2; i++ {
		res, ok := tr.CheckAndReserve(ctx, tenant)
		require.True(t, ok)
		require.NoError(t, res.Finalize(ctx))
	}

	// Simulate a restart: a fresh tracker over the same store.
	restarted := NewTracker(st)
	require.NoError(t, restarted.Rebuild(ctx))
	assert.Equal(t, int64(2), restarted.Count(tenant.ID))

	res, ok := restarted.CheckAndReserve(ctx, tenant)
	require.True(t, ok)
	assert.Equal(t, int64(0), res.Remaining)
	_, ok = restarted.CheckAndReserve(ctx, tenant)
	assert.False(t, ok)
}
