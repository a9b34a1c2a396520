package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	l := NewFixedWindow(NewMemoryCounterStore(), 3, time.Minute)

	for i := 0; i < 3; i++ {
		d, err := l.Admit(ctx, "tenant-a:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be admitted", i+1)
	}

	d, err := l.Admit(ctx, "tenant-a:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestFixedWindowResets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 30, 0, time.UTC)
	l := NewFixedWindow(NewMemoryCounterStore(), 1, time.Minute).
		WithClock(func() time.Time { return now })

	d, err := l.Admit(ctx, "id")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Admit(ctx, "id")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	// Next window admits again.
	now = now.Add(31 * time.Second)
	d, err = l.Admit(ctx, "id")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestFixedWindowIdentitiesIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewFixedWindow(NewMemoryCounterStore(), 1, time.Minute)

	d, _ := l.Admit(ctx, "a")
	require.True(t, d.Allowed)
	d, _ = l.Admit(ctx, "a")
	require.False(t, d.Allowed)

	// A different identity has its own bucket.
	d, err := l.Admit(ctx, "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

type failingCounterStore struct{}

func (failingCounterStore) Increment(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func TestFixedWindowFailsClosed(t *testing.T) {
	l := NewFixedWindow(failingCounterStore{}, 10, time.Minute)

	_, err := l.Admit(context.Background(), "id")
	assert.ErrorIs(t, err, ErrLimiterUnavailable)
}

func TestFixedWindowConcurrentAdmits(t *testing.T) {
	ctx := context.Background()
	const limit = 50
	l := NewFixedWindow(NewMemoryCounterStore(), limit, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < limit*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Admit(ctx, "shared")
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
}

func TestIncrementSweepsExpiredBuckets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCounterStore()

	// A day's worth of one-shot identities in a long-gone window.
	stale := time.Now().Add(-24 * time.Hour).Truncate(time.Minute)
	for i := 0; i < 1000; i++ {
		_, err := s.Increment(ctx, fmt.Sprintf("tenant-%d:10.0.0.%d", i, i%256), stale)
		require.NoError(t, err)
	}

	// The first increment of a newer window drops every expired bucket;
	// no janitor required.
	_, err := s.Increment(ctx, "fresh", time.Now().Truncate(time.Minute))
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.buckets, 1)
}

func TestTokenBucketDropsIdleIdentities(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := NewTokenBucket(5, time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < 100; i++ {
		_, err := l.Admit(ctx, fmt.Sprintf("id-%d", i))
		require.NoError(t, err)
	}

	// After a full idle window every limiter has refilled; the next admit
	// sweeps them all.
	now = now.Add(2 * time.Minute)
	_, err := l.Admit(ctx, "active")
	require.NoError(t, err)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.limiters, 1)
}

func TestMemoryCounterStorePrune(t *testing.T) {
	s := NewMemoryCounterStore()
	old := time.Now().Add(-2 * time.Minute)
	_, err := s.Increment(context.Background(), "stale", old)
	require.NoError(t, err)

	s.Prune(time.Now().Add(-time.Minute))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.buckets)
}

func TestTokenBucketDeniesBurstOverLimit(t *testing.T) {
	ctx := context.Background()
	l := NewTokenBucket(2, time.Minute)

	d, err := l.Admit(ctx, "id")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Admit(ctx, "id")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Admit(ctx, "id")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}
