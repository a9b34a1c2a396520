package admission

import (
	"context"
	"fmt"
	"time"
)

// FixedWindow counts requests per identity within discrete windows of the
// configured length.
type FixedWindow struct {
	store  CounterStore
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewFixedWindow creates a fixed-window limiter of limit requests per
// window, backed by store.
func NewFixedWindow(store CounterStore, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// WithClock overrides the limiter's clock, for tests.
func (l *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	l.now = now
	return l
}

// Admit counts the request and decides. The counter mutation is the only
// side effect; a store failure denies the request (fail closed).
func (l *FixedWindow) Admit(ctx context.Context, identity string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)

	count, err := l.store.Increment(ctx, identity, windowStart)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	if count > l.limit {
		return Decision{
			Allowed:    false,
			RetryAfter: windowStart.Add(l.window).Sub(now),
		}, nil
	}
	return Decision{Allowed: true}, nil
}
