// Package quota enforces per-tenant usage ceilings with a two-phase
// reservation: a fast in-process counter decides admission, the durable
// store is the audit record and rebuilds the fast counter after a restart.
package quota

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
)

// periodLayout keys counters by UTC day. Quotas are daily: the original
// system tracked usage under per-day keys, and a day boundary is the one
// place a count resets to zero.
const periodLayout = "2006-01-02"

// Tracker reserves, finalizes, and releases quota units per tenant.
type Tracker struct {
	store store.Store
	now   func() time.Time

	mu            sync.Mutex
	counters      map[counterKey]*atomic.Int64
	currentPeriod string
}

type counterKey struct {
	tenantID string
	period   string
}

// NewTracker creates a tracker backed by the given durable store.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{
		store:    st,
		now:      time.Now,
		counters: make(map[counterKey]*atomic.Int64),
	}
}

// WithClock overrides the tracker's clock, for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Period returns the current quota period key.
func (t *Tracker) Period() string {
	return t.now().UTC().Format(periodLayout)
}

// ResetIn returns the time remaining until the current period ends and the
// ceiling resets.
func (t *Tracker) ResetIn() time.Duration {
	now := t.now().UTC()
	next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return next.Sub(now)
}

func (t *Tracker) counter(tenantID, period string) *atomic.Int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Counters for an elapsed period are dead weight; the durable store
	// keeps the audit record. Drop them on the first touch of a new period.
	if period != t.currentPeriod {
		for key := range t.counters {
			if key.period != period {
				delete(t.counters, key)
			}
		}
		t.currentPeriod = period
	}

	key := counterKey{tenantID: tenantID, period: period}
	c, ok := t.counters[key]
	if !ok {
		c = &atomic.Int64{}
		t.counters[key] = c
	}
	return c
}

// Reservation is one provisionally reserved quota unit. It must be settled
// exactly once, by Finalize on success or Release on failure.
type Reservation struct {
	tracker  *Tracker
	tenantID string
	period   string

	// Remaining is the tenant's remaining quota after this reservation.
	// Negative for unlimited tenants.
	Remaining int64

	settled atomic.Bool
}

// CheckAndReserve atomically compares the tenant's fast count against its
// ceiling and, if under, pre-increments one unit. Exactly one of two
// concurrent callers observing "one slot left" wins the slot. A denial
// performs no mutation. Unlimited tenants always reserve; their usage is
// still counted.
func (t *Tracker) CheckAndReserve(_ context.Context, tenant *model.Tenant) (*Reservation, bool) {
	period := t.Period()
	c := t.counter(tenant.ID, period)

	for {
		cur := c.Load()
		if !tenant.Unlimited() && cur >= tenant.QuotaCeiling {
			return nil, false
		}
		if c.CompareAndSwap(cur, cur+1) {
			remaining := int64(model.UnlimitedCeiling)
			if !tenant.Unlimited() {
				remaining = tenant.QuotaCeiling - (cur + 1)
			}
			return &Reservation{
				tracker:   t,
				tenantID:  tenant.ID,
				period:    period,
				Remaining: remaining,
			}, true
		}
	}
}

// Finalize commits the reservation durably. The fast counter already holds
// the unit; on a durable-store failure the error propagates and the fast
// counter is left incremented so the tenant is never over-admitted, with
// drift corrected by external reconciliation.
func (r *Reservation) Finalize(ctx context.Context) error {
	if !r.settled.CompareAndSwap(false, true) {
		return nil
	}
	if _, err := r.tracker.store.IncrementQuota(ctx, r.tenantID, r.period); err != nil {
		return fmt.Errorf("finalize quota reservation: %w", err)
	}
	return nil
}

// Release returns the provisionally reserved unit so failed attempts never
// consume quota. Safe to call after Finalize; only the first settle applies.
func (r *Reservation) Release() {
	if !r.settled.CompareAndSwap(false, true) {
		return
	}
	r.tracker.counter(r.tenantID, r.period).Add(-1)
}

// Count returns the fast count for a tenant in the current period.
func (t *Tracker) Count(tenantID string) int64 {
	return t.counter(tenantID, t.Period()).Load()
}

// Rebuild loads the durable counts for the current period into the fast
// counters. Called once at startup before serving traffic.
func (t *Tracker) Rebuild(ctx context.Context) error {
	period := t.Period()
	counts, err := t.store.QuotaCounts(ctx, period)
	if err != nil {
		return fmt.Errorf("rebuild quota counters: %w", err)
	}
	for tenantID, count := range counts {
		t.counter(tenantID, period).Store(count)
	}
	return nil
}
