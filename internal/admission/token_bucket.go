package admission

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is a sliding alternative to FixedWindow built on
// golang.org/x/time/rate: limit requests per window replenish continuously
// instead of resetting at window edges. It keeps one in-process limiter per
// identity and therefore has no remote store to fail. An identity idle for
// a full window has refilled to full burst, so its limiter carries no state
// worth keeping and is dropped.
type TokenBucket struct {
	mu        sync.Mutex
	limiters  map[string]*identityLimiter
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type identityLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a token-bucket limiter allowing limit requests per
// window with bursts up to limit.
func NewTokenBucket(limit int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		limiters: make(map[string]*identityLimiter),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// WithClock overrides the limiter's clock, for tests.
func (l *TokenBucket) WithClock(now func() time.Time) *TokenBucket {
	l.now = now
	return l
}

func (l *TokenBucket) limiter(identity string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// At most one sweep per window.
	if now.Sub(l.lastSweep) >= l.window {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastSeen) >= l.window {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.limiters[identity]
	if !ok {
		entry = &identityLimiter{
			lim: rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit),
		}
		l.limiters[identity] = entry
	}
	entry.lastSeen = now
	return entry.lim
}

// Admit reserves one token for the identity. When no token is available the
// reservation is cancelled and its delay is reported as RetryAfter.
func (l *TokenBucket) Admit(_ context.Context, identity string) (Decision, error) {
	r := l.limiter(identity).Reserve()
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: l.window}, nil
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}
