// Package admission provides per-identity request throttling. A denied
// request must not reach the quota tracker or mutate the conversation log.
package admission

import (
	"context"
	"errors"
	"time"
)

// ErrLimiterUnavailable is returned when the backing counter store cannot be
// reached. Admission fails closed: the system must not silently admit
// unmetered traffic.
var ErrLimiterUnavailable = errors.New("admission counter store unavailable")

// Decision is the result of one admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits or denies a request for one identity. Admit atomically
// counts the request against the identity's active window; when the count
// exceeds the limit it returns Allowed=false and the time remaining until
// the window resets.
type Limiter interface {
	Admit(ctx context.Context, identity string) (Decision, error)
}

// CounterStore is the backing counter for the fixed-window limiter. An
// implementation increments the counter for (key, windowStart) and returns
// the post-increment count. A store error denies the request.
type CounterStore interface {
	Increment(ctx context.Context, key string, windowStart time.Time) (int, error)
}
