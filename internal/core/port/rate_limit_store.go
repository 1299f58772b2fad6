package port

import (
	"context"
	"time"
)

// RateLimitStore persists sliding-window attempt counters. Rate limiting is
// advisory: callers fail open when the store is unavailable.
type RateLimitStore interface {
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
}
