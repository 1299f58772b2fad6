package port

import (
	"context"
	"time"
)

// Cache is a flat TTL'd key-value cache used for permission levels and the
// short-lived user-info cache. It is advisory: values must always be
// recomputable from the authoritative stores.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
