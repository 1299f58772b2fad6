package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/d56845684/edu-auth-service/internal/core/port"
)

// CacheRepository is a thin TTL'd string cache used for permission levels
// and short-lived user info.
type CacheRepository struct {
	client *red.Client
}

func NewCacheRepository(client *red.Client) *CacheRepository {
	return &CacheRepository{client: client}
}

func (r *CacheRepository) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis cache get: %w", err)
	}
	return value, true, nil
}

func (r *CacheRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis cache delete: %w", err)
	}
	return nil
}

var _ port.Cache = (*CacheRepository)(nil)
