package port

import (
	"context"
	"time"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

// OAuthStateStore issues and consumes the single-use state tokens that bind
// an OAuth callback to the session that initiated it.
type OAuthStateStore interface {
	// Issue stores the payload under a fresh random token with the given TTL
	// and returns the token.
	Issue(ctx context.Context, state domain.OAuthState, ttl time.Duration) (string, error)

	// Consume atomically fetches and deletes the payload, enforcing
	// single-use. Absent or already-consumed tokens return
	// repository.ErrNotFound.
	Consume(ctx context.Context, token string) (*domain.OAuthState, error)
}
