package port

import (
	"context"
	"time"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

// SessionStore is the revocable server-side session registry. Records are
// keyed by the hash of the client secret; a per-user reverse index supports
// bulk destruction, and a blacklist tracks invalidated tokens until their
// natural expiry.
type SessionStore interface {
	// Create generates the client secret (at least 256 bits of entropy),
	// persists the record under the secret's hash, and indexes it for the
	// owner. The raw secret is returned exactly once.
	Create(ctx context.Context, userID, role string, device domain.DeviceInfo, extra map[string]string) (string, *domain.Session, error)

	// Get resolves the record for a raw client secret. Returns
	// repository.ErrNotFound when the session is absent or expired.
	Get(ctx context.Context, secret string) (*domain.Session, error)

	// Touch stamps last-activity and re-applies the full session TTL, so an
	// idle session expires one lifetime after its last activity.
	Touch(ctx context.Context, secret string) (bool, error)

	// Destroy removes the record and its reverse-index entry.
	Destroy(ctx context.Context, secret string) error

	// DestroyByHash removes a record addressed by its stored hash. Used when
	// revoking another device's session, where the raw secret is unknown.
	DestroyByHash(ctx context.Context, userID, secretHash string) error

	// DestroyAll removes every indexed session for the user and the index
	// itself, returning the number of records deleted.
	DestroyAll(ctx context.Context, userID string) (int, error)

	// ListByUser returns every live session indexed for the user.
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)

	// Blacklist records the token (by hash) for its remaining lifetime.
	Blacklist(ctx context.Context, token string, ttl time.Duration) error

	// IsBlacklisted reports whether the token was previously invalidated.
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}
