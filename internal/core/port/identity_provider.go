package port

import (
	"context"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

// IdentityProvider wraps the upstream BaaS that is the system of record for
// credentials and raw accounts. Implementations surface typed results, never
// raw provider payloads.
type IdentityProvider interface {
	// SignInWithPassword verifies credentials upstream. Invalid credentials
	// surface as provider.ErrInvalidCredentials.
	SignInWithPassword(ctx context.Context, email, password string) (*domain.ExternalUser, *domain.ExternalSession, error)

	// CreateUser provisions a confirmed upstream account. Duplicate emails
	// surface as provider.ErrEmailConflict.
	CreateUser(ctx context.Context, email, password string, metadata map[string]any) (*domain.ExternalUser, error)

	GetUser(ctx context.Context, id string) (*domain.ExternalUser, error)

	// GetUserByEmail resolves an upstream account by email, or
	// repository.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*domain.ExternalUser, error)

	// DeleteUser removes an upstream account. Used for compensating rollback.
	DeleteUser(ctx context.Context, id string) error

	// SendPasswordReset triggers the reset email. It reports success to the
	// caller regardless of whether the email exists.
	SendPasswordReset(ctx context.Context, email string) error

	// SignOut notifies the provider of sign-out. Best effort.
	SignOut(ctx context.Context, accessToken string) error
}
