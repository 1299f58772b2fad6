package port

import (
	"context"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

// OAuthProvider wraps the third-party social login provider for a set of
// role-scoped channels.
type OAuthProvider interface {
	// IsConfigured reports whether credentials exist for the channel.
	IsConfigured(channel domain.Channel) bool

	// AuthorizationURL builds the outbound authorization URL embedding the
	// supplied state token.
	AuthorizationURL(state string, channel domain.Channel) (string, error)

	// Exchange swaps the authorization code for provider tokens.
	Exchange(ctx context.Context, code string, channel domain.Channel) (*domain.OAuthTokens, error)

	// Profile fetches the external profile, including the email extracted
	// from the identity token when present.
	Profile(ctx context.Context, tokens *domain.OAuthTokens) (*domain.ExternalProfile, error)

	// Revoke invalidates the provider access token. Best effort.
	Revoke(ctx context.Context, accessToken string, channel domain.Channel) error
}
