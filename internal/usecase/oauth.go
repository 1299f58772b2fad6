package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

// Machine-readable failure codes carried on the error redirect. Raw provider
// errors never reach the client.
const (
	FlowErrInvalidState    = "invalid_state"
	FlowErrExchangeFailed  = "exchange_failed"
	FlowErrProviderError   = "provider_error"
	FlowErrBindingConflict = "binding_conflict"
	FlowErrInternal        = "internal_error"
)

// FlowError is a terminal failure of the external-identity flow, identified
// by code rather than by upstream detail.
type FlowError struct {
	Code  string
	cause error
}

func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("oauth flow failed (%s): %v", e.Code, e.cause)
	}
	return fmt.Sprintf("oauth flow failed (%s)", e.Code)
}

func (e *FlowError) Unwrap() error { return e.cause }

func flowErr(code string, cause error) *FlowError {
	return &FlowError{Code: code, cause: cause}
}

const placeholderEmailDomain = "line.placeholder"

// OAuthService drives the external-identity authorization-code flow: state
// issuance, callback resolution and login materialisation.
type OAuthService struct {
	provider port.OAuthProvider
	states   port.OAuthStateStore
	bindings *BindingService
	identity port.IdentityProvider
	profiles port.ProfileRepository
	auth     *AuthService
	stateTTL time.Duration
	logger   *zap.Logger
}

// NewOAuthService constructs an OAuthService instance.
func NewOAuthService(
	oauthProvider port.OAuthProvider,
	states port.OAuthStateStore,
	bindings *BindingService,
	identity port.IdentityProvider,
	profiles port.ProfileRepository,
	auth *AuthService,
	stateTTL time.Duration,
	log *zap.Logger,
) *OAuthService {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &OAuthService{
		provider: oauthProvider,
		states:   states,
		bindings: bindings,
		identity: identity,
		profiles: profiles,
		auth:     auth,
		stateTTL: stateTTL,
		logger:   log,
	}
}

// BeginLogin issues a state token for an anonymous external-identity login
// and returns the provider authorization URL.
func (s *OAuthService) BeginLogin(ctx context.Context, channel domain.Channel) (string, error) {
	return s.begin(ctx, channel, nil)
}

// BeginBind issues a state token carrying the initiating user, so the
// callback binds the external identity to that account instead of logging in.
func (s *OAuthService) BeginBind(ctx context.Context, channel domain.Channel, userID string) (string, error) {
	return s.begin(ctx, channel, &userID)
}

func (s *OAuthService) begin(ctx context.Context, channel domain.Channel, userID *string) (string, error) {
	if !domain.ValidChannel(channel) {
		return "", fmt.Errorf("unknown channel %q", channel)
	}
	if !s.provider.IsConfigured(channel) {
		return "", fmt.Errorf("channel %s not configured", channel)
	}

	state, err := s.states.Issue(ctx, domain.OAuthState{Channel: channel, UserID: userID}, s.stateTTL)
	if err != nil {
		return "", fmt.Errorf("issue oauth state: %w", err)
	}

	return s.provider.AuthorizationURL(state, channel)
}

// CallbackResult reports how the callback resolved and carries the login
// issued for the resolved account.
type CallbackResult struct {
	Login   *LoginResult
	Channel domain.Channel
	// NewUser is set when the flow provisioned a brand-new account.
	NewUser bool
	// Merged is set when the external identity was auto-merged onto an
	// existing upstream account by email.
	Merged bool
}

// HandleCallback runs the full callback state machine: consume the single-use
// state, exchange the code, fetch the profile, resolve it to a local account
// and materialise a login. All failures come back as *FlowError.
func (s *OAuthService) HandleCallback(ctx context.Context, stateToken, code string, device domain.DeviceInfo) (*CallbackResult, error) {
	state, err := s.states.Consume(ctx, stateToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, flowErr(FlowErrInvalidState, nil)
		}
		return nil, flowErr(FlowErrInternal, err)
	}
	channel := state.Channel

	tokens, err := s.provider.Exchange(ctx, code, channel)
	if err != nil {
		s.logger.Warn("code exchange failed", zap.Error(err), zap.String("channel", string(channel)))
		return nil, flowErr(FlowErrExchangeFailed, err)
	}

	profile, err := s.provider.Profile(ctx, tokens)
	if err != nil {
		s.logger.Warn("profile fetch failed", zap.Error(err), zap.String("channel", string(channel)))
		return nil, flowErr(FlowErrProviderError, err)
	}

	userID, outcome, err := s.resolve(ctx, channel, state.UserID, profile)
	if err != nil {
		var fe *FlowError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, flowErr(FlowErrInternal, err)
	}

	login, err := s.auth.LoginByUserID(ctx, userID, "line", device)
	if err != nil {
		return nil, flowErr(FlowErrInternal, err)
	}

	return &CallbackResult{
		Login:   login,
		Channel: channel,
		NewUser: outcome == resolvedNew,
		Merged:  outcome == resolvedMerged,
	}, nil
}

type resolution int

const (
	resolvedExisting resolution = iota
	resolvedBound
	resolvedMerged
	resolvedNew
)

// resolve maps the fetched external profile onto a local account. Priority:
// active binding wins, then an explicit bind request, then auto-merge by
// email, then provisioning a new account.
func (s *OAuthService) resolve(ctx context.Context, channel domain.Channel, linkingUserID *string, profile *domain.ExternalProfile) (string, resolution, error) {
	binding, err := s.bindings.Lookup(ctx, profile.ExternalID, channel)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", 0, err
	}

	if binding != nil && binding.IsActive() {
		if linkingUserID != nil && *linkingUserID != *binding.UserID {
			return "", 0, flowErr(FlowErrBindingConflict, nil)
		}
		// Pure re-login, no mutation.
		return *binding.UserID, resolvedExisting, nil
	}

	if linkingUserID != nil {
		if _, err := s.bindings.CreateOrRebind(ctx, *linkingUserID, channel, *profile); err != nil {
			if errors.Is(err, ErrBindingConflict) {
				return "", 0, flowErr(FlowErrBindingConflict, nil)
			}
			return "", 0, err
		}
		return *linkingUserID, resolvedBound, nil
	}

	if profile.Email != nil && *profile.Email != "" {
		existing, err := s.identity.GetUserByEmail(ctx, strings.ToLower(*profile.Email))
		if err == nil {
			if _, err := s.bindings.CreateOrRebind(ctx, existing.ID, channel, *profile); err != nil {
				if errors.Is(err, ErrBindingConflict) {
					return "", 0, flowErr(FlowErrBindingConflict, nil)
				}
				return "", 0, err
			}
			s.logger.Info("external identity merged by email",
				zap.String("user_id", existing.ID),
				zap.String("channel", string(channel)),
			)
			return existing.ID, resolvedMerged, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", 0, err
		}
	}

	userID, err := s.provision(ctx, channel, profile)
	if err != nil {
		return "", 0, err
	}
	if _, err := s.bindings.CreateOrRebind(ctx, userID, channel, *profile); err != nil {
		return "", 0, err
	}
	return userID, resolvedNew, nil
}

// provision creates a fresh upstream account for a never-seen external
// identity, using a placeholder email when the provider supplied none.
func (s *OAuthService) provision(ctx context.Context, channel domain.Channel, profile *domain.ExternalProfile) (string, error) {
	email := fmt.Sprintf("line_%s@%s", profile.ExternalID, placeholderEmailDomain)
	if profile.Email != nil && *profile.Email != "" {
		email = strings.ToLower(*profile.Email)
	}

	role := domain.RoleForChannel(channel)
	metadata := map[string]any{
		"role":     role,
		"name":     profile.DisplayName,
		"provider": "line",
	}

	// Random password: the account authenticates through the external
	// identity, never by password.
	user, err := s.identity.CreateUser(ctx, email, uuid.NewString(), metadata)
	if err != nil {
		return "", fmt.Errorf("provision external user: %w", err)
	}

	profileRow := domain.UserProfile{
		UserID:    user.ID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.profiles.InsertProfile(ctx, profileRow); err != nil {
		s.logger.Error("profile creation for provisioned user failed",
			zap.Error(err), zap.String("user_id", user.ID))
	}

	s.logger.Info("provisioned account for external identity",
		zap.String("user_id", user.ID),
		zap.String("role", role),
		zap.String("channel", string(channel)),
	)
	return user.ID, nil
}
