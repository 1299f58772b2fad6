package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/infra/logger"
	"github.com/d56845684/edu-auth-service/internal/infra/security"
	"github.com/d56845684/edu-auth-service/internal/provider"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionNotFound indicates the session was destroyed or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionMismatch indicates the presented token belongs to a different session.
	ErrSessionMismatch = errors.New("token does not match session")
	// ErrTokenRevoked indicates the token was blacklisted ahead of validation.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrStoreUnavailable indicates the session store cannot be reached.
	// Protected requests fail closed on this error.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

const userInfoCachePrefix = "user_info:"

// AuthConfig tunes the auth orchestrator.
type AuthConfig struct {
	SessionTTL    time.Duration
	UserInfoTTL   time.Duration
	TouchThrottle time.Duration
	// MaxSessions caps concurrent sessions per user; the least recently
	// active ones are evicted to make room. Zero disables the cap.
	MaxSessions int
}

// AuthService coordinates credential login, session lifecycle and token
// validation on top of the upstream identity provider.
type AuthService struct {
	cfg      AuthConfig
	identity port.IdentityProvider
	sessions port.SessionStore
	profiles port.ProfileRepository
	cache    port.Cache
	codec    *security.TokenCodec
	events   port.EventPublisher
	logger   *zap.Logger

	now func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg AuthConfig,
	identity port.IdentityProvider,
	sessions port.SessionStore,
	profiles port.ProfileRepository,
	cache port.Cache,
	codec *security.TokenCodec,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		cfg:      cfg,
		identity: identity,
		sessions: sessions,
		profiles: profiles,
		cache:    cache,
		codec:    codec,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// LoginResult carries everything the transport layer needs to establish the
// client's cookies after a successful login.
type LoginResult struct {
	Tokens        *domain.TokenPair
	SessionSecret string
	User          domain.UserInfo
}

// Login verifies credentials upstream, resolves the platform role and
// materialises a session plus token pair.
func (s *AuthService) Login(ctx context.Context, email, password string, device domain.DeviceInfo) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, _, err := s.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidCredentials) {
			s.logger.Info("login rejected", zap.String("email", logger.MaskEmail(email)))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("upstream sign-in: %w", err)
	}

	return s.establish(ctx, user, "password", device)
}

// LoginByUserID materialises a session for an already verified identity.
// Used after an external-identity callback resolves to a local account.
func (s *AuthService) LoginByUserID(ctx context.Context, userID, method string, device domain.DeviceInfo) (*LoginResult, error) {
	user, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	return s.establish(ctx, user, method, device)
}

func (s *AuthService) establish(ctx context.Context, user *domain.ExternalUser, method string, device domain.DeviceInfo) (*LoginResult, error) {
	role := s.resolveRole(ctx, user)

	if err := s.enforceSessionCap(ctx, user.ID); err != nil {
		// The cap is housekeeping; a store error here surfaces on Create anyway.
		s.logger.Warn("session cap enforcement failed", zap.Error(err), zap.String("user_id", user.ID))
	}

	secret, session, err := s.sessions.Create(ctx, user.ID, role, device, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	pair, err := s.codec.MintPair(user.ID, user.Email, role, session.SecretHash)
	if err != nil {
		s.sessions.Destroy(ctx, secret)
		return nil, err
	}

	info := domain.UserInfo{
		ID:             user.ID,
		Email:          user.Email,
		Role:           role,
		EmailConfirmed: user.EmailConfirmedAt != nil,
		CreatedAt:      user.CreatedAt,
	}
	s.cacheUserInfo(ctx, info)

	if s.events != nil {
		event := domain.SessionCreatedEvent{
			EventID:     uuid.NewString(),
			UserID:      user.ID,
			Role:        role,
			LoginMethod: method,
			IPAddress:   session.IPAddress,
			UserAgent:   session.UserAgent,
			CreatedAt:   session.CreatedAt,
		}
		if err := s.events.PublishSessionCreated(ctx, event); err != nil {
			s.logger.Warn("publish session created failed", zap.Error(err))
		}
	}

	s.logger.Info("session established",
		zap.String("user_id", user.ID),
		zap.String("role", role),
		zap.String("method", method),
	)

	return &LoginResult{
		Tokens:        pair,
		SessionSecret: secret,
		User:          info,
	}, nil
}

// enforceSessionCap evicts least-recently-active sessions so the upcoming
// login never pushes the user over the configured concurrent-session cap.
func (s *AuthService) enforceSessionCap(ctx context.Context, userID string) error {
	if s.cfg.MaxSessions <= 0 {
		return nil
	}

	existing, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	excess := len(existing) - s.cfg.MaxSessions + 1
	if excess <= 0 {
		return nil
	}

	sort.Slice(existing, func(i, j int) bool {
		return existing[i].LastActivity.Before(existing[j].LastActivity)
	})
	for _, session := range existing[:excess] {
		if err := s.sessions.DestroyByHash(ctx, userID, session.SecretHash); err != nil {
			return err
		}
	}
	s.logger.Info("evicted sessions over cap",
		zap.String("user_id", userID),
		zap.Int("evicted", excess),
	)
	return nil
}

// resolveRole prefers the profile store, falling back to the role recorded
// in provider metadata at registration, then to student.
func (s *AuthService) resolveRole(ctx context.Context, user *domain.ExternalUser) string {
	role, err := s.profiles.GetRole(ctx, user.ID)
	if err == nil && domain.ValidRole(role) {
		return role
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("role lookup failed", zap.Error(err), zap.String("user_id", user.ID))
	}

	if raw, ok := user.Metadata["role"].(string); ok && domain.ValidRole(raw) {
		return raw
	}
	return domain.RoleStudent
}

// Logout destroys the session and blacklists both presented tokens for their
// remaining lifetimes. Idempotent: a missing session is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionSecret, accessToken, refreshToken string) error {
	if sessionSecret != "" {
		session, err := s.sessions.Get(ctx, sessionSecret)
		if err == nil {
			if err := s.sessions.Destroy(ctx, sessionSecret); err != nil {
				return fmt.Errorf("destroy session: %w", err)
			}
			s.invalidateUserInfo(ctx, session.UserID)
			s.publishRevoked(ctx, session.UserID, "logout", 1)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load session: %w", err)
		}
	}

	s.blacklistRemaining(ctx, accessToken, domain.TokenKindAccess)
	s.blacklistRemaining(ctx, refreshToken, domain.TokenKindRefresh)

	if accessToken != "" {
		if err := s.identity.SignOut(ctx, accessToken); err != nil {
			s.logger.Debug("provider sign-out failed", zap.Error(err))
		}
	}
	return nil
}

// LogoutAll destroys every session the user holds, returning the count.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int, error) {
	count, err := s.sessions.DestroyAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("destroy all sessions: %w", err)
	}
	s.invalidateUserInfo(ctx, userID)
	s.publishRevoked(ctx, userID, "logout_all", count)
	return count, nil
}

// blacklistRemaining marks the token revoked until its natural expiry. A
// token that fails validation needs no blacklist entry.
func (s *AuthService) blacklistRemaining(ctx context.Context, token string, kind domain.TokenKind) {
	if token == "" {
		return
	}
	claims, err := s.codec.Validate(token, kind)
	if err != nil {
		return
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return
	}
	if err := s.sessions.Blacklist(ctx, token, remaining); err != nil {
		s.logger.Warn("token blacklist failed", zap.Error(err))
	}
}

func (s *AuthService) publishRevoked(ctx context.Context, userID, reason string, count int) {
	if s.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		Reason:    reason,
		Sessions:  count,
		RevokedAt: s.now().UTC(),
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked failed", zap.Error(err))
	}
}

// Refresh rotates the token pair. The old refresh token is blacklisted so it
// cannot be replayed, and the session's activity window is renewed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, sessionSecret string) (*domain.TokenPair, error) {
	claims, err := s.codec.Validate(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	revoked, err := s.sessions.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	session, err := s.sessions.Get(ctx, sessionSecret)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if session.SecretHash != claims.SessionID || session.UserID != claims.Subject {
		return nil, ErrSessionMismatch
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if err := s.sessions.Blacklist(ctx, refreshToken, remaining); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := s.sessions.Touch(ctx, sessionSecret); err != nil {
		s.logger.Warn("session touch failed", zap.Error(err))
	}

	return s.codec.MintPair(claims.Subject, claims.Email, claims.Role, session.SecretHash)
}

// Authenticate validates an access token against the blacklist and its
// server-side session. This is the hot path behind every protected request;
// store failures surface as ErrStoreUnavailable so callers can fail closed.
func (s *AuthService) Authenticate(ctx context.Context, accessToken, sessionSecret string) (*security.Claims, *domain.Session, error) {
	revoked, err := s.sessions.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		return nil, nil, ErrTokenRevoked
	}

	claims, err := s.codec.Validate(accessToken, domain.TokenKindAccess)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.Get(ctx, sessionSecret)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if session.SecretHash != claims.SessionID || session.UserID != claims.Subject {
		return nil, nil, ErrSessionMismatch
	}

	if s.shouldTouch(session) {
		if _, err := s.sessions.Touch(ctx, sessionSecret); err != nil {
			s.logger.Warn("session touch failed", zap.Error(err))
		}
	}

	return claims, session, nil
}

// shouldTouch throttles activity stamping so the hot path does not rewrite
// the record on every request.
func (s *AuthService) shouldTouch(session *domain.Session) bool {
	if s.cfg.TouchThrottle <= 0 {
		return true
	}
	return s.now().UTC().Sub(session.LastActivity) >= s.cfg.TouchThrottle
}

// CurrentUser returns the cached view of the user, refreshing it from the
// identity provider on a miss.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*domain.UserInfo, error) {
	key := userInfoCachePrefix + userID
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var info domain.UserInfo
		if err := json.Unmarshal([]byte(cached), &info); err == nil {
			return &info, nil
		}
	}

	user, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	info := domain.UserInfo{
		ID:             user.ID,
		Email:          user.Email,
		Role:           s.resolveRole(ctx, user),
		EmailConfirmed: user.EmailConfirmedAt != nil,
		CreatedAt:      user.CreatedAt,
	}
	s.cacheUserInfo(ctx, info)
	return &info, nil
}

func (s *AuthService) cacheUserInfo(ctx context.Context, info domain.UserInfo) {
	if s.cfg.UserInfoTTL <= 0 {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, userInfoCachePrefix+info.ID, string(data), s.cfg.UserInfoTTL); err != nil {
		s.logger.Warn("user info cache write failed", zap.Error(err))
	}
}

func (s *AuthService) invalidateUserInfo(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userInfoCachePrefix+userID); err != nil {
		s.logger.Warn("user info cache invalidation failed", zap.Error(err))
	}
}

// Sessions lists the user's live sessions for device management.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeSession destroys one session identified by its stored hash.
func (s *AuthService) RevokeSession(ctx context.Context, userID, secretHash string) error {
	if err := s.sessions.DestroyByHash(ctx, userID, secretHash); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.publishRevoked(ctx, userID, "revoked", 1)
	return nil
}

// RequestPasswordReset triggers the upstream reset email. The response never
// discloses whether the email exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}
	return s.identity.SendPasswordReset(ctx, email)
}
