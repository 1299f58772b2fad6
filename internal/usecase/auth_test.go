package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/infra/security"
)

type authFixture struct {
	identity *identityMock
	sessions *sessionStoreMock
	profiles *profileRepoMock
	cache    *cacheMock
	codec    *security.TokenCodec
	events   *eventRecorder
	svc      *AuthService
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		identity: newIdentityMock(),
		sessions: newSessionStoreMock(),
		profiles: newProfileRepoMock(),
		cache:    newCacheMock(),
		codec:    security.NewTokenCodec("unit-test-secret-value-0123456789ab", "edu-auth-test", 15*time.Minute, 168*time.Hour),
		events:   &eventRecorder{},
	}
	f.svc = NewAuthService(AuthConfig{
		SessionTTL:    168 * time.Hour,
		UserInfoTTL:   time.Minute,
		TouchThrottle: time.Minute,
	}, f.identity, f.sessions, f.profiles, f.cache, f.codec, f.events, zap.NewNop())
	return f
}

func TestAuthService_Login(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "teacher@example.com", nil)
	f.profiles.roles["user-1"] = domain.RoleTeacher

	result, err := f.svc.Login(context.Background(), "  Teacher@Example.COM ", "pw", domain.DeviceInfo{UserAgent: "ua", IPAddress: "203.0.113.7"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.SessionSecret == "" {
		t.Fatalf("expected a session secret")
	}
	if result.User.Role != domain.RoleTeacher {
		t.Fatalf("expected teacher role, got %s", result.User.Role)
	}

	claims, err := f.codec.Validate(result.Tokens.AccessToken, domain.TokenKindAccess)
	if err != nil {
		t.Fatalf("minted access token is invalid: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != domain.RoleTeacher {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	session, err := f.sessions.Get(context.Background(), result.SessionSecret)
	if err != nil {
		t.Fatalf("expected session to exist: %v", err)
	}
	if claims.SessionID != session.SecretHash {
		t.Fatalf("expected token to carry the session hash")
	}

	if len(f.events.sessionsCreated) != 1 || f.events.sessionsCreated[0].LoginMethod != "password" {
		t.Fatalf("expected one password session-created event, got %+v", f.events.sessionsCreated)
	}
}

func TestAuthService_LoginInvalidCredentials(t *testing.T) {
	f := newAuthFixture()

	if _, err := f.svc.Login(context.Background(), "nobody@example.com", "pw", domain.DeviceInfo{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "", "", domain.DeviceInfo{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty input, got %v", err)
	}
}

func TestAuthService_LoginFallsBackToMetadataRole(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "e@example.com", map[string]any{"role": domain.RoleEmployee})

	result, err := f.svc.Login(context.Background(), "e@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.User.Role != domain.RoleEmployee {
		t.Fatalf("expected metadata role employee, got %s", result.User.Role)
	}
}

func TestAuthService_RefreshRotatesPair(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "s@example.com", nil)

	login, err := f.svc.Login(context.Background(), "s@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	pair, err := f.svc.Refresh(context.Background(), login.Tokens.RefreshToken, login.SessionSecret)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if pair.RefreshToken == login.Tokens.RefreshToken {
		t.Fatalf("expected a fresh refresh token")
	}

	// The consumed refresh token must be blacklisted before the new pair is
	// handed out, so a replay fails.
	if !f.sessions.blacklist[login.Tokens.RefreshToken] {
		t.Fatalf("expected the old refresh token to be blacklisted")
	}
	if _, err := f.svc.Refresh(context.Background(), login.Tokens.RefreshToken, login.SessionSecret); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on replay, got %v", err)
	}

	// The rotated pair keeps working.
	if _, err := f.svc.Refresh(context.Background(), pair.RefreshToken, login.SessionSecret); err != nil {
		t.Fatalf("rotated refresh token rejected: %v", err)
	}
}

func TestAuthService_RefreshRejectsForeignSession(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)
	f.identity.addUser("user-2", "b@example.com", nil)

	loginA, err := f.svc.Login(context.Background(), "a@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	loginB, err := f.svc.Login(context.Background(), "b@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if _, err := f.svc.Refresh(context.Background(), loginA.Tokens.RefreshToken, loginB.SessionSecret); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestAuthService_RefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)

	login, err := f.svc.Login(context.Background(), "a@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if _, err := f.svc.Refresh(context.Background(), login.Tokens.AccessToken, login.SessionSecret); !errors.Is(err, security.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access-as-refresh, got %v", err)
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)

	login, err := f.svc.Login(context.Background(), "a@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	claims, session, err := f.svc.Authenticate(context.Background(), login.Tokens.AccessToken, login.SessionSecret)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if claims.Subject != "user-1" || session.UserID != "user-1" {
		t.Fatalf("unexpected authenticate result: claims=%+v session=%+v", claims, session)
	}
}

func TestAuthService_AuthenticateFailsClosed(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)

	login, err := f.svc.Login(context.Background(), "a@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	f.sessions.isBlacklistedErr = errors.New("redis down")
	if _, _, err := f.svc.Authenticate(context.Background(), login.Tokens.AccessToken, login.SessionSecret); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	f.sessions.isBlacklistedErr = nil
	f.sessions.getErr = errors.New("redis down")
	if _, _, err := f.svc.Authenticate(context.Background(), login.Tokens.AccessToken, login.SessionSecret); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on session load, got %v", err)
	}
}

func TestAuthService_AuthenticateDestroyedSession(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)

	login, err := f.svc.Login(context.Background(), "a@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := f.sessions.Destroy(context.Background(), login.SessionSecret); err != nil {
		t.Fatalf("Destroy returned error: %v", err)
	}

	// The token itself is still cryptographically valid, but the session is gone.
	if _, _, err := f.svc.Authenticate(context.Background(), login.Tokens.AccessToken, login.SessionSecret); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAuthService_LogoutRevokesEverything(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)

	login, err := f.svc.Login(context.Background(), "a@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := f.svc.Logout(context.Background(), login.SessionSecret, login.Tokens.AccessToken, login.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	if _, _, err := f.svc.Authenticate(context.Background(), login.Tokens.AccessToken, login.SessionSecret); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected blacklisted access token, got %v", err)
	}
	if !f.sessions.blacklist[login.Tokens.RefreshToken] {
		t.Fatalf("expected refresh token to be blacklisted")
	}
	if f.identity.signOuts != 1 {
		t.Fatalf("expected best-effort provider sign-out, got %d", f.identity.signOuts)
	}
	if len(f.events.sessionsRevoked) != 1 || f.events.sessionsRevoked[0].Reason != "logout" {
		t.Fatalf("expected one logout event, got %+v", f.events.sessionsRevoked)
	}

	// Idempotent: a second logout with the same inputs succeeds.
	if err := f.svc.Logout(context.Background(), login.SessionSecret, login.Tokens.AccessToken, login.Tokens.RefreshToken); err != nil {
		t.Fatalf("repeated Logout returned error: %v", err)
	}
}

func TestAuthService_LogoutAll(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Login(context.Background(), "a@example.com", "pw", domain.DeviceInfo{}); err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
	}

	count, err := f.svc.LogoutAll(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LogoutAll returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 destroyed sessions, got %d", count)
	}
	if len(f.events.sessionsRevoked) != 1 || f.events.sessionsRevoked[0].Sessions != 3 {
		t.Fatalf("expected logout_all event with 3 sessions, got %+v", f.events.sessionsRevoked)
	}
}

func TestAuthService_CurrentUserUsesCache(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)
	f.profiles.roles["user-1"] = domain.RoleStudent

	info, err := f.svc.CurrentUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CurrentUser returned error: %v", err)
	}
	if info.Email != "a@example.com" {
		t.Fatalf("unexpected user info: %+v", info)
	}

	// Drop the upstream account; the cached view still answers.
	if err := f.identity.DeleteUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	cached, err := f.svc.CurrentUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CurrentUser from cache returned error: %v", err)
	}
	if cached.Email != "a@example.com" {
		t.Fatalf("expected cached info, got %+v", cached)
	}
}

func TestAuthService_RevokeSession(t *testing.T) {
	f := newAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)

	login, err := f.svc.Login(context.Background(), "a@example.com", "pw", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	session, err := f.sessions.Get(context.Background(), login.SessionSecret)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if err := f.svc.RevokeSession(context.Background(), "user-1", session.SecretHash); err != nil {
		t.Fatalf("RevokeSession returned error: %v", err)
	}

	sessions, err := f.svc.Sessions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Sessions returned error: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions left, got %d", len(sessions))
	}
}

func TestAuthService_LoginEvictsLeastActiveOverCap(t *testing.T) {
	f := newAuthFixture()
	f.svc = NewAuthService(AuthConfig{
		SessionTTL:  168 * time.Hour,
		UserInfoTTL: time.Minute,
		MaxSessions: 2,
	}, f.identity, f.sessions, f.profiles, f.cache, f.codec, f.events, zap.NewNop())
	f.identity.addUser("user-1", "capped@example.com", nil)

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Login(context.Background(), "capped@example.com", "pw", domain.DeviceInfo{}); err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
	}
	// Make the first session unambiguously the least recently active.
	f.sessions.sessions["secret-1"].LastActivity = time.Now().UTC().Add(-time.Hour)

	if _, err := f.svc.Login(context.Background(), "capped@example.com", "pw", domain.DeviceInfo{}); err != nil {
		t.Fatalf("Login over cap returned error: %v", err)
	}

	if _, ok := f.sessions.sessions["secret-1"]; ok {
		t.Fatalf("expected the least recently active session to be evicted")
	}
	if len(f.sessions.sessions) != 2 {
		t.Fatalf("expected the cap to hold at 2 sessions, got %d", len(f.sessions.sessions))
	}
	for _, secret := range []string{"secret-2", "secret-3"} {
		if _, ok := f.sessions.sessions[secret]; !ok {
			t.Fatalf("expected session %s to survive eviction", secret)
		}
	}
}

func TestAuthService_RequestPasswordReset(t *testing.T) {
	f := newAuthFixture()

	// Unknown emails are treated the same as known ones.
	if err := f.svc.RequestPasswordReset(context.Background(), " Unknown@Example.com "); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}
	if len(f.identity.resets) != 1 || f.identity.resets[0] != "unknown@example.com" {
		t.Fatalf("expected normalised reset email, got %v", f.identity.resets)
	}
}
