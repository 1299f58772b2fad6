package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

func newTestCodec() *TokenCodec {
	return NewTokenCodec("test-secret-at-least-32-bytes-long!", "edu-auth-test", 15*time.Minute, 168*time.Hour)
}

func TestTokenCodec_MintAndValidatePair(t *testing.T) {
	codec := newTestCodec()

	pair, err := codec.MintPair("user-1", "student@example.com", "student", "hash-abc")
	if err != nil {
		t.Fatalf("MintPair returned error: %v", err)
	}
	if pair.TokenType != "bearer" {
		t.Fatalf("expected bearer token type, got %s", pair.TokenType)
	}
	if pair.ExpiresIn != int((15 * time.Minute).Seconds()) {
		t.Fatalf("expected expires_in 900, got %d", pair.ExpiresIn)
	}

	claims, err := codec.Validate(pair.AccessToken, domain.TokenKindAccess)
	if err != nil {
		t.Fatalf("Validate access returned error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", claims.Subject)
	}
	if claims.SessionID != "hash-abc" {
		t.Fatalf("expected session id hash-abc, got %s", claims.SessionID)
	}
	if claims.Role != "student" {
		t.Fatalf("expected role student, got %s", claims.Role)
	}
	if claims.TokenKind != string(domain.TokenKindAccess) {
		t.Fatalf("expected access kind, got %s", claims.TokenKind)
	}

	refreshClaims, err := codec.Validate(pair.RefreshToken, domain.TokenKindRefresh)
	if err != nil {
		t.Fatalf("Validate refresh returned error: %v", err)
	}
	if refreshClaims.SessionID != claims.SessionID {
		t.Fatalf("expected both tokens to carry the same session id")
	}
}

func TestTokenCodec_RejectsWrongKind(t *testing.T) {
	codec := newTestCodec()

	pair, err := codec.MintPair("user-1", "a@b.c", "student", "hash-abc")
	if err != nil {
		t.Fatalf("MintPair returned error: %v", err)
	}

	if _, err := codec.Validate(pair.RefreshToken, domain.TokenKindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for refresh-as-access, got %v", err)
	}
	if _, err := codec.Validate(pair.AccessToken, domain.TokenKindRefresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access-as-refresh, got %v", err)
	}
}

func TestTokenCodec_ReportsExpiry(t *testing.T) {
	codec := newTestCodec()

	pair, err := codec.MintPair("user-1", "a@b.c", "student", "hash-abc")
	if err != nil {
		t.Fatalf("MintPair returned error: %v", err)
	}

	codec.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	if _, err := codec.Validate(pair.AccessToken, domain.TokenKindAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	// Refresh token outlives the access token.
	if _, err := codec.Validate(pair.RefreshToken, domain.TokenKindRefresh); err != nil {
		t.Fatalf("refresh token should still be valid: %v", err)
	}
}

func TestTokenCodec_RejectsTamperedSignature(t *testing.T) {
	codec := newTestCodec()

	pair, err := codec.MintPair("user-1", "a@b.c", "student", "hash-abc")
	if err != nil {
		t.Fatalf("MintPair returned error: %v", err)
	}

	other := NewTokenCodec("completely-different-secret-value!!", "edu-auth-test", 15*time.Minute, 168*time.Hour)
	if _, err := other.Validate(pair.AccessToken, domain.TokenKindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign signature, got %v", err)
	}

	parts := strings.Split(pair.AccessToken, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA"
	if _, err := codec.Validate(tampered, domain.TokenKindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestTokenCodec_RejectsWrongIssuer(t *testing.T) {
	other := NewTokenCodec("test-secret-at-least-32-bytes-long!", "someone-else", 15*time.Minute, time.Hour)
	pair, err := other.MintPair("user-1", "a@b.c", "student", "hash-abc")
	if err != nil {
		t.Fatalf("MintPair returned error: %v", err)
	}

	codec := newTestCodec()
	if _, err := codec.Validate(pair.AccessToken, domain.TokenKindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}
}
