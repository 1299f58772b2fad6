package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures and wrong
	// token kinds.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the payload minted into both access and refresh tokens. The
// session id claim carries the hash of the session secret, never the secret
// itself, and no permission level is ever embedded.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid,omitempty"`
	TokenKind string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec mints and validates the stateless HS256 tokens that ride
// alongside the server-side session.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func NewTokenCodec(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL reports the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// MintPair issues a matched access/refresh token pair for the subject. Both
// tokens carry the same session hash so either can be tied back to the
// server-side record.
func (c *TokenCodec) MintPair(userID, email, role, sessionHash string) (*domain.TokenPair, error) {
	access, err := c.mint(userID, email, role, sessionHash, domain.TokenKindAccess, c.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := c.mint(userID, email, role, sessionHash, domain.TokenKindRefresh, c.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(c.accessTTL.Seconds()),
	}, nil
}

func (c *TokenCodec) mint(userID, email, role, sessionHash string, kind domain.TokenKind, ttl time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		Email:     email,
		Role:      role,
		SessionID: sessionHash,
		TokenKind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Validate parses and verifies a token of the expected kind. Expiry is
// reported distinctly so callers can map it to a dedicated error response.
func (c *TokenCodec) Validate(tokenString string, kind domain.TokenKind) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithIssuer(c.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenKind != string(kind) {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, kind)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing subject or session", ErrTokenInvalid)
	}
	return claims, nil
}
