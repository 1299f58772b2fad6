package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/infra/security"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

const (
	defaultSessionKeyPrefix = "session:"
	defaultIndexKeyPrefix   = "user_sessions:"
	blacklistKeyPrefix      = "blacklist:"
)

// SessionConfig tunes key naming and lifetimes for the session store.
type SessionConfig struct {
	KeyPrefix      string
	IndexKeyPrefix string
	TTL            time.Duration
}

// SessionRepository keeps session records in Redis, keyed by the SHA-256 of
// the client secret. A per-user set indexes live sessions for bulk
// destruction and the blacklist tracks invalidated access tokens.
type SessionRepository struct {
	client *red.Client
	cfg    SessionConfig

	now func() time.Time
}

// NewSessionRepository constructs the Redis session store.
func NewSessionRepository(client *red.Client, cfg SessionConfig) *SessionRepository {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultSessionKeyPrefix
	}
	if cfg.IndexKeyPrefix == "" {
		cfg.IndexKeyPrefix = defaultIndexKeyPrefix
	}
	return &SessionRepository{client: client, cfg: cfg, now: time.Now}
}

func (r *SessionRepository) sessionKey(hash string) string {
	return r.cfg.KeyPrefix + hash
}

func (r *SessionRepository) indexKey(userID string) string {
	return r.cfg.IndexKeyPrefix + userID
}

// Create generates a fresh session secret, persists the record under its
// hash and indexes it for the owner. The raw secret is returned exactly once
// and never stored.
func (r *SessionRepository) Create(ctx context.Context, userID, role string, device domain.DeviceInfo, extra map[string]string) (string, *domain.Session, error) {
	secret, err := security.GenerateSessionSecret()
	if err != nil {
		return "", nil, err
	}

	now := r.now().UTC()
	session := &domain.Session{
		SecretHash:   security.HashToken(secret),
		UserID:       userID,
		Role:         role,
		CreatedAt:    now,
		LastActivity: now,
		Extra:        extra,
	}
	if device.UserAgent != "" {
		ua := device.UserAgent
		session.UserAgent = &ua
	}
	if device.IPAddress != "" {
		ip := device.IPAddress
		session.IPAddress = &ip
	}

	if err := r.write(ctx, session); err != nil {
		return "", nil, err
	}

	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, r.indexKey(userID), session.SecretHash)
	pipe.Expire(ctx, r.indexKey(userID), r.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", nil, fmt.Errorf("redis index session: %w", err)
	}

	return secret, session, nil
}

func (r *SessionRepository) write(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(session.SecretHash), data, r.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Get resolves the record for a raw client secret.
func (r *SessionRepository) Get(ctx context.Context, secret string) (*domain.Session, error) {
	return r.getByHash(ctx, security.HashToken(secret))
}

func (r *SessionRepository) getByHash(ctx context.Context, hash string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// Touch stamps last-activity and re-applies the full TTL so the session
// expires one lifetime after its last use. Reports false when the session no
// longer exists.
func (r *SessionRepository) Touch(ctx context.Context, secret string) (bool, error) {
	hash := security.HashToken(secret)
	session, err := r.getByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	session.Touch(r.now().UTC())
	if err := r.write(ctx, session); err != nil {
		return false, err
	}
	return true, nil
}

// Destroy removes the record and its reverse-index entry.
func (r *SessionRepository) Destroy(ctx context.Context, secret string) error {
	hash := security.HashToken(secret)
	session, err := r.getByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	return r.destroyHash(ctx, session.UserID, hash)
}

// DestroyByHash removes a record addressed by its stored hash.
func (r *SessionRepository) DestroyByHash(ctx context.Context, userID, secretHash string) error {
	return r.destroyHash(ctx, userID, secretHash)
}

func (r *SessionRepository) destroyHash(ctx context.Context, userID, hash string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.sessionKey(hash))
	pipe.SRem(ctx, r.indexKey(userID), hash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis destroy session: %w", err)
	}
	return nil
}

// DestroyAll removes every indexed session for the user and the index
// itself, returning the number of records deleted.
func (r *SessionRepository) DestroyAll(ctx context.Context, userID string) (int, error) {
	hashes, err := r.client.SMembers(ctx, r.indexKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}

	if len(hashes) == 0 {
		if err := r.client.Del(ctx, r.indexKey(userID)).Err(); err != nil {
			return 0, fmt.Errorf("redis delete session index: %w", err)
		}
		return 0, nil
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, r.sessionKey(hash))
	}
	keys = append(keys, r.indexKey(userID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("redis delete user sessions: %w", err)
	}
	return len(hashes), nil
}

// ListByUser returns every live session indexed for the user. Entries whose
// record already expired are pruned from the index on the way out.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	hashes, err := r.client.SMembers(ctx, r.indexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list user sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(hashes))
	for _, hash := range hashes {
		session, err := r.getByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				r.client.SRem(ctx, r.indexKey(userID), hash)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

// Blacklist records the token hash for its remaining lifetime.
func (r *SessionRepository) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := blacklistKeyPrefix + security.HashToken(token)
	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis blacklist token: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether the token was previously invalidated.
func (r *SessionRepository) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	key := blacklistKeyPrefix + security.HashToken(token)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis check blacklist: %w", err)
	}
	return n > 0, nil
}

var _ port.SessionStore = (*SessionRepository)(nil)
