package redis

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

const stateKeyPrefix = "oauth_state:"

// StateRepository stores single-use OAuth state payloads. Consumption uses
// GETDEL so two callbacks racing on the same token cannot both win.
type StateRepository struct {
	client *red.Client
}

func NewStateRepository(client *red.Client) *StateRepository {
	return &StateRepository{client: client}
}

// Issue stores the payload under a fresh 128-bit random token.
func (r *StateRepository) Issue(ctx context.Context, state domain.OAuthState, ttl time.Duration) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode oauth state: %w", err)
	}

	if err := r.client.Set(ctx, stateKeyPrefix+token, data, ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set oauth state: %w", err)
	}
	return token, nil
}

// Consume atomically fetches and deletes the payload.
func (r *StateRepository) Consume(ctx context.Context, token string) (*domain.OAuthState, error) {
	data, err := r.client.GetDel(ctx, stateKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel oauth state: %w", err)
	}

	var state domain.OAuthState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode oauth state: %w", err)
	}
	return &state, nil
}

var _ port.OAuthStateStore = (*StateRepository)(nil)
