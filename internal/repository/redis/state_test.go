package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

func TestStateRepository_IssueAndConsume(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewStateRepository(client)
	ctx := context.Background()

	userID := "user-1"
	token, err := repo.Issue(ctx, domain.OAuthState{Channel: domain.ChannelTeacher, UserID: &userID}, 10*time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a non-empty state token")
	}

	state, err := repo.Consume(ctx, token)
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if state.Channel != domain.ChannelTeacher {
		t.Fatalf("expected teacher channel, got %s", state.Channel)
	}
	if state.UserID == nil || *state.UserID != "user-1" {
		t.Fatalf("expected linking user to round-trip")
	}

	// Single use: the second consume must miss.
	if _, err := repo.Consume(ctx, token); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replayed state, got %v", err)
	}
}

func TestStateRepository_ConsumeExpired(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewStateRepository(client)
	ctx := context.Background()

	token, err := repo.Issue(ctx, domain.OAuthState{Channel: domain.ChannelStudent}, time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := repo.Consume(ctx, token); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired state, got %v", err)
	}
}

func TestStateRepository_ConsumeUnknown(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewStateRepository(client)

	if _, err := repo.Consume(context.Background(), "never-issued"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}
}
