package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs auth.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"email":         event.Email,
		"role":          event.Role,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("auth.user.registered", event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishSessionCreated logs auth.session.created events.
func (p *StubPublisher) PublishSessionCreated(_ context.Context, event domain.SessionCreatedEvent) error {
	payload := map[string]any{
		"user_id":      event.UserID,
		"role":         event.Role,
		"login_method": event.LoginMethod,
		"created_at":   event.CreatedAt,
	}
	p.logEvent("auth.session.created", event.UserID, event.CreatedAt, payload)
	return nil
}

// PublishSessionRevoked logs auth.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"reason":     event.Reason,
		"sessions":   event.Sessions,
		"revoked_at": event.RevokedAt,
	}
	p.logEvent("auth.session.revoked", event.UserID, event.RevokedAt, payload)
	return nil
}

// PublishBindingCreated logs auth.binding.created events.
func (p *StubPublisher) PublishBindingCreated(_ context.Context, event domain.BindingCreatedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"external_id": event.ExternalID,
		"channel":     event.Channel,
		"rebind":      event.Rebind,
		"bound_at":    event.BoundAt,
	}
	p.logEvent("auth.binding.created", event.UserID, event.BoundAt, payload)
	return nil
}

// PublishBindingUnlinked logs auth.binding.unlinked events.
func (p *StubPublisher) PublishBindingUnlinked(_ context.Context, event domain.BindingUnlinkedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"channel":     event.Channel,
		"unlinked_at": event.UnlinkedAt,
	}
	p.logEvent("auth.binding.unlinked", event.UserID, event.UnlinkedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
