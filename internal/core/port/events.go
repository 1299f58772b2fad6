package port

import (
	"context"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

// EventPublisher emits auth lifecycle events for downstream consumers.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishBindingCreated(ctx context.Context, event domain.BindingCreatedEvent) error
	PublishBindingUnlinked(ctx context.Context, event domain.BindingUnlinkedEvent) error
}
