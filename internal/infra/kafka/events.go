package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes auth.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string         `json:"user_id"`
		Email        string         `json:"email"`
		Role         string         `json:"role"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		Email:        event.Email,
		Role:         event.Role,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.user.registered", event.UserID, event.RegisteredAt, payload)
}

// PublishSessionCreated publishes auth.session.created events.
func (p *EventPublisher) PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error {
	payload := struct {
		UserID      string    `json:"user_id"`
		Role        string    `json:"role"`
		LoginMethod string    `json:"login_method"`
		IPAddress   *string   `json:"ip_address,omitempty"`
		UserAgent   *string   `json:"user_agent,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		UserID:      event.UserID,
		Role:        event.Role,
		LoginMethod: event.LoginMethod,
		IPAddress:   event.IPAddress,
		UserAgent:   event.UserAgent,
		CreatedAt:   event.CreatedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.session.created", event.UserID, event.CreatedAt, payload)
}

// PublishSessionRevoked publishes auth.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		Reason    string    `json:"reason"`
		Sessions  int       `json:"sessions"`
		RevokedAt time.Time `json:"revoked_at"`
	}{
		UserID:    event.UserID,
		Reason:    event.Reason,
		Sessions:  event.Sessions,
		RevokedAt: event.RevokedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.session.revoked", event.UserID, event.RevokedAt, payload)
}

// PublishBindingCreated publishes auth.binding.created events.
func (p *EventPublisher) PublishBindingCreated(ctx context.Context, event domain.BindingCreatedEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		ExternalID string    `json:"external_id"`
		Channel    string    `json:"channel"`
		Rebind     bool      `json:"rebind"`
		BoundAt    time.Time `json:"bound_at"`
	}{
		UserID:     event.UserID,
		ExternalID: event.ExternalID,
		Channel:    string(event.Channel),
		Rebind:     event.Rebind,
		BoundAt:    event.BoundAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.binding.created", event.UserID, event.BoundAt, payload)
}

// PublishBindingUnlinked publishes auth.binding.unlinked events.
func (p *EventPublisher) PublishBindingUnlinked(ctx context.Context, event domain.BindingUnlinkedEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		Channel    string    `json:"channel"`
		UnlinkedAt time.Time `json:"unlinked_at"`
	}{
		UserID:     event.UserID,
		Channel:    string(event.Channel),
		UnlinkedAt: event.UnlinkedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.binding.unlinked", event.UserID, event.UnlinkedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
