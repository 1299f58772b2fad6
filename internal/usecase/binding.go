package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

var (
	// ErrBindingConflict indicates the external account is actively bound to
	// a different user.
	ErrBindingConflict = errors.New("external account bound to another user")
	// ErrBindingNotFound indicates the user has no active binding on the channel.
	ErrBindingNotFound = errors.New("binding not found")
)

// BindingService manages external identity bindings and their notification
// preferences.
type BindingService struct {
	bindings port.BindingRepository
	events   port.EventPublisher
	logger   *zap.Logger

	now func() time.Time
}

// NewBindingService constructs a BindingService instance.
func NewBindingService(bindings port.BindingRepository, events port.EventPublisher, log *zap.Logger) *BindingService {
	return &BindingService{
		bindings: bindings,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// Lookup returns the binding for (external id, channel) in any status.
func (s *BindingService) Lookup(ctx context.Context, externalID string, channel domain.Channel) (*domain.Binding, error) {
	return s.bindings.GetByExternalID(ctx, externalID, channel)
}

// CreateOrRebind attaches the external identity to the user. An existing
// record for (external id, channel) is updated in place whatever its status;
// the only rejection is an active record owned by someone else.
func (s *BindingService) CreateOrRebind(ctx context.Context, userID string, channel domain.Channel, profile domain.ExternalProfile) (*domain.Binding, error) {
	now := s.now().UTC()

	existing, err := s.bindings.GetByExternalID(ctx, profile.ExternalID, channel)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup binding: %w", err)
	}

	var binding *domain.Binding
	rebind := false
	if existing != nil {
		if existing.IsActive() && !existing.OwnedBy(userID) {
			return nil, ErrBindingConflict
		}
		binding, err = s.bindings.Rebind(ctx, profile.ExternalID, channel, userID, profile, now)
		if err != nil {
			return nil, fmt.Errorf("rebind: %w", err)
		}
		rebind = true
	} else {
		binding, err = s.bindings.Insert(ctx, domain.Binding{
			UserID:      &userID,
			ExternalID:  profile.ExternalID,
			DisplayName: profile.DisplayName,
			AvatarURL:   profile.AvatarURL,
			Email:       profile.Email,
			Status:      domain.BindingStatusActive,
			Channel:     channel,
			Preferences: domain.DefaultNotificationPreferences(),
			BoundAt:     now,
		})
		if err != nil {
			return nil, fmt.Errorf("insert binding: %w", err)
		}
	}

	if s.events != nil {
		event := domain.BindingCreatedEvent{
			EventID:    uuid.NewString(),
			UserID:     userID,
			ExternalID: profile.ExternalID,
			Channel:    channel,
			Rebind:     rebind,
			BoundAt:    now,
		}
		if err := s.events.PublishBindingCreated(ctx, event); err != nil {
			s.logger.Warn("publish binding created failed", zap.Error(err))
		}
	}

	s.logger.Info("external identity bound",
		zap.String("user_id", userID),
		zap.String("channel", string(channel)),
		zap.Bool("rebind", rebind),
	)
	return binding, nil
}

// Unbind soft-unlinks the user's binding on the channel. The record is
// retained with its owner cleared.
func (s *BindingService) Unbind(ctx context.Context, userID string, channel domain.Channel) error {
	if err := s.bindings.Unlink(ctx, userID, channel, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBindingNotFound
		}
		return fmt.Errorf("unlink binding: %w", err)
	}

	if s.events != nil {
		event := domain.BindingUnlinkedEvent{
			EventID:    uuid.NewString(),
			UserID:     userID,
			Channel:    channel,
			UnlinkedAt: s.now().UTC(),
		}
		if err := s.events.PublishBindingUnlinked(ctx, event); err != nil {
			s.logger.Warn("publish binding unlinked failed", zap.Error(err))
		}
	}
	return nil
}

// Bindings lists the user's bindings across channels.
func (s *BindingService) Bindings(ctx context.Context, userID string, includeUnlinked bool) ([]domain.Binding, error) {
	bindings, err := s.bindings.ListByUser(ctx, userID, includeUnlinked)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return bindings, nil
}

// Binding returns the user's active binding for the channel.
func (s *BindingService) Binding(ctx context.Context, userID string, channel domain.Channel) (*domain.Binding, error) {
	binding, err := s.bindings.GetByUser(ctx, userID, channel)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("load binding: %w", err)
	}
	return binding, nil
}

// UpdatePreferences replaces the notification flags on the user's active
// binding for the channel.
func (s *BindingService) UpdatePreferences(ctx context.Context, userID string, channel domain.Channel, prefs domain.NotificationPreferences) error {
	if err := s.bindings.UpdatePreferences(ctx, userID, channel, prefs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBindingNotFound
		}
		return fmt.Errorf("update preferences: %w", err)
	}
	return nil
}

// IsOptedIn answers the notification collaborator's single question: does
// this user hold an active binding on the channel with the kind enabled.
func (s *BindingService) IsOptedIn(ctx context.Context, userID string, channel domain.Channel, kind domain.NotificationKind) (bool, error) {
	binding, err := s.bindings.GetByUser(ctx, userID, channel)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load binding: %w", err)
	}
	return binding.IsActive() && binding.Preferences.OptedIn(kind), nil
}
