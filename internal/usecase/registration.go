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
	"github.com/d56845684/edu-auth-service/internal/infra/logger"
	"github.com/d56845684/edu-auth-service/internal/infra/security"
	"github.com/d56845684/edu-auth-service/internal/provider"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

var (
	// ErrEmailTaken indicates the email already belongs to a fully registered account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidRole indicates an unknown platform role.
	ErrInvalidRole = errors.New("invalid role")
)

// RegistrationInput carries everything needed to provision an account.
type RegistrationInput struct {
	Email           string
	Password        string
	Role            string
	Name            string
	Number          string
	EmployeeSubtype *string
	HireDate        *time.Time
}

// RegistrationService provisions accounts across the identity provider and
// the relational stores. Each step registers a compensating action; a later
// failure unwinds the earlier steps in reverse order.
type RegistrationService struct {
	identity port.IdentityProvider
	profiles port.ProfileRepository
	events   port.EventPublisher
	logger   *zap.Logger

	now func() time.Time
}

// NewRegistrationService constructs a RegistrationService instance.
func NewRegistrationService(
	identity port.IdentityProvider,
	profiles port.ProfileRepository,
	events port.EventPublisher,
	log *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		identity: identity,
		profiles: profiles,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// Register provisions the upstream account, the role-specific entity and the
// profile cross-reference. If the email already exists upstream but carries
// no local profile, the registration adopts the existing account instead of
// failing, so a half-finished earlier attempt can complete.
func (s *RegistrationService) Register(ctx context.Context, input RegistrationInput) (*domain.UserProfile, error) {
	if !domain.ValidRole(input.Role) {
		return nil, ErrInvalidRole
	}
	if err := security.ValidatePassword(input.Password, input.Email, input.Name); err != nil {
		return nil, err
	}
	if input.Role == domain.RoleEmployee || input.Role == domain.RoleAdmin {
		if input.EmployeeSubtype != nil && !domain.ValidSubtype(*input.EmployeeSubtype) {
			return nil, ErrInvalidSubtype
		}
	}

	var compensations []func(context.Context)
	unwind := func(ctx context.Context) {
		for i := len(compensations) - 1; i >= 0; i-- {
			compensations[i](ctx)
		}
	}

	userID, created, err := s.provisionUpstream(ctx, input)
	if err != nil {
		return nil, err
	}
	if created {
		compensations = append(compensations, func(ctx context.Context) {
			if err := s.identity.DeleteUser(ctx, userID); err != nil {
				s.logger.Error("rollback: delete upstream user failed",
					zap.Error(err), zap.String("user_id", userID))
			}
		})
	}

	entity := domain.RoleEntity{
		Role:            input.Role,
		Number:          input.Number,
		Name:            input.Name,
		Email:           input.Email,
		EmployeeSubtype: input.EmployeeSubtype,
		HireDate:        input.HireDate,
	}
	entityID, err := s.profiles.InsertRoleEntity(ctx, entity)
	if err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("create %s record: %w", input.Role, err)
	}
	compensations = append(compensations, func(ctx context.Context) {
		if err := s.profiles.DeleteRoleEntity(ctx, input.Role, entityID); err != nil {
			s.logger.Error("rollback: delete role entity failed",
				zap.Error(err), zap.String("entity_id", entityID))
		}
	})

	profile := domain.UserProfile{
		UserID:          userID,
		Role:            input.Role,
		EmployeeSubtype: input.EmployeeSubtype,
		CreatedAt:       s.now().UTC(),
	}
	switch input.Role {
	case domain.RoleStudent:
		profile.StudentID = &entityID
	case domain.RoleTeacher:
		profile.TeacherID = &entityID
	case domain.RoleEmployee, domain.RoleAdmin:
		profile.EmployeeID = &entityID
	}

	if err := s.profiles.InsertProfile(ctx, profile); err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("create profile: %w", err)
	}

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       userID,
			Email:        input.Email,
			Role:         input.Role,
			RegisteredAt: profile.CreatedAt,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Warn("publish user registered failed", zap.Error(err))
		}
	}

	s.logger.Info("user registered",
		zap.String("user_id", userID),
		zap.String("role", input.Role),
		zap.String("email", logger.MaskEmail(input.Email)),
	)

	return &profile, nil
}

// provisionUpstream creates the identity-provider account, or adopts an
// existing profile-less account on email conflict. Reports whether a fresh
// account was created, which decides whether rollback may delete it.
func (s *RegistrationService) provisionUpstream(ctx context.Context, input RegistrationInput) (string, bool, error) {
	metadata := map[string]any{
		"role": input.Role,
		"name": input.Name,
	}

	user, err := s.identity.CreateUser(ctx, input.Email, input.Password, metadata)
	if err == nil {
		return user.ID, true, nil
	}
	if !errors.Is(err, provider.ErrEmailConflict) {
		return "", false, fmt.Errorf("create upstream user: %w", err)
	}

	existing, lookupErr := s.identity.GetUserByEmail(ctx, input.Email)
	if lookupErr != nil {
		return "", false, ErrEmailTaken
	}

	if _, profileErr := s.profiles.GetProfile(ctx, existing.ID); profileErr == nil {
		return "", false, ErrEmailTaken
	} else if !errors.Is(profileErr, repository.ErrNotFound) {
		return "", false, fmt.Errorf("check existing profile: %w", profileErr)
	}

	s.logger.Info("adopting orphaned upstream account",
		zap.String("user_id", existing.ID),
		zap.String("email", logger.MaskEmail(input.Email)),
	)
	return existing.ID, false, nil
}
