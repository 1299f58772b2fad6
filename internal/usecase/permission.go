package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

var (
	// ErrNotEmployee indicates a permission check against a non-employee user.
	ErrNotEmployee = errors.New("user is not an employee")
	// ErrInsufficientLevel indicates the actor's level does not cover the target.
	ErrInsufficientLevel = errors.New("insufficient permission level")
	// ErrInvalidSubtype indicates an unknown employment subtype.
	ErrInvalidSubtype = errors.New("invalid employment subtype")
)

const permissionCachePrefix = "permission:"

// PermissionService resolves numeric permission levels from employment
// subtypes. Levels are cached briefly and derived fresh on every protected
// decision rather than baked into tokens, so a subtype change takes effect
// within one cache window.
type PermissionService struct {
	profiles port.ProfileRepository
	cache    port.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewPermissionService constructs a PermissionService instance.
func NewPermissionService(profiles port.ProfileRepository, cache port.Cache, cacheTTL time.Duration, log *zap.Logger) *PermissionService {
	return &PermissionService{
		profiles: profiles,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log,
	}
}

// Level returns the numeric permission level for the user. Non-employees and
// users without a subtype resolve to zero. Cache failures fall through to
// the profile store.
func (s *PermissionService) Level(ctx context.Context, userID string) (int, error) {
	key := permissionCachePrefix + userID
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		if level, err := strconv.Atoi(cached); err == nil {
			return level, nil
		}
	}

	subtype, err := s.Subtype(ctx, userID)
	if err != nil {
		return 0, err
	}

	level := domain.LevelNone
	if subtype != nil {
		level = domain.LevelForSubtype(*subtype)
	}

	if s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, key, strconv.Itoa(level), s.cacheTTL); err != nil {
			s.logger.Warn("permission cache write failed", zap.Error(err))
		}
	}

	return level, nil
}

// Subtype returns the raw employment subtype, nil for non-employees.
func (s *PermissionService) Subtype(ctx context.Context, userID string) (*string, error) {
	subtype, err := s.profiles.GetEmployeeSubtype(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load subtype: %w", err)
	}
	return subtype, nil
}

// RequireLevel verifies the user meets the minimum level.
func (s *PermissionService) RequireLevel(ctx context.Context, userID string, minimum int) error {
	level, err := s.Level(ctx, userID)
	if err != nil {
		return err
	}
	if level < minimum {
		return ErrInsufficientLevel
	}
	return nil
}

// CanManage reports whether the actor may manage the target. Admins manage
// unconditionally; everyone else must strictly outrank the target.
func (s *PermissionService) CanManage(ctx context.Context, actorID, targetID string) (bool, error) {
	actorSubtype, err := s.Subtype(ctx, actorID)
	if err != nil {
		return false, err
	}
	if actorSubtype == nil {
		return false, nil
	}

	targetSubtype, err := s.Subtype(ctx, targetID)
	if err != nil {
		return false, err
	}

	target := ""
	if targetSubtype != nil {
		target = *targetSubtype
	}
	return domain.CanManage(*actorSubtype, target), nil
}

// SetSubtype updates the target's employment subtype on behalf of the actor
// and drops the target's cached level so the change applies immediately.
func (s *PermissionService) SetSubtype(ctx context.Context, actorID, targetID, subtype string) error {
	if !domain.ValidSubtype(subtype) {
		return ErrInvalidSubtype
	}

	actorSubtype, err := s.Subtype(ctx, actorID)
	if err != nil {
		return err
	}
	if actorSubtype == nil {
		return ErrNotEmployee
	}
	if !domain.CanManage(*actorSubtype, subtype) {
		return ErrInsufficientLevel
	}

	allowed, err := s.CanManage(ctx, actorID, targetID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrInsufficientLevel
	}

	if err := s.profiles.SetEmployeeSubtype(ctx, targetID, &subtype); err != nil {
		return fmt.Errorf("update subtype: %w", err)
	}

	s.Invalidate(ctx, targetID)
	return nil
}

// Invalidate drops the cached level for the user.
func (s *PermissionService) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, permissionCachePrefix+userID); err != nil {
		s.logger.Warn("permission cache invalidation failed", zap.Error(err))
	}
}
