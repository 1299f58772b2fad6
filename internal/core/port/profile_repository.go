package port

import (
	"context"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

// ProfileRepository accesses the relational profile/role store.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// GetRole returns the role recorded for the user, or
	// repository.ErrNotFound.
	GetRole(ctx context.Context, userID string) (string, error)

	// GetEmployeeSubtype returns the employment subtype, nil when the user is
	// not an employee.
	GetEmployeeSubtype(ctx context.Context, userID string) (*string, error)

	// SetEmployeeSubtype updates the subtype. Callers must invalidate the
	// permission cache afterwards.
	SetEmployeeSubtype(ctx context.Context, userID string, subtype *string) error

	InsertProfile(ctx context.Context, profile domain.UserProfile) error
	DeleteProfile(ctx context.Context, userID string) error

	// InsertRoleEntity creates the role-specific row and returns its id.
	InsertRoleEntity(ctx context.Context, entity domain.RoleEntity) (string, error)
	DeleteRoleEntity(ctx context.Context, role, id string) error
}
