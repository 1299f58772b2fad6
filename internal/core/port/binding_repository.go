package port

import (
	"context"
	"time"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

// BindingRepository persists external identity bindings. At most one binding
// per (external id, channel) pair exists in any status; re-binding updates
// the row in place rather than inserting a duplicate.
type BindingRepository interface {
	// GetByExternalID returns the record for (external id, channel) in any
	// status, or repository.ErrNotFound.
	GetByExternalID(ctx context.Context, externalID string, channel domain.Channel) (*domain.Binding, error)

	// GetByUser returns the user's binding for the channel, or
	// repository.ErrNotFound.
	GetByUser(ctx context.Context, userID string, channel domain.Channel) (*domain.Binding, error)

	// ListByUser returns the user's bindings across channels.
	ListByUser(ctx context.Context, userID string, includeUnlinked bool) ([]domain.Binding, error)

	Insert(ctx context.Context, binding domain.Binding) (*domain.Binding, error)

	// Rebind re-activates the existing (external id, channel) record for the
	// given owner and refreshes display metadata.
	Rebind(ctx context.Context, externalID string, channel domain.Channel, userID string, profile domain.ExternalProfile, at time.Time) (*domain.Binding, error)

	// Unlink clears the owner and flips status to unlinked, retaining the row.
	Unlink(ctx context.Context, userID string, channel domain.Channel, at time.Time) error

	UpdatePreferences(ctx context.Context, userID string, channel domain.Channel, prefs domain.NotificationPreferences) error
}
