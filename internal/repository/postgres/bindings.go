package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

// BindingRepository implements port.BindingRepository using PostgreSQL. The
// external_users table carries a unique constraint on (external_id, channel),
// so one external account maps to at most one row per channel regardless of
// status.
type BindingRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType

	now func() time.Time
}

// NewBindingRepository wires a PostgreSQL-backed binding repository.
func NewBindingRepository(pool *pgxpool.Pool) *BindingRepository {
	return &BindingRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *BindingRepository) WithTx(tx pgx.Tx) *BindingRepository {
	if tx == nil {
		return r
	}
	return &BindingRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
		now:     r.now,
	}
}

var bindingColumns = []string{
	"id",
	"user_id",
	"external_id",
	"display_name",
	"avatar_url",
	"email",
	"status",
	"channel",
	"notify_booking_confirmation",
	"notify_booking_reminder",
	"notify_status_update",
	"bound_at",
	"unbound_at",
	"created_at",
	"updated_at",
}

func scanBinding(row pgx.Row) (*domain.Binding, error) {
	var b domain.Binding
	var channel string
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.ExternalID,
		&b.DisplayName,
		&b.AvatarURL,
		&b.Email,
		&b.Status,
		&channel,
		&b.Preferences.BookingConfirmation,
		&b.Preferences.BookingReminder,
		&b.Preferences.StatusUpdate,
		&b.BoundAt,
		&b.UnboundAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan binding: %w", err)
	}
	b.Channel = domain.Channel(channel)
	return &b, nil
}

// GetByExternalID returns the record for (external id, channel) in any status.
func (r *BindingRepository) GetByExternalID(ctx context.Context, externalID string, channel domain.Channel) (*domain.Binding, error) {
	stmt, args, err := r.builder.
		Select(bindingColumns...).
		From("external_users").
		Where(squirrel.Eq{"external_id": externalID, "channel": string(channel)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select binding sql: %w", err)
	}

	return scanBinding(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByUser returns the user's active binding for the channel.
func (r *BindingRepository) GetByUser(ctx context.Context, userID string, channel domain.Channel) (*domain.Binding, error) {
	stmt, args, err := r.builder.
		Select(bindingColumns...).
		From("external_users").
		Where(squirrel.Eq{
			"user_id": userID,
			"channel": string(channel),
			"status":  domain.BindingStatusActive,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select binding by user sql: %w", err)
	}

	return scanBinding(r.exec.QueryRow(ctx, stmt, args...))
}

// ListByUser returns the user's bindings across channels.
func (r *BindingRepository) ListByUser(ctx context.Context, userID string, includeUnlinked bool) ([]domain.Binding, error) {
	where := squirrel.And{squirrel.Eq{"user_id": userID}}
	if !includeUnlinked {
		where = append(where, squirrel.Eq{"status": domain.BindingStatusActive})
	}

	stmt, args, err := r.builder.
		Select(bindingColumns...).
		From("external_users").
		Where(where).
		OrderBy("channel").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bindings sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []domain.Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}

	return bindings, nil
}

// Insert creates a fresh binding row with default preferences.
func (r *BindingRepository) Insert(ctx context.Context, binding domain.Binding) (*domain.Binding, error) {
	now := r.now().UTC()
	if binding.ID == "" {
		binding.ID = uuid.NewString()
	}
	if binding.Status == "" {
		binding.Status = domain.BindingStatusActive
	}
	if binding.BoundAt.IsZero() {
		binding.BoundAt = now
	}
	binding.CreatedAt = now
	binding.UpdatedAt = now

	stmt, args, err := r.builder.
		Insert("external_users").
		Columns(bindingColumns...).
		Values(
			binding.ID,
			binding.UserID,
			binding.ExternalID,
			binding.DisplayName,
			binding.AvatarURL,
			binding.Email,
			binding.Status,
			string(binding.Channel),
			binding.Preferences.BookingConfirmation,
			binding.Preferences.BookingReminder,
			binding.Preferences.StatusUpdate,
			binding.BoundAt,
			binding.UnboundAt,
			binding.CreatedAt,
			binding.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert binding sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("insert binding: %w", err)
	}

	return &binding, nil
}

// Rebind re-activates the existing (external id, channel) row for the given
// owner, refreshing display metadata and clearing any unbind timestamp.
// Notification preferences on the row are preserved.
func (r *BindingRepository) Rebind(ctx context.Context, externalID string, channel domain.Channel, userID string, profile domain.ExternalProfile, at time.Time) (*domain.Binding, error) {
	stmt, args, err := r.builder.
		Update("external_users").
		Set("user_id", userID).
		Set("status", domain.BindingStatusActive).
		Set("display_name", profile.DisplayName).
		Set("avatar_url", profile.AvatarURL).
		Set("email", profile.Email).
		Set("bound_at", at.UTC()).
		Set("unbound_at", nil).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"external_id": externalID, "channel": string(channel)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rebind sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("rebind: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, repository.ErrNotFound
	}

	return r.GetByExternalID(ctx, externalID, channel)
}

// Unlink clears the owner and flips status to unlinked, retaining the row.
func (r *BindingRepository) Unlink(ctx context.Context, userID string, channel domain.Channel, at time.Time) error {
	stmt, args, err := r.builder.
		Update("external_users").
		Set("user_id", nil).
		Set("status", domain.BindingStatusUnlinked).
		Set("unbound_at", at.UTC()).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{
			"user_id": userID,
			"channel": string(channel),
			"status":  domain.BindingStatusActive,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unlink sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePreferences replaces the notification flags on the active binding.
func (r *BindingRepository) UpdatePreferences(ctx context.Context, userID string, channel domain.Channel, prefs domain.NotificationPreferences) error {
	stmt, args, err := r.builder.
		Update("external_users").
		Set("notify_booking_confirmation", prefs.BookingConfirmation).
		Set("notify_booking_reminder", prefs.BookingReminder).
		Set("notify_status_update", prefs.StatusUpdate).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{
			"user_id": userID,
			"channel": string(channel),
			"status":  domain.BindingStatusActive,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update preferences sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.BindingRepository = (*BindingRepository)(nil)
