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

// ProfileRepository implements port.ProfileRepository using PostgreSQL.
type ProfileRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType

	now func() time.Time
}

// NewProfileRepository wires a PostgreSQL-backed profile repository.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *ProfileRepository) WithTx(tx pgx.Tx) *ProfileRepository {
	if tx == nil {
		return r
	}
	return &ProfileRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
		now:     r.now,
	}
}

var profileColumns = []string{
	"user_id",
	"role",
	"student_id",
	"teacher_id",
	"employee_id",
	"employee_subtype",
	"created_at",
	"updated_at",
}

// GetProfile retrieves the cross-reference row for a user.
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	stmt, args, err := r.builder.
		Select(profileColumns...).
		From("user_profiles").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select profile sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var profile domain.UserProfile
	if err := row.Scan(
		&profile.UserID,
		&profile.Role,
		&profile.StudentID,
		&profile.TeacherID,
		&profile.EmployeeID,
		&profile.EmployeeSubtype,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	return &profile, nil
}

// GetRole returns the role recorded for the user.
func (r *ProfileRepository) GetRole(ctx context.Context, userID string) (string, error) {
	stmt, args, err := r.builder.
		Select("role").
		From("user_profiles").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select role sql: %w", err)
	}

	var role string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("scan role: %w", err)
	}

	return role, nil
}

// GetEmployeeSubtype returns the employment subtype, nil when absent.
func (r *ProfileRepository) GetEmployeeSubtype(ctx context.Context, userID string) (*string, error) {
	stmt, args, err := r.builder.
		Select("employee_subtype").
		From("user_profiles").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select subtype sql: %w", err)
	}

	var subtype *string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&subtype); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan subtype: %w", err)
	}

	return subtype, nil
}

// SetEmployeeSubtype updates the employment subtype for the user.
func (r *ProfileRepository) SetEmployeeSubtype(ctx context.Context, userID string, subtype *string) error {
	stmt, args, err := r.builder.
		Update("user_profiles").
		Set("employee_subtype", subtype).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update subtype sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update subtype: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// InsertProfile creates the cross-reference row.
func (r *ProfileRepository) InsertProfile(ctx context.Context, profile domain.UserProfile) error {
	now := r.now().UTC()
	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	stmt, args, err := r.builder.
		Insert("user_profiles").
		Columns(profileColumns...).
		Values(
			profile.UserID,
			profile.Role,
			profile.StudentID,
			profile.TeacherID,
			profile.EmployeeID,
			profile.EmployeeSubtype,
			createdAt,
			now,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert profile sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	return nil
}

// DeleteProfile removes the cross-reference row. Used for compensating
// rollback during registration.
func (r *ProfileRepository) DeleteProfile(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.
		Delete("user_profiles").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete profile sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	return nil
}

// InsertRoleEntity creates the role-specific row and returns its id.
func (r *ProfileRepository) InsertRoleEntity(ctx context.Context, entity domain.RoleEntity) (string, error) {
	table, numberColumn, err := roleTable(entity.Role)
	if err != nil {
		return "", err
	}

	id := entity.ID
	if id == "" {
		id = uuid.NewString()
	}

	builder := r.builder.
		Insert(table).
		Columns("id", numberColumn, "name", "email").
		Values(id, entity.Number, entity.Name, entity.Email)

	if table == "employees" {
		builder = r.builder.
			Insert(table).
			Columns("id", numberColumn, "name", "email", "subtype", "hire_date").
			Values(id, entity.Number, entity.Name, entity.Email, entity.EmployeeSubtype, entity.HireDate)
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert %s sql: %w", table, err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("insert %s: %w", table, err)
	}

	return id, nil
}

// DeleteRoleEntity removes the role-specific row. Used for compensating
// rollback during registration.
func (r *ProfileRepository) DeleteRoleEntity(ctx context.Context, role, id string) error {
	table, _, err := roleTable(role)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.
		Delete(table).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete %s sql: %w", table, err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}

	return nil
}

func roleTable(role string) (table, numberColumn string, err error) {
	switch role {
	case domain.RoleStudent:
		return "students", "student_number", nil
	case domain.RoleTeacher:
		return "teachers", "teacher_number", nil
	case domain.RoleEmployee, domain.RoleAdmin:
		return "employees", "employee_number", nil
	default:
		return "", "", fmt.Errorf("unknown role %q", role)
	}
}

var _ port.ProfileRepository = (*ProfileRepository)(nil)
