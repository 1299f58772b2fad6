package domain

import "time"

// Roles recognised by the platform. Role is resolved from the profile store
// at login time and embedded in the access token.
const (
	RoleStudent  = "student"
	RoleTeacher  = "teacher"
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// ValidRole reports whether the supplied role is one the platform accepts at
// registration time.
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// Channel is the role-scoped namespace under which external identity
// bindings and notification preferences are tracked. A user holding several
// roles may bind independently under each channel.
type Channel string

const (
	ChannelStudent  Channel = "student"
	ChannelTeacher  Channel = "teacher"
	ChannelEmployee Channel = "employee"
)

// ValidChannel reports whether the supplied value names a known channel.
func ValidChannel(ch Channel) bool {
	switch ch {
	case ChannelStudent, ChannelTeacher, ChannelEmployee:
		return true
	}
	return false
}

// ChannelForRole maps a platform role onto the channel its external identity
// bindings live under. Admins share the employee channel.
func ChannelForRole(role string) Channel {
	switch role {
	case RoleTeacher:
		return ChannelTeacher
	case RoleEmployee, RoleAdmin:
		return ChannelEmployee
	default:
		return ChannelStudent
	}
}

// RoleForChannel is the default role assigned to accounts provisioned through
// an external-identity login on the given channel.
func RoleForChannel(ch Channel) string {
	switch ch {
	case ChannelTeacher:
		return RoleTeacher
	case ChannelEmployee:
		return RoleEmployee
	default:
		return RoleStudent
	}
}

// UserInfo is the short-lived cached view of an authenticated user.
type UserInfo struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// ExternalUser is the typed view of an upstream identity-provider account.
type ExternalUser struct {
	ID               string
	Email            string
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	Metadata         map[string]any
}

// ExternalSession carries the provider-issued credential pair returned on a
// successful upstream sign-in. It is never persisted locally.
type ExternalSession struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// UserProfile is the cross-reference row linking an upstream auth identity to
// its role-specific entity.
type UserProfile struct {
	UserID          string
	Role            string
	StudentID       *string
	TeacherID       *string
	EmployeeID      *string
	EmployeeSubtype *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RoleEntity is the role-specific record created alongside a registration
// (a students, teachers, or employees row depending on Role).
type RoleEntity struct {
	ID              string
	Role            string
	Number          string
	Name            string
	Email           string
	EmployeeSubtype *string
	HireDate        *time.Time
}
