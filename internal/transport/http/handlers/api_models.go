package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued tokens and user summary. Tokens are also
// set as cookies; the body copy serves non-browser clients.
type LoginResponse struct {
	User      domain.UserInfo `json:"user"`
	TokenType string          `json:"token_type"`
	ExpiresIn int64           `json:"expires_in"`
}

// RegisterRequest defines the payload for account provisioning.
type RegisterRequest struct {
	Email           string     `json:"email" binding:"required,email"`
	Password        string     `json:"password" binding:"required"`
	Role            string     `json:"role" binding:"required"`
	Name            string     `json:"name" binding:"required"`
	Number          string     `json:"number" binding:"required"`
	EmployeeSubtype *string    `json:"employee_subtype,omitempty"`
	HireDate        *time.Time `json:"hire_date,omitempty"`
}

// LogoutRequest toggles bulk logout across devices.
type LogoutRequest struct {
	AllDevices bool `json:"all_devices"`
}

// PasswordResetRequest triggers the upstream reset email.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SessionSummary is the device-management view of one session.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	UserAgent    *string   `json:"user_agent,omitempty"`
	IPAddress    *string   `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Current      bool      `json:"current"`
}

// BindingSummary is the API view of an external identity binding.
type BindingSummary struct {
	Channel     domain.Channel                 `json:"channel"`
	DisplayName string                         `json:"display_name"`
	AvatarURL   *string                        `json:"avatar_url,omitempty"`
	Status      string                         `json:"status"`
	BoundAt     time.Time                      `json:"bound_at"`
	Preferences domain.NotificationPreferences `json:"preferences"`
}

func newBindingSummary(b domain.Binding) BindingSummary {
	return BindingSummary{
		Channel:     b.Channel,
		DisplayName: b.DisplayName,
		AvatarURL:   b.AvatarURL,
		Status:      b.Status,
		BoundAt:     b.BoundAt,
		Preferences: b.Preferences,
	}
}

// PreferencesRequest replaces the notification flags on a binding.
type PreferencesRequest struct {
	BookingConfirmation *bool `json:"notify_booking_confirmation"`
	BookingReminder     *bool `json:"notify_booking_reminder"`
	StatusUpdate        *bool `json:"notify_status_update"`
}

// SubtypeRequest updates an employee's employment subtype.
type SubtypeRequest struct {
	Subtype string `json:"subtype" binding:"required"`
}

// PermissionResponse reports the caller's resolved authorization tier.
type PermissionResponse struct {
	UserID  string  `json:"user_id"`
	Level   int     `json:"level"`
	Subtype *string `json:"subtype,omitempty"`
}

// HealthResponse reports service status.
type HealthResponse struct {
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	Checks    map[string]string `json:"checks,omitempty"`
}
