package domain

import "time"

// BindingStatus tracks the lifecycle of an external identity binding.
// Records are soft-unlinked rather than deleted so an external account that
// was once bound cannot silently re-register as a brand-new user.
const (
	BindingStatusActive   = "active"
	BindingStatusUnlinked = "unlinked"
)

// NotificationKind enumerates the per-binding notification preference flags.
type NotificationKind string

const (
	NotifyBookingConfirmation NotificationKind = "booking_confirmation"
	NotifyBookingReminder     NotificationKind = "booking_reminder"
	NotifyStatusUpdate        NotificationKind = "status_update"
)

// NotificationPreferences holds the per-kind opt-in flags for a binding.
type NotificationPreferences struct {
	BookingConfirmation bool `json:"notify_booking_confirmation"`
	BookingReminder     bool `json:"notify_booking_reminder"`
	StatusUpdate        bool `json:"notify_status_update"`
}

// DefaultNotificationPreferences returns the opt-in defaults applied to a
// freshly created binding.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		BookingConfirmation: true,
		BookingReminder:     true,
		StatusUpdate:        true,
	}
}

// OptedIn reports whether the given notification kind is enabled.
func (p NotificationPreferences) OptedIn(kind NotificationKind) bool {
	switch kind {
	case NotifyBookingConfirmation:
		return p.BookingConfirmation
	case NotifyBookingReminder:
		return p.BookingReminder
	case NotifyStatusUpdate:
		return p.StatusUpdate
	}
	return false
}

// Binding links a third-party social identity to a local account within a
// channel. UserID is nullable: unbinding clears the owner but retains the
// record and its external account id.
type Binding struct {
	ID          string
	UserID      *string
	ExternalID  string
	DisplayName string
	AvatarURL   *string
	Email       *string
	Status      string
	Channel     Channel
	Preferences NotificationPreferences
	BoundAt     time.Time
	UnboundAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive reports whether the binding currently links an owner.
func (b Binding) IsActive() bool {
	return b.Status == BindingStatusActive && b.UserID != nil
}

// OwnedBy reports whether the binding is actively owned by the given user.
func (b Binding) OwnedBy(userID string) bool {
	return b.IsActive() && *b.UserID == userID
}

// ExternalProfile is the provider-supplied view of a third-party account,
// fetched during the OAuth flow.
type ExternalProfile struct {
	ExternalID  string
	DisplayName string
	AvatarURL   *string
	Email       *string
}

// OAuthTokens carries the credential set returned by the OAuth provider's
// token endpoint.
type OAuthTokens struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresIn    int
	IDToken      string
	Scope        string
}

// OAuthState is the server-side payload bound to a single-use state token
// issued before redirecting to the provider.
type OAuthState struct {
	Channel Channel `json:"channel"`
	UserID  *string `json:"user_id,omitempty"`
}
