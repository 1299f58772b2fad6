package domain

import "time"

// UserRegisteredEvent is published after the registration saga commits.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	Role         string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// SessionCreatedEvent is published when a login materialises a session.
type SessionCreatedEvent struct {
	EventID     string
	UserID      string
	Role        string
	LoginMethod string
	IPAddress   *string
	UserAgent   *string
	CreatedAt   time.Time
}

// SessionRevokedEvent is published on logout or bulk session destruction.
type SessionRevokedEvent struct {
	EventID   string
	UserID    string
	Reason    string
	Sessions  int
	RevokedAt time.Time
}

// BindingCreatedEvent is published when an external identity is bound or
// re-bound to a local account.
type BindingCreatedEvent struct {
	EventID    string
	UserID     string
	ExternalID string
	Channel    Channel
	Rebind     bool
	BoundAt    time.Time
}

// BindingUnlinkedEvent is published on soft-unlink.
type BindingUnlinkedEvent struct {
	EventID    string
	UserID     string
	Channel    Channel
	UnlinkedAt time.Time
}
