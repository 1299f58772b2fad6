package domain

import "time"

// Session represents one authenticated device login. The record is stored
// under the SHA-256 hash of the client-held secret; the raw secret never
// reaches the store.
type Session struct {
	SecretHash   string            `json:"session_id"`
	UserID       string            `json:"user_id"`
	Role         string            `json:"user_role"`
	UserAgent    *string           `json:"user_agent,omitempty"`
	IPAddress    *string           `json:"ip_address,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Touch updates last-activity metadata for the session when activity occurs.
// Last activity never regresses.
func (s *Session) Touch(at time.Time) {
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
}

// DeviceInfo captures the client fingerprint recorded at login time.
type DeviceInfo struct {
	UserAgent string
	IPAddress string
}
