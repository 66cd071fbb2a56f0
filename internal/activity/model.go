// Package activity records append-only user activity and audit events.
package activity

import (
	"time"

	"github.com/google/uuid"
)

// Type tags an activity event.
type Type string

const (
	TypeLogin          Type = "auth.login"
	TypeLogout         Type = "auth.logout"
	TypeProfileUpdate  Type = "profile.update"
	TypeSettingsUpdate Type = "settings.update"
)

// Severity classifies an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one record in the user_activity collection: something a user did,
// shown on their activity feed.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	UserID    string            `json:"user_id"`
	Type      Type              `json:"type"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// AuditEntry is one record in the audit_logs collection: an administrative
// trail entry, never shown to end users.
type AuditEntry struct {
	ID           uuid.UUID `json:"id"`
	ActorUserID  string    `json:"actor_user_id,omitempty"` // empty for anonymous actors
	Action       string    `json:"action"`
	TargetUserID string    `json:"target_user_id,omitempty"`
	Severity     Severity  `json:"severity"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
