package audit

import (
	"time"
)

// EventType classifies audit entries
type EventType string

const (
	EventLogin                EventType = "auth.login"
	EventLoginFailed          EventType = "auth.login_failed"
	EventLogout               EventType = "auth.logout"
	EventRoleChanged          EventType = "principal.role_changed"
	EventPrincipalDeactivated EventType = "principal.deactivated"
	EventPrincipalDeleted     EventType = "principal.deleted"
	EventAccessDenied         EventType = "policy.access_denied"
	EventReportGenerated      EventType = "report.generated"
)

// Event is one audit trail entry
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// ActorID is the principal who performed the action; nil for
	// unauthenticated events like failed logins
	ActorID   *int64 `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name,omitempty"`

	// SubjectID is the principal the action was performed on, when
	// the target is an account
	SubjectID *int64 `json:"subject_id,omitempty"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`

	// Changes records before/after values, e.g. {"role": ["USER", "MANAGER"]}
	Changes map[string]interface{} `json:"changes,omitempty"`
}
