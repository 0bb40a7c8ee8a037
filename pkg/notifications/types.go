package notifications

import (
	"time"

	"github.com/mindara-hq/eventdesk/pkg/auth"
)

// Type labels the notification category shown to clients
type Type string

const (
	TypeGeneral  Type = "general"
	TypeEvent    Type = "event"
	TypeReminder Type = "reminder"
	TypeSystem   Type = "system"
)

// Valid reports whether t is a defined type
func (t Type) Valid() bool {
	switch t {
	case TypeGeneral, TypeEvent, TypeReminder, TypeSystem:
		return true
	}
	return false
}

// Priority mirrors the event priority scale
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a defined priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is a broadcast or targeted message. Targeting is
// exclusive: explicit user targets clear any role target, and a
// notification with neither reaches everyone.
type Notification struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Type      Type     `json:"type"`
	Priority  Priority `json:"priority"`
	CreatedBy *int64   `json:"created_by,omitempty"`

	// TargetRole restricts visibility to one role; empty means no
	// role restriction
	TargetRole auth.Role `json:"target_role,omitempty"`

	// TargetUserIDs restricts visibility to specific principals and
	// overrides TargetRole
	TargetUserIDs []int64 `json:"target_user_ids,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// IsRead is filled per-viewer on list queries
	IsRead bool `json:"is_read"`
}

// Expired reports whether the notification's expiry has passed
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// VisibleTo reports whether the notification reaches the principal.
// Inactive and expired notifications reach nobody; user targets win
// over role targets; untargeted notifications are broadcasts.
func (n *Notification) VisibleTo(p *auth.Principal, now time.Time) bool {
	if !n.IsActive || n.Expired(now) {
		return false
	}
	if len(n.TargetUserIDs) > 0 {
		for _, id := range n.TargetUserIDs {
			if id == p.ID {
				return true
			}
		}
		return false
	}
	if n.TargetRole != "" {
		return n.TargetRole == p.Role
	}
	return true
}
