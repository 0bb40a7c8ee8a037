package auth

import "time"

// Role is the access level of a principal. Every principal has exactly one.
type Role string

const (
	RoleAdmin   Role = "ADMIN"   // full access to the system
	RoleManager Role = "MANAGER" // content management plus USER-level account management
	RoleUser    Role = "USER"    // basic access, own records only
)

// Valid reports whether r is one of the three defined roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// Principal represents an authenticated user account
type Principal struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Role        Role       `json:"role"`
	Phone       string     `json:"phone,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// DisplayName returns "First Last" when both are set, otherwise the username
func (p *Principal) DisplayName() string {
	if p.FirstName != "" && p.LastName != "" {
		return p.FirstName + " " + p.LastName
	}
	return p.Username
}

// IsAdmin reports whether the principal is an administrator
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsManager reports whether the principal is a manager
func (p *Principal) IsManager() bool {
	return p.Role == RoleManager
}

// IsBasic reports whether the principal has the basic USER role
func (p *Principal) IsBasic() bool {
	return p.Role == RoleUser
}

// CanManageUsers reports whether the principal may manage other accounts.
// Admins manage every account; managers manage USER-level accounts only
// (the per-object restriction lives in the policy engine).
func (p *Principal) CanManageUsers() bool {
	return p.Role == RoleAdmin || p.Role == RoleManager
}

// CanAccessAdminPanel reports whether the principal may use the admin surface
func (p *Principal) CanAccessAdminPanel() bool {
	return p.Role == RoleAdmin
}

// Session represents an authenticated browser/API session
type Session struct {
	ID          int64      `json:"id"`
	PrincipalID int64      `json:"principal_id"`
	TokenHash   string     `json:"-"` // never expose the hash
	TokenPrefix string     `json:"token_prefix"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Expired reports whether the session has passed its expiry at the given instant
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
