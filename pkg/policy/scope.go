package policy

import (
	"github.com/mindara-hq/eventdesk/pkg/auth"
)

// Scope restricts a list query to the rows a principal may see. Stores
// translate it into a SQL predicate pushed into the query itself; rows
// outside the scope never reach application memory.
type Scope struct {
	// None means the principal sees no rows at all
	None bool

	// OwnerID, when set, restricts to rows owned by that principal
	OwnerID *int64

	// Role, when set, restricts a principal listing to that role
	Role *auth.Role
}

// All reports whether the scope places no restriction
func (s Scope) All() bool {
	return !s.None && s.OwnerID == nil && s.Role == nil
}

// EventScope returns the list filter for events. Admins and managers see
// every event; basic users see their own.
func EventScope(p *auth.Principal) Scope {
	if p.IsAdmin() || p.IsManager() {
		return Scope{}
	}
	id := p.ID
	return Scope{OwnerID: &id}
}

// PrincipalScope returns the list filter for account listings. Admins
// see all accounts, managers see USER-level accounts, basic users have
// no listing capability.
func PrincipalScope(p *auth.Principal) Scope {
	if p.IsAdmin() {
		return Scope{}
	}
	if p.IsManager() {
		role := auth.RoleUser
		return Scope{Role: &role}
	}
	return Scope{None: true}
}
