// Package policy implements the access control core: object-level
// permission checks over owned, self, and unowned resources, and scope
// filters pushed into list queries.
//
// The rules are small and fixed. Admins can do anything, managers manage
// content and USER-level accounts, basic users own only their records.
// Ownership always wins: a basic user edits their own event even though
// users generally cannot edit events.
//
//	if err := engine.Authorize(p, policy.Owned{Type: "event", OwnerID: e.OwnerID, OwnerRole: ownerRole}, policy.ActionWrite); err != nil {
//		// err is policy.ErrForbidden
//	}
package policy
