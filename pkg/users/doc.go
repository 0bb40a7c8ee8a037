// Package users is the account management surface: listing, profile
// edits, role changes, deactivation, and deletion, each gated by the
// access policy. Role changes and deletions are admin-only and never
// apply to the acting admin's own account.
package users
