package policy

import "errors"

var (
	// ErrForbidden means the principal is authenticated but lacks the
	// capability for the attempted action. Boundaries map it to 403.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the resource id does not resolve at all.
	// Boundaries map it to 404, distinct from ErrForbidden.
	ErrNotFound = errors.New("not found")
)
