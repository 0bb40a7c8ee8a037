// Package notifications implements targeted and broadcast messages with
// per-viewer read state. Visibility is resolved in SQL from one shared
// predicate: active, unexpired, and either explicitly targeted at the
// viewer, matching their role, or untargeted. Read receipts are unique
// per viewer and notification, so marking twice never inflates counts.
package notifications
