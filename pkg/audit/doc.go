// Package audit keeps a durable trail of security-relevant actions:
// logins, role changes, account deactivation and deletion, and denied
// access. Events land in PostgreSQL; if that write fails they are
// re-emitted through logrus so the trail is never silently dropped.
package audit
