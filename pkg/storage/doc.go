// Package storage provides the persistence layer: PostgreSQL connection
// management and schema migration, a Redis cache for unread notification
// counts, and an S3 client for archiving generated reports.
//
// Connections are opened once at startup:
//
//	db, err := storage.Connect(cfg)
//	if err := storage.Migrate(ctx, db); err != nil { ... }
//
// Redis and S3 are optional. When the Redis URL is empty the callers fall
// back to direct database counts; when S3 is not configured reports are
// returned inline without archiving.
package storage
