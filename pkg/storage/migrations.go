package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the core schema if it does not exist. The statements
// are idempotent so every binary can run them at startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS principals (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		username VARCHAR(150) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		first_name VARCHAR(150),
		last_name VARCHAR(150),
		role VARCHAR(20) NOT NULL DEFAULT 'USER',
		phone VARCHAR(30),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		last_login_at TIMESTAMP WITH TIME ZONE
	);
	CREATE INDEX IF NOT EXISTS idx_principals_role ON principals(role);

	CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		principal_id BIGINT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
		token_hash VARCHAR(64) NOT NULL UNIQUE,
		token_prefix VARCHAR(20) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		last_seen_at TIMESTAMP WITH TIME ZONE,
		revoked_at TIMESTAMP WITH TIME ZONE
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_principal ON sessions(principal_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT 'Evento sin nombre',
		objective TEXT NOT NULL DEFAULT 'Por definir',
		venue VARCHAR(255) NOT NULL DEFAULT 'Por definir',
		maps_link TEXT,
		event_date DATE NOT NULL,
		event_time VARCHAR(5) NOT NULL DEFAULT '09:00',
		duration_code VARCHAR(10) NOT NULL DEFAULT '2',
		custom_duration NUMERIC(5,2),
		capacity INTEGER NOT NULL DEFAULT 10,
		participants TEXT,
		stage VARCHAR(20) NOT NULL DEFAULT 'planning',
		priority VARCHAR(10) NOT NULL DEFAULT 'medium',
		has_exec_folder BOOLEAN NOT NULL DEFAULT FALSE,
		exec_folder_link TEXT,
		evidence TEXT,
		commitments TEXT,
		observations TEXT,
		owner_id BIGINT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_events_owner ON events(owner_id);
	CREATE INDEX IF NOT EXISTS idx_events_stage ON events(stage);
	CREATE INDEX IF NOT EXISTS idx_events_date ON events(event_date);

	CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		body TEXT NOT NULL,
		notification_type VARCHAR(20) NOT NULL DEFAULT 'general',
		priority VARCHAR(10) NOT NULL DEFAULT 'medium',
		created_by BIGINT REFERENCES principals(id) ON DELETE SET NULL,
		target_role VARCHAR(20),
		expires_at TIMESTAMP WITH TIME ZONE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_active ON notifications(is_active, expires_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_role ON notifications(target_role);

	CREATE TABLE IF NOT EXISTS notification_targets (
		notification_id BIGINT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
		principal_id BIGINT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
		PRIMARY KEY (notification_id, principal_id)
	);
	CREATE INDEX IF NOT EXISTS idx_notification_targets_principal ON notification_targets(principal_id);

	CREATE TABLE IF NOT EXISTS notification_reads (
		id BIGSERIAL PRIMARY KEY,
		notification_id BIGINT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
		principal_id BIGINT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
		read_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (notification_id, principal_id)
	);
	CREATE INDEX IF NOT EXISTS idx_notification_reads_principal ON notification_reads(principal_id);

	CREATE TABLE IF NOT EXISTS sso_identities (
		id BIGSERIAL PRIMARY KEY,
		provider VARCHAR(50) NOT NULL,
		external_id VARCHAR(255) NOT NULL,
		principal_id BIGINT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		last_login_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (provider, external_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sso_identities_principal ON sso_identities(principal_id);

	CREATE TABLE IF NOT EXISTS report_history (
		id BIGSERIAL PRIMARY KEY,
		report_type VARCHAR(30) NOT NULL,
		format VARCHAR(10) NOT NULL,
		filename VARCHAR(255) NOT NULL,
		generated_by BIGINT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
		row_count INTEGER NOT NULL DEFAULT 0,
		archive_key TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_report_history_user ON report_history(generated_by, created_at DESC);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
