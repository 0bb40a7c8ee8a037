package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mindara-hq/eventdesk/pkg/contextkeys"
)

// Trail writes audit events to PostgreSQL. When the database write
// fails the event is not lost: it is emitted through a logrus fallback
// so the trail survives in log aggregation.
type Trail struct {
	db       *sql.DB
	fallback *logrus.Logger
}

// NewTrail creates the audit trail and ensures its table exists
func NewTrail(db *sql.DB) (*Trail, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	fallback := logrus.New()
	fallback.SetFormatter(&logrus.JSONFormatter{})

	t := &Trail{db: db, fallback: fallback}
	if err := t.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return t, nil
}

// ensureTable creates the audit_events table if it doesn't exist
func (t *Trail) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		actor_id BIGINT,
		actor_name VARCHAR(255),
		subject_id BIGINT,
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		request_id VARCHAR(100),
		message TEXT,
		changes JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_actor_id ON audit_events(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_subject_id ON audit_events(subject_id);
	`

	_, err := t.db.Exec(query)
	return err
}

// Record writes one audit event. Failures fall through to the logrus
// sink and are never returned to the caller; auditing must not break
// the operation being audited.
func (t *Trail) Record(ctx context.Context, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.RequestID(ctx)
	}

	var changesJSON []byte
	if event.Changes != nil {
		var err error
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			t.logFallback(event, err)
			return
		}
	}

	err := t.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			timestamp, event_type, actor_id, actor_name, subject_id,
			resource_type, resource_id, request_id, message, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		event.Timestamp, event.Type, event.ActorID, event.ActorName,
		event.SubjectID, nullStr(event.ResourceType), nullStr(event.ResourceID),
		nullStr(event.RequestID), nullStr(event.Message), changesJSON).
		Scan(&event.ID)
	if err != nil {
		t.logFallback(event, err)
	}
}

func (t *Trail) logFallback(event *Event, cause error) {
	fields := logrus.Fields{
		"audit_event":   string(event.Type),
		"timestamp":     event.Timestamp,
		"actor_name":    event.ActorName,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
		"request_id":    event.RequestID,
		"message":       event.Message,
		"db_error":      cause.Error(),
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	if event.SubjectID != nil {
		fields["subject_id"] = *event.SubjectID
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}
	t.fallback.WithFields(fields).Error("audit event fell back to log sink")
}

// Recent returns the newest audit events, for the admin panel
func (t *Trail) Recent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, actor_id, actor_name, subject_id,
			resource_type, resource_id, request_id, message, changes
		FROM audit_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	list := []*Event{}
	for rows.Next() {
		var e Event
		var actorID, subjectID sql.NullInt64
		var actorName, resourceType, resourceID, requestID, message sql.NullString
		var changes []byte
		err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &actorID, &actorName,
			&subjectID, &resourceType, &resourceID, &requestID, &message, &changes)
		if err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if actorID.Valid {
			e.ActorID = &actorID.Int64
		}
		if subjectID.Valid {
			e.SubjectID = &subjectID.Int64
		}
		e.ActorName = actorName.String
		e.ResourceType = resourceType.String
		e.ResourceID = resourceID.String
		e.RequestID = requestID.String
		e.Message = message.String
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decoding audit changes: %w", err)
			}
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
