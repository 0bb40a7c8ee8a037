package reports

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HistoryStore records generated reports. The SQL here sticks to the
// portable subset that PostgreSQL and SQLite share, so tests can run
// against an in-process database.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates the report history store
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// EnsureTable creates the history table if missing. The server runs the
// full migration instead; this exists for embedded test databases.
func (s *HistoryStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS report_history (
		id INTEGER PRIMARY KEY,
		report_type VARCHAR(30) NOT NULL,
		format VARCHAR(10) NOT NULL,
		filename VARCHAR(255) NOT NULL,
		generated_by BIGINT NOT NULL,
		row_count INTEGER NOT NULL,
		archive_key VARCHAR(512),
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensuring report_history table: %w", err)
	}
	return nil
}

// Insert records one generated report
func (s *HistoryStore) Insert(ctx context.Context, entry *HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO report_history (report_type, format, filename, generated_by, row_count, archive_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(entry.Kind), entry.Format, entry.Filename, entry.GeneratedBy,
		entry.RowCount, entry.ArchiveKey, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording report history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// SetArchiveKey fills in the archive location once the upload finishes
func (s *HistoryStore) SetArchiveKey(ctx context.Context, id int64, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE report_history SET archive_key = $1 WHERE id = $2`, key, id)
	if err != nil {
		return fmt.Errorf("updating archive key for report %d: %w", id, err)
	}
	return nil
}

// ListRecent returns the newest history entries across all principals
func (s *HistoryStore) ListRecent(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_type, format, filename, generated_by, row_count, archive_key, created_at
		FROM report_history ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing report history: %w", err)
	}
	return collectHistory(rows)
}

// ListByPrincipal returns the newest history entries generated by one
// principal
func (s *HistoryStore) ListByPrincipal(ctx context.Context, principalID int64, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_type, format, filename, generated_by, row_count, archive_key, created_at
		FROM report_history WHERE generated_by = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, principalID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing report history for principal %d: %w", principalID, err)
	}
	return collectHistory(rows)
}

func collectHistory(rows *sql.Rows) ([]*HistoryEntry, error) {
	defer rows.Close()

	list := []*HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var kind string
		var archiveKey sql.NullString
		err := rows.Scan(&e.ID, &kind, &e.Format, &e.Filename, &e.GeneratedBy,
			&e.RowCount, &archiveKey, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning report history: %w", err)
		}
		e.Kind = Kind(kind)
		e.ArchiveKey = archiveKey.String
		list = append(list, &e)
	}
	return list, rows.Err()
}

// Prune deletes history entries older than the cutoff and returns how
// many were removed. Run by the janitor.
func (s *HistoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM report_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning report history: %w", err)
	}
	return res.RowsAffected()
}
