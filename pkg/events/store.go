package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Store persists events in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates an event store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListFilters narrows an event listing beyond the role scope
type ListFilters struct {
	// Search matches name or objective, case-insensitive substring
	Search string

	// Status is a stage-group keyword: active, completed, or cancelled
	Status string

	// From and To bound the event date, inclusive
	From *time.Time
	To   *time.Time

	// Stage restricts to one exact stage, for report queries
	Stage Stage
}

const eventColumns = `e.id, e.name, e.objective, e.venue, e.maps_link,
	to_char(e.event_date, 'YYYY-MM-DD'), e.event_time, e.duration_code,
	e.custom_duration, e.capacity, e.participants, e.stage, e.priority,
	e.has_exec_folder, e.exec_folder_link, e.evidence, e.commitments,
	e.observations, e.owner_id, p.role,
	COALESCE(NULLIF(TRIM(CONCAT(p.first_name, ' ', p.last_name)), ''), p.username),
	e.created_at, e.updated_at`

const eventFrom = ` FROM events e JOIN principals p ON p.id = e.owner_id`

func scanEvent(row interface{ Scan(...interface{}) error }) (*Event, error) {
	var e Event
	var mapsLink, participants, execLink, evidence, commitments, observations sql.NullString
	var customDuration sql.NullFloat64
	err := row.Scan(&e.ID, &e.Name, &e.Objective, &e.Venue, &mapsLink,
		&e.Date, &e.Time, &e.DurationCode, &customDuration, &e.Capacity,
		&participants, &e.Stage, &e.Priority, &e.HasExecFolder, &execLink,
		&evidence, &commitments, &observations, &e.OwnerID, &e.OwnerRole,
		&e.OwnerDisplayName, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.MapsLink = mapsLink.String
	e.Participants = participants.String
	e.ExecFolderLink = execLink.String
	e.Evidence = evidence.String
	e.Commitments = commitments.String
	e.Observations = observations.String
	if customDuration.Valid {
		e.CustomDuration = &customDuration.Float64
	}
	return &e, nil
}

// List returns the events inside the principal's scope matching the
// filters, newest event date first. The scope is part of the SQL
// predicate; out-of-scope rows never leave the database.
func (s *Store) List(ctx context.Context, scope policy.Scope, f ListFilters) ([]*Event, error) {
	if scope.None {
		return []*Event{}, nil
	}

	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if scope.OwnerID != nil {
		conds = append(conds, "e.owner_id = "+arg(*scope.OwnerID))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(e.name ILIKE "+p+" OR e.objective ILIKE "+p+")")
	}
	if f.Status != "" {
		stages, ok := StatusGroup[f.Status]
		if !ok {
			return nil, &ValidationError{Field: "status", Reason: ReasonInvalidValue}
		}
		placeholders := make([]string, len(stages))
		for i, st := range stages {
			placeholders[i] = arg(string(st))
		}
		conds = append(conds, "e.stage IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Stage != "" {
		conds = append(conds, "e.stage = "+arg(string(f.Stage)))
	}
	if f.From != nil {
		conds = append(conds, "e.event_date >= "+arg(f.From.Format(DateLayout)))
	}
	if f.To != nil {
		conds = append(conds, "e.event_date <= "+arg(f.To.Format(DateLayout)))
	}

	query := `SELECT ` + eventColumns + eventFrom
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.event_date DESC, e.event_time DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	list := []*Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return list, nil
}

// Get fetches one event by id
func (s *Store) Get(ctx context.Context, id int64) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+eventFrom+` WHERE e.id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching event %d: %w", id, err)
	}
	return e, nil
}

// Create inserts a new event and fills its id and timestamps
func (s *Store) Create(ctx context.Context, e *Event) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO events (name, objective, venue, maps_link, event_date, event_time,
			duration_code, custom_duration, capacity, participants, stage, priority,
			has_exec_folder, exec_folder_link, evidence, commitments, observations,
			owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		e.Name, e.Objective, e.Venue, nullify(e.MapsLink), e.Date, e.Time,
		e.DurationCode, e.CustomDuration, e.Capacity, nullify(e.Participants),
		e.Stage, e.Priority, e.HasExecFolder, nullify(e.ExecFolderLink),
		nullify(e.Evidence), nullify(e.Commitments), nullify(e.Observations),
		e.OwnerID).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating event: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an event
func (s *Store) Update(ctx context.Context, e *Event) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET name = $1, objective = $2, venue = $3, maps_link = $4,
			event_date = $5, event_time = $6, duration_code = $7, custom_duration = $8,
			capacity = $9, participants = $10, stage = $11, priority = $12,
			has_exec_folder = $13, exec_folder_link = $14, evidence = $15,
			commitments = $16, observations = $17, updated_at = NOW()
		 WHERE id = $18`,
		e.Name, e.Objective, e.Venue, nullify(e.MapsLink), e.Date, e.Time,
		e.DurationCode, e.CustomDuration, e.Capacity, nullify(e.Participants),
		e.Stage, e.Priority, e.HasExecFolder, nullify(e.ExecFolderLink),
		nullify(e.Evidence), nullify(e.Commitments), nullify(e.Observations),
		e.ID)
	if err != nil {
		return fmt.Errorf("updating event %d: %w", e.ID, err)
	}
	return requireRow(res, policy.ErrNotFound)
}

// UpdateEvidence writes only the evidence field
func (s *Store) UpdateEvidence(ctx context.Context, id int64, evidence string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET evidence = $1, updated_at = NOW() WHERE id = $2`,
		nullify(evidence), id)
	if err != nil {
		return fmt.Errorf("updating evidence for event %d: %w", id, err)
	}
	return requireRow(res, policy.ErrNotFound)
}

// Delete removes an event
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting event %d: %w", id, err)
	}
	return requireRow(res, policy.ErrNotFound)
}

// CountByStage returns event counts per stage for the metrics gauge
func (s *Store) CountByStage(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*) FROM events GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Stage]int)
	for rows.Next() {
		var stage Stage
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("counting events: %w", err)
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

// ProfileStats summarizes a principal's own events
type ProfileStats struct {
	Total             int      `json:"total"`
	UpcomingConfirmed int      `json:"upcoming_confirmed"`
	PastConfirmed     int      `json:"past_confirmed"`
	Recent            []*Event `json:"recent"`
}

// ProfileStats computes the profile summary for one owner
func (s *Store) ProfileStats(ctx context.Context, ownerID int64, now time.Time) (*ProfileStats, error) {
	today := now.Format(DateLayout)
	stats := &ProfileStats{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE stage = 'confirmed' AND event_date >= $2),
			COUNT(*) FILTER (WHERE stage = 'confirmed' AND event_date < $2)
		 FROM events WHERE owner_id = $1`,
		ownerID, today).
		Scan(&stats.Total, &stats.UpcomingConfirmed, &stats.PastConfirmed)
	if err != nil {
		return nil, fmt.Errorf("computing profile stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+eventFrom+` WHERE e.owner_id = $1
		 ORDER BY e.updated_at DESC LIMIT 5`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("fetching recent events: %w", err)
	}
	defer rows.Close()

	stats.Recent = []*Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recent event: %w", err)
		}
		stats.Recent = append(stats.Recent, e)
	}
	return stats, rows.Err()
}

func nullify(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
