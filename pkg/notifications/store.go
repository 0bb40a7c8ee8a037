package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Store persists notifications, their targets, and read receipts
type Store struct {
	db *sql.DB
}

// NewStore creates a notification store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const notificationColumns = `n.id, n.title, n.message, n.notification_type,
	n.priority, n.created_by, n.target_role, n.expires_at, n.is_active,
	n.created_at, n.updated_at`

// visibilityPredicate keeps all four visibility rules in one place so
// listing and counting cannot drift apart. Parameters: $1 principal id,
// $2 principal role, $3 now.
const visibilityPredicate = `n.is_active = TRUE
	AND (n.expires_at IS NULL OR n.expires_at > $3)
	AND (
		EXISTS (SELECT 1 FROM notification_targets t
			WHERE t.notification_id = n.id AND t.principal_id = $1)
		OR (
			NOT EXISTS (SELECT 1 FROM notification_targets t
				WHERE t.notification_id = n.id)
			AND (n.target_role IS NULL OR n.target_role = $2)
		)
	)`

func scanNotification(row interface{ Scan(...interface{}) error }, extra ...interface{}) (*Notification, error) {
	var n Notification
	var createdBy sql.NullInt64
	var targetRole sql.NullString
	var expiresAt sql.NullTime
	dest := []interface{}{&n.ID, &n.Title, &n.Message, &n.Type, &n.Priority,
		&createdBy, &targetRole, &expiresAt, &n.IsActive, &n.CreatedAt, &n.UpdatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		n.CreatedBy = &createdBy.Int64
	}
	if targetRole.Valid {
		n.TargetRole = auth.Role(targetRole.String)
	}
	if expiresAt.Valid {
		n.ExpiresAt = &expiresAt.Time
	}
	return &n, nil
}

// Create inserts a notification with its targets. Explicit user targets
// clear any role target so the two never coexist.
func (s *Store) Create(ctx context.Context, n *Notification) error {
	if len(n.TargetUserIDs) > 0 {
		n.TargetRole = ""
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO notifications (title, message, notification_type, priority,
			created_by, target_role, expires_at, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), NOW())
		 RETURNING id, is_active, created_at, updated_at`,
		n.Title, n.Message, n.Type, n.Priority, n.CreatedBy,
		nullRole(n.TargetRole), n.ExpiresAt).
		Scan(&n.ID, &n.IsActive, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	if err := insertTargets(ctx, tx, n.ID, n.TargetUserIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Update rewrites a notification and replaces its targets
func (s *Store) Update(ctx context.Context, n *Notification) error {
	if len(n.TargetUserIDs) > 0 {
		n.TargetRole = ""
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("updating notification %d: %w", n.ID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE notifications SET title = $1, message = $2, notification_type = $3,
			priority = $4, target_role = $5, expires_at = $6, updated_at = NOW()
		 WHERE id = $7`,
		n.Title, n.Message, n.Type, n.Priority, nullRole(n.TargetRole),
		n.ExpiresAt, n.ID)
	if err != nil {
		return fmt.Errorf("updating notification %d: %w", n.ID, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return policy.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notification_targets WHERE notification_id = $1`, n.ID); err != nil {
		return fmt.Errorf("replacing targets for notification %d: %w", n.ID, err)
	}
	if err := insertTargets(ctx, tx, n.ID, n.TargetUserIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTargets(ctx context.Context, tx *sql.Tx, notificationID int64, userIDs []int64) error {
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notification_targets (notification_id, principal_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			notificationID, userID); err != nil {
			return fmt.Errorf("targeting notification %d at principal %d: %w", notificationID, userID, err)
		}
	}
	return nil
}

// Get fetches one notification with its user targets
func (s *Store) Get(ctx context.Context, id int64) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications n WHERE n.id = $1`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching notification %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT principal_id FROM notification_targets WHERE notification_id = $1 ORDER BY principal_id`, id)
	if err != nil {
		return nil, fmt.Errorf("fetching targets for notification %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		n.TargetUserIDs = append(n.TargetUserIDs, userID)
	}
	return n, rows.Err()
}

// ListAll returns every notification, newest first, for management views
func (s *Store) ListAll(ctx context.Context) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications n ORDER BY n.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	list := []*Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// Delete removes a notification; targets and receipts cascade
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting notification %d: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return policy.ErrNotFound
	}
	return nil
}

// SetActive flips the active flag
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("toggling notification %d: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return policy.ErrNotFound
	}
	return nil
}

// VisibleFor returns the notifications the principal can see, newest
// first, with the per-viewer read flag. limit <= 0 means no limit.
func (s *Store) VisibleFor(ctx context.Context, p *auth.Principal, now time.Time, limit int, unreadOnly bool) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + `, r.principal_id IS NOT NULL AS is_read
		FROM notifications n
		LEFT JOIN notification_reads r
			ON r.notification_id = n.id AND r.principal_id = $1
		WHERE ` + visibilityPredicate
	if unreadOnly {
		query += ` AND r.principal_id IS NULL`
	}
	query += ` ORDER BY n.created_at DESC`
	args := []interface{}{p.ID, string(p.Role), now}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing visible notifications: %w", err)
	}
	defer rows.Close()

	list := []*Notification{}
	for rows.Next() {
		var isRead bool
		n, err := scanNotification(rows, &isRead)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.IsRead = isRead
		list = append(list, n)
	}
	return list, rows.Err()
}

// UnreadCount counts the visible notifications without a read receipt
func (s *Store) UnreadCount(ctx context.Context, p *auth.Principal, now time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications n
		 LEFT JOIN notification_reads r
			ON r.notification_id = n.id AND r.principal_id = $1
		 WHERE `+visibilityPredicate+` AND r.principal_id IS NULL`,
		p.ID, string(p.Role), now).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead inserts a read receipt. Reports whether the receipt is new;
// repeated marks are harmless no-ops.
func (s *Store) MarkRead(ctx context.Context, notificationID, principalID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_reads (notification_id, principal_id, read_at)
		 VALUES ($1, $2, NOW()) ON CONFLICT (notification_id, principal_id) DO NOTHING`,
		notificationID, principalID)
	if err != nil {
		return false, fmt.Errorf("marking notification %d read: %w", notificationID, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkAllRead inserts receipts for every visible unread notification
// and returns how many were newly created
func (s *Store) MarkAllRead(ctx context.Context, p *auth.Principal, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_reads (notification_id, principal_id, read_at)
		 SELECT n.id, $1, NOW() FROM notifications n
		 WHERE `+visibilityPredicate+`
		 ON CONFLICT (notification_id, principal_id) DO NOTHING`,
		p.ID, string(p.Role), now)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// DeactivateExpired flips off every active notification whose expiry
// has passed. Run by the janitor.
func (s *Store) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_active = FALSE, updated_at = NOW()
		 WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired notifications: %w", err)
	}
	return res.RowsAffected()
}

// TargetedAt returns notifications explicitly aimed at the given
// principals, for audit views
func (s *Store) TargetedAt(ctx context.Context, principalIDs []int64) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT `+notificationColumns+` FROM notifications n
		 JOIN notification_targets t ON t.notification_id = n.id
		 WHERE t.principal_id = ANY($1)
		 ORDER BY n.created_at DESC`,
		pq.Array(principalIDs))
	if err != nil {
		return nil, fmt.Errorf("listing targeted notifications: %w", err)
	}
	defer rows.Close()

	list := []*Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func nullRole(r auth.Role) interface{} {
	if r == "" {
		return nil
	}
	return string(r)
}
