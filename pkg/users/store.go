package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Store holds the account management queries that go beyond what the
// auth store needs for login and session handling
type Store struct {
	db *sql.DB
}

// NewStore creates an account management store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const principalColumns = `id, email, username, first_name, last_name, role, phone, is_active, created_at, updated_at, last_login_at`

func scanPrincipal(row interface{ Scan(...interface{}) error }) (*auth.Principal, error) {
	var p auth.Principal
	var firstName, lastName, phone sql.NullString
	var lastLogin sql.NullTime
	err := row.Scan(&p.ID, &p.Email, &p.Username, &firstName, &lastName,
		&p.Role, &phone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.Phone = phone.String
	if lastLogin.Valid {
		p.LastLoginAt = &lastLogin.Time
	}
	return &p, nil
}

// List returns accounts inside the given scope, ordered by username
func (s *Store) List(ctx context.Context, scope policy.Scope) ([]*auth.Principal, error) {
	if scope.None {
		return []*auth.Principal{}, nil
	}

	query := `SELECT ` + principalColumns + ` FROM principals`
	var args []interface{}
	if scope.Role != nil {
		args = append(args, string(*scope.Role))
		query += ` WHERE role = $1`
	}
	query += ` ORDER BY username`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}
	defer rows.Close()

	list := []*auth.Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Get fetches one account
func (s *Store) Get(ctx context.Context, id int64) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching principal %d: %w", id, err)
	}
	return p, nil
}

// UpdateProfile writes the self-editable fields
func (s *Store) UpdateProfile(ctx context.Context, id int64, firstName, lastName, phone string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET first_name = $1, last_name = $2, phone = $3, updated_at = NOW()
		 WHERE id = $4`,
		firstName, lastName, phone, id)
	if err != nil {
		return fmt.Errorf("updating principal %d: %w", id, err)
	}
	return requireRow(res)
}

// SetRole changes an account's role
func (s *Store) SetRole(ctx context.Context, id int64, role auth.Role) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET role = $1, updated_at = NOW() WHERE id = $2`,
		string(role), id)
	if err != nil {
		return fmt.Errorf("changing role for principal %d: %w", id, err)
	}
	return requireRow(res)
}

// SetActive flips the active flag. Deactivated accounts keep their
// data and can be reactivated later.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("toggling principal %d: %w", id, err)
	}
	return requireRow(res)
}

// Delete permanently removes an account. Owned events go with it via
// the foreign key cascade.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting principal %d: %w", id, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return policy.ErrNotFound
	}
	return nil
}
