package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for a bad email/password pair or an
	// inactive account. Callers must not distinguish the two to the client.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound is returned when a token does not resolve to a
	// live session (unknown, expired, or revoked).
	ErrSessionNotFound = errors.New("session not found")

	// ErrPrincipalNotFound is returned when an account lookup misses
	ErrPrincipalNotFound = errors.New("principal not found")
)

// SessionTTL is how long a session stays valid after login
const SessionTTL = 24 * time.Hour

// dummyHash keeps Authenticate constant-time for unknown emails
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Store persists principals and sessions
type Store struct {
	db *sql.DB
}

// NewStore creates an auth store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const principalColumns = `id, email, username, first_name, last_name, role, phone, is_active, created_at, updated_at, last_login_at`

func scanPrincipal(row interface{ Scan(...interface{}) error }) (*Principal, error) {
	var p Principal
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

// GetPrincipal fetches an account by id
func (s *Store) GetPrincipal(ctx context.Context, id int64) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching principal %d: %w", id, err)
	}
	return p, nil
}

// GetPrincipalByEmail fetches an account by email
func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = $1`, email)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching principal by email: %w", err)
	}
	return p, nil
}

// CreatePrincipal inserts a new account with a bcrypt-hashed password.
// Self-registered accounts always start at the basic USER role.
func (s *Store) CreatePrincipal(ctx context.Context, email, username, password string, role Role) (*Principal, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO principals (email, username, password_hash, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		 RETURNING `+principalColumns,
		email, username, string(hash), role)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, fmt.Errorf("creating principal: %w", err)
	}
	return p, nil
}

// Authenticate verifies an email/password pair and returns the account.
// Inactive accounts fail the same way wrong passwords do.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+`, password_hash FROM principals WHERE email = $1`, email)
	var p Principal
	var firstName, lastName, phone sql.NullString
	var lastLogin sql.NullTime
	var passwordHash string
	err := row.Scan(&p.ID, &p.Email, &p.Username, &firstName, &lastName,
		&p.Role, &phone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &lastLogin, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		// burn a comparison so unknown emails take as long as bad passwords
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !p.IsActive {
		return nil, ErrInvalidCredentials
	}
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.Phone = phone.String
	if lastLogin.Valid {
		p.LastLoginAt = &lastLogin.Time
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE principals SET last_login_at = NOW() WHERE id = $1`, p.ID); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	return &p, nil
}

// CreateSession mints a session for a principal and returns the plaintext
// token alongside the stored session row.
func (s *Store) CreateSession(ctx context.Context, principalID int64) (string, *Session, error) {
	plaintext, hash, prefix, err := GenerateToken()
	if err != nil {
		return "", nil, err
	}
	sess := &Session{
		PrincipalID: principalID,
		TokenHash:   hash,
		TokenPrefix: prefix,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO sessions (principal_id, token_hash, token_prefix, created_at, expires_at)
		 VALUES ($1, $2, $3, NOW(), NOW() + make_interval(secs => $4))
		 RETURNING id, created_at, expires_at`,
		principalID, hash, prefix, SessionTTL.Seconds()).
		Scan(&sess.ID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}
	return plaintext, sess, nil
}

// ResolveSession maps a presented token to its principal. Expired and
// revoked sessions resolve to ErrSessionNotFound.
func (s *Store) ResolveSession(ctx context.Context, token string) (*Principal, *Session, error) {
	if !ValidToken(token) {
		return nil, nil, ErrSessionNotFound
	}
	hash := HashToken(token)
	var sess Session
	var lastSeen, revoked sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, principal_id, token_hash, token_prefix, created_at, expires_at, last_seen_at, revoked_at
		 FROM sessions WHERE token_hash = $1`, hash).
		Scan(&sess.ID, &sess.PrincipalID, &sess.TokenHash, &sess.TokenPrefix,
			&sess.CreatedAt, &sess.ExpiresAt, &lastSeen, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolving session: %w", err)
	}
	if revoked.Valid || sess.Expired(time.Now()) {
		return nil, nil, ErrSessionNotFound
	}
	if lastSeen.Valid {
		sess.LastSeenAt = &lastSeen.Time
	}
	p, err := s.GetPrincipal(ctx, sess.PrincipalID)
	if err != nil {
		return nil, nil, err
	}
	if !p.IsActive {
		return nil, nil, ErrSessionNotFound
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = NOW() WHERE id = $1`, sess.ID); err != nil {
		return nil, nil, fmt.Errorf("touching session: %w", err)
	}
	return p, &sess, nil
}

// RevokeSession invalidates a session by token
func (s *Store) RevokeSession(ctx context.Context, token string) error {
	if !ValidToken(token) {
		return ErrSessionNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = NOW() WHERE token_hash = $1 AND revoked_at IS NULL`,
		HashToken(token))
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// PurgeExpiredSessions deletes sessions past their expiry. Run from the
// janitor, it returns the number of rows removed.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return n, nil
}
