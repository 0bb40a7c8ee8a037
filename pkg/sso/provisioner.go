package sso

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mindara-hq/eventdesk/pkg/auth"
)

// ErrAccountInactive is returned when the linked account has been deactivated
var ErrAccountInactive = errors.New("account is inactive")

// Provisioner links upstream identities to principals, creating accounts
// just in time on first login. Provisioned accounts always start at the
// basic USER role; promotion happens through user management afterwards.
type Provisioner struct {
	db *sql.DB
}

// NewProvisioner creates a provisioner backed by the given database
func NewProvisioner(db *sql.DB) *Provisioner {
	return &Provisioner{db: db}
}

const principalColumns = `id, email, username, first_name, last_name, role, phone, is_active, created_at, updated_at, last_login_at`

const joinedPrincipalColumns = `p.id, p.email, p.username, p.first_name, p.last_name, p.role, p.phone, p.is_active, p.created_at, p.updated_at, p.last_login_at`

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

// Provision resolves an upstream identity to a local principal. Known
// identities are logged in, identities matching an existing email are
// linked, and unknown identities get a fresh USER-level account.
func (pr *Provisioner) Provision(ctx context.Context, provider string, ext *ExternalUser) (*auth.Principal, error) {
	if ext.ExternalID == "" || ext.Email == "" {
		return nil, fmt.Errorf("external identity is missing id or email")
	}

	row := pr.db.QueryRowContext(ctx,
		`SELECT `+joinedPrincipalColumns+`
		 FROM sso_identities i
		 JOIN principals p ON p.id = i.principal_id
		 WHERE i.provider = $1 AND i.external_id = $2`,
		provider, ext.ExternalID)
	p, err := scanPrincipal(row)
	switch {
	case err == nil:
		return pr.login(ctx, provider, ext, p)
	case errors.Is(err, sql.ErrNoRows):
		// fall through to linking or creation
	default:
		return nil, fmt.Errorf("looking up sso identity: %w", err)
	}

	row = pr.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = $1`, ext.Email)
	p, err = scanPrincipal(row)
	switch {
	case err == nil:
		return pr.link(ctx, provider, ext, p)
	case errors.Is(err, sql.ErrNoRows):
		return pr.create(ctx, provider, ext)
	default:
		return nil, fmt.Errorf("looking up principal by email: %w", err)
	}
}

// login records the visit for an already linked identity
func (pr *Provisioner) login(ctx context.Context, provider string, ext *ExternalUser, p *auth.Principal) (*auth.Principal, error) {
	if !p.IsActive {
		return nil, ErrAccountInactive
	}
	if _, err := pr.db.ExecContext(ctx,
		`UPDATE sso_identities SET last_login_at = NOW() WHERE provider = $1 AND external_id = $2`,
		provider, ext.ExternalID); err != nil {
		return nil, fmt.Errorf("recording sso login: %w", err)
	}
	if _, err := pr.db.ExecContext(ctx,
		`UPDATE principals SET last_login_at = NOW() WHERE id = $1`, p.ID); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	return p, nil
}

// link attaches the identity to an existing account matched by email
func (pr *Provisioner) link(ctx context.Context, provider string, ext *ExternalUser, p *auth.Principal) (*auth.Principal, error) {
	if !p.IsActive {
		return nil, ErrAccountInactive
	}
	if _, err := pr.db.ExecContext(ctx,
		`INSERT INTO sso_identities (provider, external_id, principal_id, created_at, last_login_at)
		 VALUES ($1, $2, $3, NOW(), NOW())`,
		provider, ext.ExternalID, p.ID); err != nil {
		return nil, fmt.Errorf("linking sso identity: %w", err)
	}
	if _, err := pr.db.ExecContext(ctx,
		`UPDATE principals SET last_login_at = NOW() WHERE id = $1`, p.ID); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	return p, nil
}

// create provisions a fresh USER-level account for the identity. The
// password column gets a random throwaway hash so password login cannot
// be used against a provisioned account.
func (pr *Provisioner) create(ctx context.Context, provider string, ext *ExternalUser) (*auth.Principal, error) {
	hash, err := unusablePasswordHash()
	if err != nil {
		return nil, err
	}

	username := ext.Username
	if username == "" {
		username = ext.Email
	}

	tx, err := pr.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("provisioning account: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`INSERT INTO principals (email, username, password_hash, first_name, last_name, role, is_active, created_at, updated_at, last_login_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW(), NOW())
		 RETURNING `+principalColumns,
		ext.Email, username, hash, nullStr(ext.FirstName), nullStr(ext.LastName), auth.RoleUser)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, fmt.Errorf("provisioning account: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sso_identities (provider, external_id, principal_id, created_at, last_login_at)
		 VALUES ($1, $2, $3, NOW(), NOW())`,
		provider, ext.ExternalID, p.ID); err != nil {
		return nil, fmt.Errorf("recording sso identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("provisioning account: %w", err)
	}
	return p, nil
}

func unusablePasswordHash() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating placeholder password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(base64.RawURLEncoding.EncodeToString(raw)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("generating placeholder password: %w", err)
	}
	return string(hash), nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
