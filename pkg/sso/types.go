package sso

import (
	"net/http"
	"time"
)

// Kind identifies the protocol a provider speaks
type Kind string

const (
	KindOIDC Kind = "oidc"
	KindSAML Kind = "saml"
)

// ExternalUser is the identity asserted by an upstream provider. ExternalID
// and Email are required; the rest is best-effort profile data.
type ExternalUser struct {
	ExternalID string            `json:"external_id"`
	Email      string            `json:"email"`
	Username   string            `json:"username"`
	FirstName  string            `json:"first_name,omitempty"`
	LastName   string            `json:"last_name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Provider abstracts an upstream identity provider
type Provider interface {
	// Name returns the route segment this provider is mounted under
	Name() string

	// Kind returns the protocol the provider speaks
	Kind() Kind

	// InitiateLogin redirects the browser to the provider's login page.
	// The state value is echoed back on the callback.
	InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error

	// HandleCallback validates the provider response and extracts the
	// asserted identity.
	HandleCallback(r *http.Request) (*ExternalUser, error)
}

// Identity links an upstream identity to a local principal
type Identity struct {
	ID          int64     `json:"id"`
	Provider    string    `json:"provider"`
	ExternalID  string    `json:"external_id"`
	PrincipalID int64     `json:"principal_id"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}
