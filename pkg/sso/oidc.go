package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCOptions configures an OpenID Connect provider
type OIDCOptions struct {
	Name         string   // route segment, defaults to "oidc"
	IssuerURL    string   // discovery endpoint
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string // defaults to openid, profile, email
}

// OIDCProvider implements OpenID Connect login via the provider's
// discovery document.
type OIDCProvider struct {
	name         string
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and builds a provider ready to
// serve login redirects and callbacks.
func NewOIDCProvider(ctx context.Context, opts OIDCOptions) (*OIDCProvider, error) {
	if opts.IssuerURL == "" {
		return nil, fmt.Errorf("oidc issuer URL is required")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("oidc client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, opts.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider: %w", err)
	}

	name := opts.Name
	if name == "" {
		name = "oidc"
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCProvider{
		name:     name,
		verifier: provider.Verifier(&oidc.Config{ClientID: opts.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  opts.RedirectURL,
			Scopes:       scopes,
		},
	}, nil
}

// Name returns the provider's route segment
func (p *OIDCProvider) Name() string { return p.name }

// Kind returns KindOIDC
func (p *OIDCProvider) Kind() Kind { return KindOIDC }

// InitiateLogin redirects to the authorization endpoint
func (p *OIDCProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	http.Redirect(w, r, p.oauth2Config.AuthCodeURL(state), http.StatusFound)
	return nil
}

// HandleCallback exchanges the authorization code and verifies the ID token
func (p *OIDCProvider) HandleCallback(r *http.Request) (*ExternalUser, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	ctx := r.Context()
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verifying id_token: %w", err)
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parsing claims: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("id_token is missing the email claim")
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}

	return &ExternalUser{
		ExternalID: idToken.Subject,
		Email:      claims.Email,
		Username:   username,
		FirstName:  claims.GivenName,
		LastName:   claims.FamilyName,
	}, nil
}
