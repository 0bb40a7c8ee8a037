package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mindara-hq/eventdesk/pkg/audit"
	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

const stateCookie = "sso_state"

const stateTTL = 10 * time.Minute

// SessionIssuer mints sessions for provisioned principals
type SessionIssuer interface {
	CreateSession(ctx context.Context, principalID int64) (string, *auth.Session, error)
}

// Handlers serves the SSO login flow for the configured providers
type Handlers struct {
	providers   map[string]Provider
	provisioner *Provisioner
	sessions    SessionIssuer
	trail       *audit.Trail
	logger      *observability.Logger
}

// NewHandlers creates SSO handlers for the given providers
func NewHandlers(providers []Provider, provisioner *Provisioner, sessions SessionIssuer, trail *audit.Trail, logger *observability.Logger) *Handlers {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Handlers{
		providers:   byName,
		provisioner: provisioner,
		sessions:    sessions,
		trail:       trail,
		logger:      logger,
	}
}

// RegisterRoutes registers the SSO routes. These are public; the
// callback is the point where a session is established.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/sso/providers", h.ListProviders).Methods("GET")
	router.HandleFunc("/auth/sso/{provider}/login", h.InitiateLogin).Methods("GET")
	router.HandleFunc("/auth/sso/{provider}/callback", h.HandleCallback).Methods("GET", "POST")
}

type providerInfo struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`
}

// ListProviders handles GET /auth/sso/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	infos := make([]providerInfo, 0, len(h.providers))
	for name, p := range h.providers {
		infos = append(infos, providerInfo{
			Name: name,
			Kind: p.Kind(),
			URL:  fmt.Sprintf("/auth/sso/%s/login", name),
		})
	}
	httputil.WriteSuccess(w, infos)
}

// InitiateLogin handles GET /auth/sso/{provider}/login
func (h *Handlers) InitiateLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[mux.Vars(r)["provider"]]
	if !ok {
		httputil.WriteNotFoundError(w, "unknown sso provider")
		return
	}

	state, err := newState()
	if err != nil {
		observability.GetLogger(r.Context()).WithError(err).Error("generating sso state")
		httputil.WriteInternalError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/sso",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})

	if err := provider.InitiateLogin(w, r, state); err != nil {
		observability.GetLogger(r.Context()).WithError(err).Errorf("initiating %s login", provider.Name())
		httputil.WriteInternalError(w, err)
	}
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Principal *auth.Principal `json:"principal"`
}

// HandleCallback handles the provider redirect back to us. It verifies
// the state, provisions the principal, and mints a session.
func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[mux.Vars(r)["provider"]]
	if !ok {
		httputil.WriteNotFoundError(w, "unknown sso provider")
		return
	}
	logger := observability.GetLogger(r.Context())

	if err := h.checkState(r); err != nil {
		logger.WithError(err).Warn("sso state check failed")
		httputil.WriteBadRequest(w, "invalid or missing state")
		return
	}
	// one-shot cookie
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/sso", MaxAge: -1})

	ext, err := provider.HandleCallback(r)
	if err != nil {
		logger.WithError(err).Warnf("%s callback rejected", provider.Name())
		h.recordFailure(r, provider.Name(), err)
		httputil.WriteUnauthorized(w, "sso login failed")
		return
	}

	principal, err := h.provisioner.Provision(r.Context(), provider.Name(), ext)
	if err != nil {
		if errors.Is(err, ErrAccountInactive) {
			h.recordFailure(r, provider.Name(), err)
			httputil.WriteUnauthorized(w, "sso login failed")
			return
		}
		logger.WithError(err).Error("provisioning sso principal")
		httputil.WriteInternalError(w, err)
		return
	}

	token, sess, err := h.sessions.CreateSession(r.Context(), principal.ID)
	if err != nil {
		logger.WithError(err).Error("creating session")
		httputil.WriteInternalError(w, err)
		return
	}

	if h.trail != nil {
		h.trail.Record(r.Context(), &audit.Event{
			Type:      audit.EventLogin,
			ActorID:   &principal.ID,
			ActorName: principal.DisplayName(),
			Message:   fmt.Sprintf("sso login via %s", provider.Name()),
		})
	}

	httputil.WriteSuccess(w, loginResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		Principal: principal,
	})
}

// checkState compares the echoed state against the cookie set at login.
// OIDC echoes it as the state query parameter, SAML as RelayState.
func (h *Handlers) checkState(r *http.Request) error {
	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		return fmt.Errorf("missing state cookie")
	}
	echoed := r.URL.Query().Get("state")
	if echoed == "" {
		echoed = r.FormValue("RelayState")
	}
	if echoed == "" {
		return fmt.Errorf("missing echoed state")
	}
	if echoed != cookie.Value {
		return fmt.Errorf("state mismatch")
	}
	return nil
}

func (h *Handlers) recordFailure(r *http.Request, provider string, cause error) {
	if h.trail == nil {
		return
	}
	h.trail.Record(r.Context(), &audit.Event{
		Type:    audit.EventLoginFailed,
		Message: fmt.Sprintf("sso login via %s failed: %v", provider, cause),
	})
}

func newState() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
