package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"github.com/mindara-hq/eventdesk/pkg/audit"
	"github.com/mindara-hq/eventdesk/pkg/contextkeys"
	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

const minPasswordLength = 8

// uniqueViolation is the postgres error code for a duplicate key
const uniqueViolation = "23505"

// Handlers serves registration, password login, logout, and session
// introspection.
type Handlers struct {
	store  *Store
	trail  *audit.Trail
	logger *observability.Logger
}

// NewHandlers creates auth handlers. The audit trail may be nil.
func NewHandlers(store *Store, trail *audit.Trail, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, trail: trail, logger: logger}
}

// RegisterPublicRoutes registers the routes reachable without a session
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.Register).Methods("POST")
	router.HandleFunc("/auth/login", h.Login).Methods("POST")
}

// RegisterProtectedRoutes registers the routes that require a session
func (h *Handlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/auth/logout", h.Logout).Methods("POST")
	router.HandleFunc("/auth/session", h.CurrentSession).Methods("GET")
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles POST /auth/register. New accounts always start at
// the basic USER role; promotion is a separate admin operation.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		httputil.WriteFieldError(w, "email", "invalid_value")
		return
	}
	if req.Username == "" {
		httputil.WriteFieldError(w, "username", "required")
		return
	}
	if len(req.Password) < minPasswordLength {
		httputil.WriteFieldError(w, "password", "too_short")
		return
	}

	p, err := h.store.CreatePrincipal(r.Context(), req.Email, req.Username, req.Password, RoleUser)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			httputil.WriteConflict(w, "email or username is already taken")
			return
		}
		observability.GetLogger(r.Context()).WithError(err).Error("registering account")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, p)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by password and SSO logins
type LoginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Principal *Principal `json:"principal"`
}

// Login handles POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	p, err := h.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.record(r, &audit.Event{
				Type:    audit.EventLoginFailed,
				Message: fmt.Sprintf("password login failed for %s", req.Email),
			})
			httputil.WriteUnauthorized(w, "invalid credentials")
			return
		}
		observability.GetLogger(r.Context()).WithError(err).Error("authenticating")
		httputil.WriteInternalError(w, err)
		return
	}

	token, sess, err := h.store.CreateSession(r.Context(), p.ID)
	if err != nil {
		observability.GetLogger(r.Context()).WithError(err).Error("creating session")
		httputil.WriteInternalError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Type:      audit.EventLogin,
		ActorID:   &p.ID,
		ActorName: p.DisplayName(),
		Message:   "password login",
	})
	httputil.WriteSuccess(w, LoginResponse{Token: token, ExpiresAt: sess.ExpiresAt, Principal: p})
}

// Logout handles POST /auth/logout. It revokes the presented session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "missing bearer token")
		return
	}
	if err := h.store.RevokeSession(r.Context(), token); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			httputil.WriteUnauthorized(w, "session not found")
			return
		}
		observability.GetLogger(r.Context()).WithError(err).Error("revoking session")
		httputil.WriteInternalError(w, err)
		return
	}

	if p, ok := r.Context().Value(contextkeys.PrincipalKey).(*Principal); ok {
		h.record(r, &audit.Event{
			Type:      audit.EventLogout,
			ActorID:   &p.ID,
			ActorName: p.DisplayName(),
		})
	}
	httputil.WriteNoContent(w)
}

// CurrentSession handles GET /auth/session
func (h *Handlers) CurrentSession(w http.ResponseWriter, r *http.Request) {
	p, ok := r.Context().Value(contextkeys.PrincipalKey).(*Principal)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, p)
}

func (h *Handlers) record(r *http.Request, event *audit.Event) {
	if h.trail != nil {
		h.trail.Record(r.Context(), event)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
