package users

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/events"
	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/middleware"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Handlers exposes account management over HTTP
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates account management HTTP handlers
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterRoutes registers account routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/users/{id}", h.UpdateUser).Methods("PUT")
	router.HandleFunc("/users/{id}", h.DeleteUser).Methods("DELETE")
	router.HandleFunc("/users/{id}/role", h.ChangeRole).Methods("PUT")
	router.HandleFunc("/users/{id}/active", h.SetActive).Methods("PUT")
	router.HandleFunc("/profile", h.GetProfile).Methods("GET")
	router.HandleFunc("/profile", h.UpdateProfile).Methods("PUT")
}

func (h *Handlers) principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return p, true
}

// ListUsers returns the accounts the caller manages
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	list, err := h.service.List(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// GetUser returns one account
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	target, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, target)
}

// UpdateUser edits an account's profile fields
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in ProfileInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	target, err := h.service.UpdateProfile(r.Context(), p, id, &in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, target)
}

// DeleteUser permanently removes an account
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ChangeRole moves an account to a new role
func (h *Handlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	target, err := h.service.ChangeRole(r.Context(), p, id, auth.Role(body.Role))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, target)
}

// SetActive toggles an account
func (h *Handlers) SetActive(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if err := h.service.SetActive(r.Context(), p, id, body.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetProfile returns the caller's own account
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	target, err := h.service.Get(r.Context(), p, p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, target)
}

// UpdateProfile edits the caller's own account
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var in ProfileInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	target, err := h.service.UpdateProfile(r.Context(), p, p.ID, &in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, target)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *events.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteFieldError(w, verr.Field, verr.Reason)
	case errors.Is(err, policy.ErrNotFound):
		httputil.WriteNotFoundError(w, "account not found")
	case errors.Is(err, policy.ErrForbidden):
		httputil.WriteForbidden(w, "access denied")
	default:
		observability.GetLogger(r.Context()).WithError(err).Errorf("account request failed")
		httputil.WriteInternalError(w, err)
	}
}
