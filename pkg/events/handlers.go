package events

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/middleware"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Handlers exposes the event service over HTTP
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates event HTTP handlers
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterRoutes registers event routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/events", h.ListEvents).Methods("GET")
	router.HandleFunc("/events", h.CreateEvent).Methods("POST")
	router.HandleFunc("/events/{id}", h.GetEvent).Methods("GET")
	router.HandleFunc("/events/{id}", h.UpdateEvent).Methods("PUT")
	router.HandleFunc("/events/{id}", h.DeleteEvent).Methods("DELETE")
	router.HandleFunc("/profile/events", h.ProfileStats).Methods("GET")
}

// ListEvents lists events visible to the caller, with optional search,
// status group, and date range filters
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	filters := ListFilters{
		Search: httputil.ParseQueryString(r, "q", ""),
		Status: httputil.ParseQueryString(r, "status", ""),
	}
	from, ok, err := httputil.ParseQueryDate(r, "from")
	if err != nil {
		httputil.WriteFieldError(w, "from", ReasonBadFormat)
		return
	}
	if ok {
		filters.From = &from
	}
	to, ok, err := httputil.ParseQueryDate(r, "to")
	if err != nil {
		httputil.WriteFieldError(w, "to", ReasonBadFormat)
		return
	}
	if ok {
		filters.To = &to
	}

	list, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// GetEvent returns one event
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	e, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, e)
}

// CreateEvent creates an event owned by the caller
func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var in Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	e, err := h.service.Create(r.Context(), p, &in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, e)
}

// UpdateEvent applies a partial update to an event
func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var in Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	e, err := h.service.Update(r.Context(), p, id, &in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, e)
}

// DeleteEvent removes an event
func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
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

// ProfileStats summarizes the caller's own events
func (h *Handlers) ProfileStats(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	stats, err := h.service.ProfileStats(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteFieldError(w, verr.Field, verr.Reason)
	case errors.Is(err, policy.ErrNotFound):
		httputil.WriteNotFoundError(w, "event not found")
	case errors.Is(err, policy.ErrForbidden):
		httputil.WriteForbidden(w, "access denied")
	default:
		observability.GetLogger(r.Context()).WithError(err).Errorf("event request failed")
		httputil.WriteInternalError(w, err)
	}
}
