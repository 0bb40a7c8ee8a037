package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/events"
	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/middleware"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Handlers exposes the notification service over HTTP
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates notification HTTP handlers
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterRoutes registers notification routes. The management routes
// live beside the per-viewer inbox routes; the service sorts out who
// may call what.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// management
	router.HandleFunc("/notifications", h.CreateNotification).Methods("POST")
	router.HandleFunc("/notifications/manage", h.ListAllNotifications).Methods("GET")
	router.HandleFunc("/notifications/targeted", h.ListTargeted).Methods("GET")
	router.HandleFunc("/notifications/{id}", h.GetNotification).Methods("GET")
	router.HandleFunc("/notifications/{id}", h.UpdateNotification).Methods("PUT")
	router.HandleFunc("/notifications/{id}", h.DeleteNotification).Methods("DELETE")
	router.HandleFunc("/notifications/{id}/active", h.SetActive).Methods("PUT")

	// inbox
	router.HandleFunc("/inbox", h.ListInbox).Methods("GET")
	router.HandleFunc("/inbox/preview", h.UnreadPreview).Methods("GET")
	router.HandleFunc("/inbox/unread-count", h.UnreadCount).Methods("GET")
	router.HandleFunc("/inbox/{id}/read", h.MarkRead).Methods("POST")
	router.HandleFunc("/inbox/read-all", h.MarkAllRead).Methods("POST")
}

func (h *Handlers) principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return p, true
}

// CreateNotification publishes a notification
func (h *Handlers) CreateNotification(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var in Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	n, err := h.service.Create(r.Context(), p, &in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, n)
}

// ListAllNotifications returns every notification for management
func (h *Handlers) ListAllNotifications(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListAll(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// ListTargeted returns the notifications aimed at the users named by
// repeated user query parameters
func (h *Handlers) ListTargeted(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var ids []int64
	for _, raw := range r.URL.Query()["user"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteFieldError(w, "user", events.ReasonBadFormat)
			return
		}
		ids = append(ids, id)
	}
	list, err := h.service.TargetedAt(r.Context(), p, ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// GetNotification returns one notification for management
func (h *Handlers) GetNotification(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	n, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, n)
}

// UpdateNotification rewrites a notification
func (h *Handlers) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
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

	n, err := h.service.Update(r.Context(), p, id, &in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, n)
}

// DeleteNotification removes a notification
func (h *Handlers) DeleteNotification(w http.ResponseWriter, r *http.Request) {
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

// SetActive toggles a notification
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

// ListInbox lists the notifications visible to the caller
func (h *Handlers) ListInbox(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	list, err := h.service.VisibleFor(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// UnreadPreview returns the newest unread notifications for the navbar
func (h *Handlers) UnreadPreview(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	list, err := h.service.UnreadPreview(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// UnreadCount returns the caller's unread counter
func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"unread": count})
}

// MarkRead records a read receipt for one notification
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), p, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// MarkAllRead records receipts for everything visible and unread
func (h *Handlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	count, err := h.service.MarkAllRead(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"marked": count})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *events.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteFieldError(w, verr.Field, verr.Reason)
	case errors.Is(err, policy.ErrNotFound):
		httputil.WriteNotFoundError(w, "notification not found")
	case errors.Is(err, policy.ErrForbidden):
		httputil.WriteForbidden(w, "access denied")
	default:
		observability.GetLogger(r.Context()).WithError(err).Errorf("notification request failed")
		httputil.WriteInternalError(w, err)
	}
}
