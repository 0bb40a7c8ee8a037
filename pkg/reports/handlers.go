package reports

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/events"
	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/middleware"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Handlers exposes report generation over HTTP
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates report HTTP handlers
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterRoutes registers report routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/reports/bundle", h.GenerateBundle).Methods("GET")
	router.HandleFunc("/reports/history", h.History).Methods("GET")
	router.HandleFunc("/reports/{type}", h.GenerateReport).Methods("GET")
}

func (h *Handlers) principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := middleware.PrincipalFrom(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return p, true
}

// GenerateReport renders one report as a file download
func (h *Handlers) GenerateReport(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	rawKind, err := httputil.ParsePathString(r, "type")
	if err != nil {
		httputil.WriteFieldError(w, "type", events.ReasonRequired)
		return
	}
	kind := Kind(rawKind)
	format := httputil.ParseQueryString(r, "format", "csv")

	detailed, err := httputil.ParseQueryBool(r, "detailed", false)
	if err != nil {
		httputil.WriteFieldError(w, "detailed", events.ReasonBadFormat)
		return
	}
	confirmed, err := httputil.ParseQueryBool(r, "confirmed", false)
	if err != nil {
		httputil.WriteFieldError(w, "confirmed", events.ReasonBadFormat)
		return
	}

	opts := Options{Detailed: detailed, ConfirmedOnly: confirmed}
	from, set, err := httputil.ParseQueryDate(r, "from")
	if err != nil {
		httputil.WriteFieldError(w, "from", events.ReasonBadFormat)
		return
	}
	if set {
		opts.From = &from
	}
	to, set, err := httputil.ParseQueryDate(r, "to")
	if err != nil {
		httputil.WriteFieldError(w, "to", events.ReasonBadFormat)
		return
	}
	if set {
		opts.To = &to
	}

	gen, err := h.service.Generate(r.Context(), p, kind, format, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", gen.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gen.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(gen.Content)
}

// GenerateBundle returns the executive bundle as JSON sections
func (h *Handlers) GenerateBundle(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	sections, err := h.service.GenerateBundle(r.Context(), p, Options{Detailed: true})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sections)
}

// History lists recently generated reports
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteFieldError(w, "limit", events.ReasonBadFormat)
		return
	}
	list, err := h.service.History(r.Context(), p, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *events.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteFieldError(w, verr.Field, verr.Reason)
	case errors.Is(err, policy.ErrForbidden):
		httputil.WriteForbidden(w, "access denied")
	case errors.Is(err, policy.ErrNotFound):
		httputil.WriteNotFoundError(w, "report not found")
	default:
		observability.GetLogger(r.Context()).WithError(err).Errorf("report request failed")
		httputil.WriteInternalError(w, err)
	}
}
