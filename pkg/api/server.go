package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/middleware"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

// RouteRegistrar is satisfied by every handler set in the application
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegistrarFunc adapts a plain registration function to RouteRegistrar
type RegistrarFunc func(router *mux.Router)

// RegisterRoutes calls f
func (f RegistrarFunc) RegisterRoutes(router *mux.Router) { f(router) }

// Options wires the server together. Public registrars are mounted
// before the auth gate; protected ones behind it.
type Options struct {
	Sessions  middleware.SessionResolver
	Public    []RouteRegistrar
	Protected []RouteRegistrar
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracing   bool
}

// Server is the HTTP front door. It owns the router and the shared
// middleware chain.
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
}

// NewServer builds the router and mounts all registered handler sets
func NewServer(opts Options) *Server {
	router := mux.NewRouter()

	for _, reg := range opts.Public {
		reg.RegisterRoutes(router)
	}

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(middleware.NewAuthMiddleware(opts.Sessions, false).Handler)
	for _, reg := range opts.Protected {
		reg.RegisterRoutes(protected)
	}

	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	var handler http.Handler = router
	if opts.Metrics != nil {
		handler = observability.HTTPMetricsMiddleware(opts.Metrics)(handler)
	}
	handler = middleware.RequestLogger(opts.Logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recover(opts.Logger)(handler)
	if opts.Tracing {
		handler = otelhttp.NewHandler(handler, "eventdesk")
	}

	return &Server{router: router, handler: handler, logger: opts.Logger}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteNotFoundError(w, "not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}
