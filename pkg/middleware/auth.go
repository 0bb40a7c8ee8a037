package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/contextkeys"
	"github.com/mindara-hq/eventdesk/pkg/httputil"
)

// SessionResolver resolves a bearer token to a live session and its
// principal. Satisfied by *auth.Store.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*auth.Principal, *auth.Session, error)
}

// AuthMiddleware authenticates requests via bearer session tokens
type AuthMiddleware struct {
	sessions SessionResolver
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(sessions SessionResolver, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, session, err := m.sessions.ResolveSession(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), contextkeys.PrincipalKey, principal)
		ctx = context.WithValue(ctx, contextkeys.SessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFrom extracts the authenticated principal from a request,
// or nil when the request is unauthenticated
func PrincipalFrom(r *http.Request) *auth.Principal {
	p, ok := r.Context().Value(contextkeys.PrincipalKey).(*auth.Principal)
	if !ok {
		return nil
	}
	return p
}

// SessionFrom extracts the current session from a request
func SessionFrom(r *http.Request) *auth.Session {
	s, ok := r.Context().Value(contextkeys.SessionKey).(*auth.Session)
	if !ok {
		return nil
	}
	return s
}

// RequireRole creates middleware that rejects principals below a role
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r)
			if p == nil {
				httputil.WriteForbidden(w, "authentication required")
				return
			}
			if !hasRole(p, role) {
				httputil.WriteForbidden(w, "insufficient role permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is shorthand for RequireRole(auth.RoleAdmin)
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(auth.RoleAdmin)(next)
}

func hasRole(p *auth.Principal, role auth.Role) bool {
	switch role {
	case auth.RoleAdmin:
		return p.IsAdmin()
	case auth.RoleManager:
		return p.IsAdmin() || p.IsManager()
	default:
		return true
	}
}
