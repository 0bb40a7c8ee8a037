package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

// Recover converts handler panics into 500 responses instead of
// tearing down the connection.
func Recover(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithFields(map[string]interface{}{
						"panic":  rec,
						"method": r.Method,
						"path":   r.URL.Path,
						"stack":  string(debug.Stack()),
					}).Error("panic while serving request")
					httputil.WriteInternalError(w, nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
