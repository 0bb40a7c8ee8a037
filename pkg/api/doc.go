// Package api assembles the HTTP server: router, shared middleware
// chain (panic recovery, request IDs, structured request logging,
// metrics, optional tracing), and the split between public and
// session-gated routes.
package api
