// Package async provides safe concurrent execution primitives for
// background tasks: panic recovery, timeout enforcement, and context
// cancellation for fire-and-forget work.
package async

import (
	"context"
	"log"
	"runtime/debug"
	"time"
)

// SafeGo executes a function in a goroutine with context cancellation,
// panic recovery, and a per-task timeout.
//
// Use this instead of bare `go func()` to prevent goroutine leaks and
// crashes from background work such as audit writes and cache
// invalidation.
//
// Example:
//
//	SafeGo(r.Context(), 5*time.Second, "audit write", func(ctx context.Context) error {
//	    return auditor.Record(ctx, entry)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			// Log and keep going. Background tasks never take the server down.
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// Detach returns a context that carries the values of parent but is not
// cancelled when parent is. Used when a request-scoped task must outlive
// the request, such as archiving a generated report.
func Detach(parent context.Context) context.Context {
	return detachedContext{parent}
}

type detachedContext struct {
	context.Context
}

func (detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}       { return nil }
func (detachedContext) Err() error                  { return nil }
