package policy

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

// Action is what the principal is trying to do to a resource
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Resource is the object of an access check. Exactly three shapes exist:
// Owned (events), Self (accounts), and Unowned (notifications).
type Resource interface {
	resourceType() string
}

// Owned is a resource with a single owning principal, such as an event.
// The owner's role matters: managers may not write to admin-owned rows.
type Owned struct {
	Type      string
	OwnerID   int64
	OwnerRole auth.Role
}

func (o Owned) resourceType() string { return o.Type }

// Self is a principal treated as a resource, such as a profile page
type Self struct {
	ID   int64
	Role auth.Role
}

func (s Self) resourceType() string { return "principal" }

// Unowned is a resource with no owning principal visible to callers,
// such as a notification. Reads go through the visibility resolver; this
// engine only rules on management actions.
type Unowned struct {
	Type string
}

func (u Unowned) resourceType() string { return u.Type }

// CanAccess is the pure object-level permission check. Ownership always
// wins over a role-based denial.
func CanAccess(p *auth.Principal, resource Resource, action Action) bool {
	switch r := resource.(type) {
	case Owned:
		if r.OwnerID == p.ID {
			return true
		}
		if p.IsAdmin() {
			return true
		}
		if p.IsManager() {
			if action == ActionRead {
				return true
			}
			// managers write to peer- and user-owned rows only
			return r.OwnerRole != auth.RoleAdmin
		}
		return false

	case Self:
		if p.IsAdmin() || r.ID == p.ID {
			return true
		}
		// managers handle USER-level accounts, but never delete them
		if p.IsManager() && r.Role == auth.RoleUser {
			return action != ActionDelete
		}
		return false

	case Unowned:
		if action == ActionRead {
			return true
		}
		return p.CanManageUsers()

	default:
		return false
	}
}

type cacheKey struct {
	principalID int64
	role        auth.Role
	resType     string
	ownerID     int64
	ownerRole   auth.Role
	action      Action
}

// Engine wraps CanAccess with a short-TTL decision cache and metrics.
// Self resources bypass the cache because the verdict depends on the
// identity pair, which already is the whole key; caching them would just
// churn entries.
type Engine struct {
	cache   *expirable.LRU[cacheKey, bool]
	metrics *observability.Metrics
}

// NewEngine creates a policy engine. metrics may be nil.
func NewEngine(cacheSize int, cacheTTL time.Duration, metrics *observability.Metrics) *Engine {
	var cache *expirable.LRU[cacheKey, bool]
	if cacheSize > 0 {
		cache = expirable.NewLRU[cacheKey, bool](cacheSize, nil, cacheTTL)
	}
	return &Engine{cache: cache, metrics: metrics}
}

// Authorize checks access and returns ErrForbidden on denial
func (e *Engine) Authorize(p *auth.Principal, resource Resource, action Action) error {
	allowed := e.decide(p, resource, action)

	if e.metrics != nil {
		decision := "allow"
		if !allowed {
			decision = "deny"
		}
		e.metrics.AccessDecisionsTotal.
			WithLabelValues(string(action), resource.resourceType(), decision).Inc()
	}

	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (e *Engine) decide(p *auth.Principal, resource Resource, action Action) bool {
	owned, cacheable := resource.(Owned)
	if !cacheable || e.cache == nil {
		return CanAccess(p, resource, action)
	}

	key := cacheKey{
		principalID: p.ID,
		role:        p.Role,
		resType:     owned.Type,
		ownerID:     owned.OwnerID,
		ownerRole:   owned.OwnerRole,
		action:      action,
	}
	if allowed, ok := e.cache.Get(key); ok {
		if e.metrics != nil {
			e.metrics.AccessCacheHitsTotal.WithLabelValues("hit").Inc()
		}
		return allowed
	}
	if e.metrics != nil {
		e.metrics.AccessCacheHitsTotal.WithLabelValues("miss").Inc()
	}

	allowed := CanAccess(p, resource, action)
	e.cache.Add(key, allowed)
	return allowed
}

// Purge drops all cached decisions. Called after a role change so stale
// grants do not outlive the TTL.
func (e *Engine) Purge() {
	if e.cache != nil {
		e.cache.Purge()
	}
}
