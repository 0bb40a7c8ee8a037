package notifications

import (
	"context"
	"time"

	"github.com/mindara-hq/eventdesk/pkg/async"
	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/events"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
	"github.com/mindara-hq/eventdesk/pkg/storage"
)

// PreviewLimit caps the unread preview shown in the navigation bar
const PreviewLimit = 5

const cacheInvalidateTimeout = 5 * time.Second

// Service enforces access rules over the notification store and keeps
// the per-principal unread counters cached in Redis. The cache is an
// optimization only; a nil client falls through to the database.
type Service struct {
	store   *Store
	engine  *policy.Engine
	cache   *storage.RedisClient
	metrics *observability.Metrics
	logger  *observability.Logger

	now func() time.Time
}

// NewService creates the notification service. cache may be nil.
func NewService(store *Store, engine *policy.Engine, cache *storage.RedisClient, metrics *observability.Metrics, logger *observability.Logger) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func manageResource() policy.Resource {
	return policy.Unowned{Type: "notification"}
}

// Input is a notification write payload
type Input struct {
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Type          string     `json:"type"`
	Priority      string     `json:"priority"`
	TargetRole    string     `json:"target_role"`
	TargetUserIDs []int64    `json:"target_user_ids"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

func (in *Input) validate() *events.ValidationError {
	if in.Title == "" {
		return &events.ValidationError{Field: "title", Reason: events.ReasonRequired}
	}
	if in.Message == "" {
		return &events.ValidationError{Field: "message", Reason: events.ReasonRequired}
	}
	if in.Type != "" && !Type(in.Type).Valid() {
		return &events.ValidationError{Field: "type", Reason: events.ReasonInvalidValue}
	}
	if in.Priority != "" && !Priority(in.Priority).Valid() {
		return &events.ValidationError{Field: "priority", Reason: events.ReasonInvalidValue}
	}
	if in.TargetRole != "" && !auth.Role(in.TargetRole).Valid() {
		return &events.ValidationError{Field: "target_role", Reason: events.ReasonInvalidValue}
	}
	return nil
}

func (in *Input) apply(n *Notification) {
	n.Title = in.Title
	n.Message = in.Message
	n.Type = TypeGeneral
	if in.Type != "" {
		n.Type = Type(in.Type)
	}
	n.Priority = PriorityMedium
	if in.Priority != "" {
		n.Priority = Priority(in.Priority)
	}
	n.TargetRole = auth.Role(in.TargetRole)
	n.TargetUserIDs = in.TargetUserIDs
	n.ExpiresAt = in.ExpiresAt
}

// Create publishes a notification. Managers and admins only.
func (s *Service) Create(ctx context.Context, p *auth.Principal, in *Input) (*Notification, error) {
	if err := s.engine.Authorize(p, manageResource(), policy.ActionWrite); err != nil {
		return nil, err
	}
	if verr := in.validate(); verr != nil {
		return nil, verr
	}

	n := &Notification{CreatedBy: &p.ID}
	in.apply(n)

	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	s.metrics.NotificationsCreatedTotal.Inc()
	s.invalidateAllCounts(ctx)
	s.logger.WithFields(map[string]interface{}{
		"notification_id": n.ID,
		"created_by":      p.ID,
		"targeted_users":  len(n.TargetUserIDs),
	}).Infof("notification published")
	return n, nil
}

// Update rewrites an existing notification. Managers and admins only.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id int64, in *Input) (*Notification, error) {
	if err := s.engine.Authorize(p, manageResource(), policy.ActionWrite); err != nil {
		return nil, err
	}
	if verr := in.validate(); verr != nil {
		return nil, verr
	}

	n, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(n)

	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}
	s.invalidateAllCounts(ctx)
	return n, nil
}

// Delete removes a notification. Managers and admins only.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id int64) error {
	if err := s.engine.Authorize(p, manageResource(), policy.ActionDelete); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateAllCounts(ctx)
	return nil
}

// SetActive toggles a notification without touching its content
func (s *Service) SetActive(ctx context.Context, p *auth.Principal, id int64, active bool) error {
	if err := s.engine.Authorize(p, manageResource(), policy.ActionWrite); err != nil {
		return err
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	if !active {
		s.metrics.NotificationsDeactivated.Inc()
	}
	s.invalidateAllCounts(ctx)
	return nil
}

// ListAll returns every notification for the management view
func (s *Service) ListAll(ctx context.Context, p *auth.Principal) ([]*Notification, error) {
	if err := s.engine.Authorize(p, manageResource(), policy.ActionWrite); err != nil {
		return nil, err
	}
	return s.store.ListAll(ctx)
}

// Get returns one notification for the management view
func (s *Service) Get(ctx context.Context, p *auth.Principal, id int64) (*Notification, error) {
	if err := s.engine.Authorize(p, manageResource(), policy.ActionWrite); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// TargetedAt lists the notifications explicitly aimed at the given
// principals, for the management view. Managers and admins only.
func (s *Service) TargetedAt(ctx context.Context, p *auth.Principal, principalIDs []int64) ([]*Notification, error) {
	if err := s.engine.Authorize(p, manageResource(), policy.ActionWrite); err != nil {
		return nil, err
	}
	if len(principalIDs) == 0 {
		return nil, &events.ValidationError{Field: "user", Reason: events.ReasonRequired}
	}
	return s.store.TargetedAt(ctx, principalIDs)
}

// VisibleFor lists the notifications the principal can see, newest first
func (s *Service) VisibleFor(ctx context.Context, p *auth.Principal) ([]*Notification, error) {
	return s.store.VisibleFor(ctx, p, s.now(), 0, false)
}

// UnreadPreview returns the newest unread notifications for the
// navigation dropdown, capped at PreviewLimit
func (s *Service) UnreadPreview(ctx context.Context, p *auth.Principal) ([]*Notification, error) {
	return s.store.VisibleFor(ctx, p, s.now(), PreviewLimit, true)
}

// UnreadCount returns the principal's unread counter, served from Redis
// when the cached value is fresh
func (s *Service) UnreadCount(ctx context.Context, p *auth.Principal) (int64, error) {
	if s.cache != nil {
		if count, ok, err := s.cache.GetUnreadCount(ctx, p.ID); err == nil && ok {
			s.metrics.UnreadCountCacheHitsTotal.WithLabelValues("hit").Inc()
			return int64(count), nil
		}
		s.metrics.UnreadCountCacheHitsTotal.WithLabelValues("miss").Inc()
	}

	count, err := s.store.UnreadCount(ctx, p, s.now())
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetUnreadCount(ctx, p.ID, int(count)); err != nil {
			s.logger.WithError(err).Warnf("caching unread count failed")
		}
	}
	return count, nil
}

// MarkRead records that the principal read a notification. The
// notification must be visible to them; repeated calls are no-ops.
func (s *Service) MarkRead(ctx context.Context, p *auth.Principal, id int64) error {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !n.VisibleTo(p, s.now()) {
		return policy.ErrForbidden
	}

	created, err := s.store.MarkRead(ctx, id, p.ID)
	if err != nil {
		return err
	}
	if created {
		s.metrics.NotificationsMarkedRead.Inc()
		s.invalidateCount(ctx, p.ID)
	}
	return nil
}

// MarkAllRead creates receipts for every visible unread notification
// and returns how many were new
func (s *Service) MarkAllRead(ctx context.Context, p *auth.Principal) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, p, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.metrics.NotificationsMarkedRead.Add(float64(count))
		s.invalidateCount(ctx, p.ID)
	}
	return count, nil
}

// SweepExpired deactivates every notification past its expiry. Run
// periodically by the janitor.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.store.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.metrics.NotificationsDeactivated.Add(float64(count))
		s.invalidateAllCounts(ctx)
		s.logger.WithField("count", count).Infof("expired notifications deactivated")
	}
	return count, nil
}

// invalidateCount drops one principal's cached counter before the
// mark-read response is written, so a follow-up UnreadCount sees the
// new value instead of the cached one
func (s *Service) invalidateCount(ctx context.Context, principalID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUnreadCount(ctx, principalID); err != nil {
		s.logger.WithError(err).WithField("principal_id", principalID).Warnf("invalidating unread count failed")
	}
}

func (s *Service) invalidateAllCounts(ctx context.Context) {
	if s.cache == nil {
		return
	}
	async.SafeGo(async.Detach(ctx), cacheInvalidateTimeout, "invalidate-unread-counts", func(ctx context.Context) error {
		return s.cache.InvalidateAllUnreadCounts(ctx)
	})
}
