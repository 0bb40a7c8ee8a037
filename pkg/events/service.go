package events

import (
	"context"
	"time"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Service enforces access policy and the validation pipeline on top of
// the event store. Handlers never talk to the store directly.
type Service struct {
	store   *Store
	engine  *policy.Engine
	metrics *observability.Metrics
	logger  *observability.Logger

	// now is swapped out in tests
	now func() time.Time
}

// NewService creates the event service
func NewService(store *Store, engine *policy.Engine, metrics *observability.Metrics, logger *observability.Logger) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) resource(e *Event) policy.Resource {
	return policy.Owned{Type: "event", OwnerID: e.OwnerID, OwnerRole: e.OwnerRole}
}

// List returns the events visible to the principal
func (s *Service) List(ctx context.Context, p *auth.Principal, f ListFilters) ([]*Event, error) {
	return s.store.List(ctx, policy.EventScope(p), f)
}

// Get returns one event if the principal may read it
func (s *Service) Get(ctx context.Context, p *auth.Principal, id int64) (*Event, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(p, s.resource(e), policy.ActionRead); err != nil {
		return nil, err
	}
	return e, nil
}

// Create builds a new event from the input, validates it, and stores
// it owned by the principal
func (s *Service) Create(ctx context.Context, p *auth.Principal, in *Input) (*Event, error) {
	e := NewEvent(p.ID)
	e.OwnerRole = p.Role
	e.OwnerDisplayName = p.DisplayName()
	e.Apply(in)

	if err := Validate(e, s.now()); err != nil {
		s.rejected(err)
		s.metrics.EventWritesTotal.WithLabelValues("create", "rejected").Inc()
		return nil, err
	}
	if err := s.store.Create(ctx, e); err != nil {
		s.metrics.EventWritesTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	s.metrics.EventWritesTotal.WithLabelValues("create", "ok").Inc()
	s.logger.WithFields(map[string]interface{}{
		"event_id": e.ID,
		"owner_id": e.OwnerID,
	}).Infof("event created")
	return e, nil
}

// Update applies the input to an existing event after the policy check
// and validation pipeline. An evidence-only input takes the relaxed
// path: any principal who can read the event may attach evidence once
// the event has ended, and the rest of the pipeline is skipped.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id int64, in *Input) (*Event, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.EvidenceOnly() {
		return s.updateEvidence(ctx, p, e, *in.Evidence)
	}

	if err := s.engine.Authorize(p, s.resource(e), policy.ActionWrite); err != nil {
		return nil, err
	}

	prevStage := e.Stage
	e.Apply(in)

	if err := Validate(e, s.now()); err != nil {
		s.rejected(err)
		s.metrics.EventWritesTotal.WithLabelValues("update", "rejected").Inc()
		return nil, err
	}
	if err := s.store.Update(ctx, e); err != nil {
		s.metrics.EventWritesTotal.WithLabelValues("update", "error").Inc()
		return nil, err
	}
	s.metrics.EventWritesTotal.WithLabelValues("update", "ok").Inc()
	if e.Stage != prevStage {
		s.metrics.StageTransitionsTotal.WithLabelValues(string(prevStage), string(e.Stage)).Inc()
		s.logger.WithFields(map[string]interface{}{
			"event_id": e.ID,
			"from":     prevStage,
			"to":       e.Stage,
		}).Infof("event stage changed")
	}
	return e, nil
}

func (s *Service) updateEvidence(ctx context.Context, p *auth.Principal, e *Event, evidence string) (*Event, error) {
	if err := s.engine.Authorize(p, s.resource(e), policy.ActionRead); err != nil {
		return nil, err
	}
	if err := ValidateEvidence(e, s.now()); err != nil {
		s.rejected(err)
		s.metrics.EventWritesTotal.WithLabelValues("evidence", "rejected").Inc()
		return nil, err
	}
	if err := s.store.UpdateEvidence(ctx, e.ID, evidence); err != nil {
		s.metrics.EventWritesTotal.WithLabelValues("evidence", "error").Inc()
		return nil, err
	}
	s.metrics.EventWritesTotal.WithLabelValues("evidence", "ok").Inc()
	e.Evidence = evidence
	return e, nil
}

// Delete removes an event if the principal may delete it
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id int64) error {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(p, s.resource(e), policy.ActionDelete); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.metrics.EventWritesTotal.WithLabelValues("delete", "error").Inc()
		return err
	}
	s.metrics.EventWritesTotal.WithLabelValues("delete", "ok").Inc()
	s.logger.WithFields(map[string]interface{}{
		"event_id":     id,
		"principal_id": p.ID,
	}).Infof("event deleted")
	return nil
}

// ProfileStats summarizes the principal's own events
func (s *Service) ProfileStats(ctx context.Context, p *auth.Principal) (*ProfileStats, error) {
	return s.store.ProfileStats(ctx, p.ID, s.now())
}

// RefreshStageGauge reloads the per-stage event gauge from the database
func (s *Service) RefreshStageGauge(ctx context.Context) error {
	counts, err := s.store.CountByStage(ctx)
	if err != nil {
		return err
	}
	for _, stage := range []Stage{StagePlanning, StageReview, StageConfirmed, StageCancelled, StagePostponed} {
		s.metrics.EventsTotal.WithLabelValues(string(stage)).Set(float64(counts[stage]))
	}
	return nil
}

func (s *Service) rejected(err error) {
	if verr, ok := err.(*ValidationError); ok {
		s.metrics.GuardRejectionsTotal.WithLabelValues(verr.Field).Inc()
	}
}
