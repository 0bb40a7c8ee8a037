package users

import (
	"context"
	"fmt"

	"github.com/mindara-hq/eventdesk/pkg/audit"
	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/events"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
)

// Service enforces who may see and manage which accounts. Admins manage
// everyone, managers manage basic accounts, basic users only touch
// themselves.
type Service struct {
	store  *Store
	engine *policy.Engine
	trail  *audit.Trail
	logger *observability.Logger
}

// NewService creates the account management service. trail may be nil
// in tests.
func NewService(store *Store, engine *policy.Engine, trail *audit.Trail, logger *observability.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		trail:  trail,
		logger: logger,
	}
}

func selfResource(target *auth.Principal) policy.Resource {
	return policy.Self{ID: target.ID, Role: target.Role}
}

// List returns the accounts the caller may manage. Basic users get
// forbidden; their own account lives on the profile routes.
func (s *Service) List(ctx context.Context, p *auth.Principal) ([]*auth.Principal, error) {
	scope := policy.PrincipalScope(p)
	if scope.None {
		return nil, policy.ErrForbidden
	}
	return s.store.List(ctx, scope)
}

// Get returns one account the caller may see
func (s *Service) Get(ctx context.Context, p *auth.Principal, id int64) (*auth.Principal, error) {
	target, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(p, selfResource(target), policy.ActionRead); err != nil {
		return nil, err
	}
	return target, nil
}

// ProfileInput carries the self-editable account fields
type ProfileInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// UpdateProfile writes the editable fields of an account
func (s *Service) UpdateProfile(ctx context.Context, p *auth.Principal, id int64, in *ProfileInput) (*auth.Principal, error) {
	target, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(p, selfResource(target), policy.ActionWrite); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProfile(ctx, id, in.FirstName, in.LastName, in.Phone); err != nil {
		return nil, err
	}
	target.FirstName = in.FirstName
	target.LastName = in.LastName
	target.Phone = in.Phone
	return target, nil
}

// ChangeRole moves an account to a new role. Only admins may do this,
// and never to their own account, so the system cannot lose its last
// administrator by accident.
func (s *Service) ChangeRole(ctx context.Context, p *auth.Principal, id int64, role auth.Role) (*auth.Principal, error) {
	if !p.IsAdmin() {
		return nil, policy.ErrForbidden
	}
	if p.ID == id {
		return nil, policy.ErrForbidden
	}
	if !role.Valid() {
		return nil, &events.ValidationError{Field: "role", Reason: events.ReasonInvalidValue}
	}

	target, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Role == role {
		return target, nil
	}

	if err := s.store.SetRole(ctx, id, role); err != nil {
		return nil, err
	}

	// cached decisions about the old role are stale now
	s.engine.Purge()

	if s.trail != nil {
		s.trail.Record(ctx, &audit.Event{
			Type:         audit.EventRoleChanged,
			ActorID:      &p.ID,
			ActorName:    p.DisplayName(),
			SubjectID:    &target.ID,
			ResourceType: "principal",
			ResourceID:   fmt.Sprintf("%d", target.ID),
			Changes:      map[string]interface{}{"role": []string{string(target.Role), string(role)}},
		})
	}
	s.logger.WithFields(map[string]interface{}{
		"principal_id": target.ID,
		"from":         target.Role,
		"to":           role,
		"changed_by":   p.ID,
	}).Infof("principal role changed")

	target.Role = role
	return target, nil
}

// SetActive toggles an account. Deactivation is the default way to
// retire an account; it is reversible and keeps owned records.
func (s *Service) SetActive(ctx context.Context, p *auth.Principal, id int64, active bool) error {
	target, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(p, selfResource(target), policy.ActionWrite); err != nil {
		return err
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}

	if !active && s.trail != nil {
		s.trail.Record(ctx, &audit.Event{
			Type:         audit.EventPrincipalDeactivated,
			ActorID:      &p.ID,
			ActorName:    p.DisplayName(),
			SubjectID:    &target.ID,
			ResourceType: "principal",
			ResourceID:   fmt.Sprintf("%d", target.ID),
		})
	}
	return nil
}

// Delete permanently removes an account and everything it owns. Admin
// only, and never the admin's own account.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id int64) error {
	if !p.IsAdmin() {
		return policy.ErrForbidden
	}
	if p.ID == id {
		return policy.ErrForbidden
	}

	target, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.engine.Purge()

	if s.trail != nil {
		s.trail.Record(ctx, &audit.Event{
			Type:         audit.EventPrincipalDeleted,
			ActorID:      &p.ID,
			ActorName:    p.DisplayName(),
			SubjectID:    &target.ID,
			ResourceType: "principal",
			ResourceID:   fmt.Sprintf("%d", target.ID),
			Message:      target.Email,
		})
	}
	s.logger.WithFields(map[string]interface{}{
		"principal_id": target.ID,
		"deleted_by":   p.ID,
	}).Warnf("principal permanently deleted")
	return nil
}
