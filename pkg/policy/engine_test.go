package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindara-hq/eventdesk/pkg/auth"
)

var (
	admin   = &auth.Principal{ID: 1, Role: auth.RoleAdmin}
	manager = &auth.Principal{ID: 2, Role: auth.RoleManager}
	user    = &auth.Principal{ID: 3, Role: auth.RoleUser}
	user2   = &auth.Principal{ID: 4, Role: auth.RoleUser}
)

func eventOwnedBy(p *auth.Principal) Owned {
	return Owned{Type: "event", OwnerID: p.ID, OwnerRole: p.Role}
}

func TestOwnerAlwaysWrites(t *testing.T) {
	// ownership grants write for every role, including basic users
	for _, p := range []*auth.Principal{admin, manager, user} {
		for _, action := range []Action{ActionRead, ActionWrite, ActionDelete} {
			assert.True(t, CanAccess(p, eventOwnedBy(p), action),
				"owner %s denied %s on own event", p.Role, action)
		}
	}
}

func TestBasicUserCannotTouchOthersEvents(t *testing.T) {
	for _, action := range []Action{ActionRead, ActionWrite, ActionDelete} {
		assert.False(t, CanAccess(user2, eventOwnedBy(user), action))
	}
}

func TestManagerEventAccess(t *testing.T) {
	tests := []struct {
		name   string
		owner  *auth.Principal
		action Action
		want   bool
	}{
		{"read user-owned", user, ActionRead, true},
		{"write user-owned", user, ActionWrite, true},
		{"delete user-owned", user, ActionDelete, true},
		{"read admin-owned", admin, ActionRead, true},
		{"write admin-owned", admin, ActionWrite, false},
		{"delete admin-owned", admin, ActionDelete, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccess(manager, eventOwnedBy(tt.owner), tt.action))
		})
	}
}

// Every grant a manager holds must also hold for an admin.
func TestAdminSupersetOfManager(t *testing.T) {
	resources := []Resource{
		eventOwnedBy(user),
		eventOwnedBy(manager),
		eventOwnedBy(admin),
		Self{ID: user.ID, Role: auth.RoleUser},
		Self{ID: manager.ID, Role: auth.RoleManager},
		Unowned{Type: "notification"},
	}
	for _, r := range resources {
		for _, action := range []Action{ActionRead, ActionWrite, ActionDelete} {
			if CanAccess(manager, r, action) {
				assert.True(t, CanAccess(admin, r, action),
					"admin lacks manager grant: %T %s", r, action)
			}
		}
	}
}

func TestSelfResource(t *testing.T) {
	// everyone reads and edits their own profile
	assert.True(t, CanAccess(user, Self{ID: user.ID, Role: auth.RoleUser}, ActionWrite))
	// but nobody else's
	assert.False(t, CanAccess(user, Self{ID: user2.ID, Role: auth.RoleUser}, ActionRead))

	// managers handle USER-level accounts short of deleting them
	assert.True(t, CanAccess(manager, Self{ID: user.ID, Role: auth.RoleUser}, ActionWrite))
	assert.False(t, CanAccess(manager, Self{ID: user.ID, Role: auth.RoleUser}, ActionDelete))
	assert.False(t, CanAccess(manager, Self{ID: admin.ID, Role: auth.RoleAdmin}, ActionWrite))

	// admins handle anyone
	assert.True(t, CanAccess(admin, Self{ID: user.ID, Role: auth.RoleUser}, ActionDelete))
}

func TestUnownedResource(t *testing.T) {
	n := Unowned{Type: "notification"}

	assert.True(t, CanAccess(user, n, ActionRead))
	assert.False(t, CanAccess(user, n, ActionWrite))
	assert.True(t, CanAccess(manager, n, ActionWrite))
	assert.True(t, CanAccess(admin, n, ActionDelete))
}

func TestEventScope(t *testing.T) {
	assert.True(t, EventScope(admin).All())
	assert.True(t, EventScope(manager).All())

	scope := EventScope(user)
	require.NotNil(t, scope.OwnerID)
	assert.Equal(t, user.ID, *scope.OwnerID)
	assert.False(t, scope.None)
}

func TestPrincipalScope(t *testing.T) {
	assert.True(t, PrincipalScope(admin).All())

	scope := PrincipalScope(manager)
	require.NotNil(t, scope.Role)
	assert.Equal(t, auth.RoleUser, *scope.Role)

	assert.True(t, PrincipalScope(user).None)
}

func TestEngineAuthorize(t *testing.T) {
	engine := NewEngine(128, time.Minute, nil)

	assert.NoError(t, engine.Authorize(user, eventOwnedBy(user), ActionWrite))
	assert.ErrorIs(t, engine.Authorize(user2, eventOwnedBy(user), ActionWrite), ErrForbidden)
}

func TestEngineCacheConsistency(t *testing.T) {
	engine := NewEngine(128, time.Minute, nil)
	resource := eventOwnedBy(user)

	// repeated checks return the same verdict through the cache
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, engine.Authorize(user2, resource, ActionWrite), ErrForbidden)
		assert.NoError(t, engine.Authorize(manager, resource, ActionWrite))
	}

	engine.Purge()
	assert.ErrorIs(t, engine.Authorize(user2, resource, ActionWrite), ErrForbidden)
}

func TestEngineWithoutCache(t *testing.T) {
	engine := NewEngine(0, 0, nil)
	assert.NoError(t, engine.Authorize(admin, eventOwnedBy(user), ActionDelete))
	assert.ErrorIs(t, engine.Authorize(user, Self{ID: user2.ID, Role: auth.RoleUser}, ActionRead), ErrForbidden)
}
