package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/config"
	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/repository"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

var errStoreDown = errors.New("store down")

// failingRoleRepo simulates an unreachable grant store.
type failingRoleRepo struct{}

func (failingRoleRepo) Upsert(context.Context, *domain.RoleGrant) error { return errStoreDown }
func (failingRoleRepo) Delete(context.Context, int64) (bool, error)     { return false, errStoreDown }
func (failingRoleRepo) Get(context.Context, int64) (*domain.RoleGrant, error) {
	return nil, errStoreDown
}
func (failingRoleRepo) List(context.Context) ([]domain.RoleGrant, error) { return nil, errStoreDown }

func TestCapabilityPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, domain.CapabilityAdmin, f.roles.Capability(ctx, adminID))
	assert.Equal(t, domain.CapabilityTechnician, f.roles.Capability(ctx, techID))
	assert.Equal(t, domain.CapabilityUser, f.roles.Capability(ctx, plainUserID))

	require.NoError(t, f.roles.Grant(ctx, adminID, plainUserID, domain.RoleTechnician))
	assert.Equal(t, domain.CapabilityTechnician, f.roles.Capability(ctx, plainUserID))

	require.NoError(t, f.roles.Grant(ctx, adminID, plainUserID, domain.RoleAdmin))
	assert.Equal(t, domain.CapabilityAdmin, f.roles.Capability(ctx, plainUserID))
	assert.True(t, f.roles.IsAdmin(ctx, plainUserID))

	// A stored technician grant cannot demote a seeded admin.
	require.NoError(t, f.roles.Grant(ctx, adminID, adminID, domain.RoleTechnician))
	assert.Equal(t, domain.CapabilityAdmin, f.roles.Capability(ctx, adminID))
}

func TestGrantAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.roles.Grant(ctx, techID, plainUserID, domain.RoleTechnician)
	assertCode(t, err, apperrors.CodeForbidden)

	err = f.roles.Grant(ctx, adminID, plainUserID, domain.Role("boss"))
	assertCode(t, err, apperrors.CodeInvalidInput)

	require.NoError(t, f.roles.Grant(ctx, adminID, plainUserID, domain.RoleTechnician))
	assert.Equal(t, domain.CapabilityTechnician, f.roles.Capability(ctx, plainUserID))
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.roles.Grant(ctx, adminID, plainUserID, domain.RoleTechnician))

	err := f.roles.Revoke(ctx, techID, plainUserID)
	assertCode(t, err, apperrors.CodeForbidden)

	err = f.roles.Revoke(ctx, adminID, adminID)
	assertCode(t, err, apperrors.CodeForbidden)

	require.NoError(t, f.roles.Revoke(ctx, adminID, plainUserID))
	assert.Equal(t, domain.CapabilityUser, f.roles.Capability(ctx, plainUserID))

	// Revoking an actor with no stored grant is a silent no-op.
	require.NoError(t, f.roles.Revoke(ctx, adminID, plainUserID))

	// Static technicians stay technicians; only the grant is gone.
	require.NoError(t, f.roles.Revoke(ctx, adminID, techID))
	assert.Equal(t, domain.CapabilityTechnician, f.roles.Capability(ctx, techID))
}

func TestRoleListingsDeduplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Promote a seeded technician: they must leave the technician list.
	require.NoError(t, f.roles.Grant(ctx, adminID, otherTechID, domain.RoleAdmin))
	require.NoError(t, f.roles.Grant(ctx, adminID, plainUserID, domain.RoleTechnician))

	admins, techs, err := f.roles.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{adminID, otherTechID}, admins)
	assert.Equal(t, []int64{techID, plainUserID}, techs)

	assert.Equal(t, admins, f.roles.Admins(ctx))
	assert.Equal(t, techs, f.roles.Technicians(ctx))
}

func TestRoleStoreOutageDegradesToStatic(t *testing.T) {
	ctx := context.Background()
	roles := NewRoleService(RoleDependencies{
		RoleRepo:  failingRoleRepo{},
		ActorRepo: repository.NewMemoryActorRepository(),
		Static: config.RolesConfig{
			AdminIDs:      []int64{5, 1},
			TechnicianIDs: []int64{3, 2, 5},
		},
		Logger: zap.NewNop(),
	})

	// Static roles survive the outage; stored grants do not apply.
	assert.Equal(t, domain.CapabilityAdmin, roles.Capability(ctx, 1))
	assert.Equal(t, domain.CapabilityTechnician, roles.Capability(ctx, 2))
	assert.Equal(t, domain.CapabilityUser, roles.Capability(ctx, 9))

	assert.Equal(t, []int64{1, 5}, roles.Admins(ctx))
	// The overlap id 5 is an admin, not a technician.
	assert.Equal(t, []int64{2, 3}, roles.Technicians(ctx))

	_, _, err := roles.Roles(ctx)
	require.Error(t, err)

	err = roles.Grant(ctx, 1, 9, domain.RoleTechnician)
	require.Error(t, err)
}

func TestResolveActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.roles.Remember(ctx, techID, "@Tech")

	id, err := f.roles.ResolveActor(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = f.roles.ResolveActor(ctx, "  42  ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = f.roles.ResolveActor(ctx, "@tech")
	require.NoError(t, err)
	assert.Equal(t, techID, id)

	id, err = f.roles.ResolveActor(ctx, "@TECH")
	require.NoError(t, err)
	assert.Equal(t, techID, id)

	for _, ref := range []string{"@ghost", "garbage", "-5", "0", ""} {
		_, err := f.roles.ResolveActor(ctx, ref)
		assertCode(t, err, apperrors.CodeInvalidInput)
	}
}

func TestDisplayName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.roles.Remember(ctx, techID, "@tech")
	assert.Equal(t, "@tech", f.roles.DisplayName(ctx, techID))

	// Never-seen actors and actors without a username fall back to the id.
	assert.Equal(t, "7", f.roles.DisplayName(ctx, 7))
	f.roles.Remember(ctx, plainUserID, "")
	assert.Equal(t, "4", f.roles.DisplayName(ctx, plainUserID))
}
