package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/config"
	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/repository"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

// RoleService resolves actor capabilities and manages role grants. The
// sets seeded from configuration are immutable at runtime and always
// outrank stored grants.
type RoleService struct {
	roles        repository.RoleRepository
	actors       repository.ActorRepository
	staticAdmins map[int64]struct{}
	staticTechs  map[int64]struct{}
	logger       *zap.Logger
}

// RoleDependencies bundles dependencies for the role service.
type RoleDependencies struct {
	RoleRepo  repository.RoleRepository
	ActorRepo repository.ActorRepository
	Static    config.RolesConfig
	Logger    *zap.Logger
}

// NewRoleService constructs the service.
func NewRoleService(deps RoleDependencies) *RoleService {
	staticAdmins := make(map[int64]struct{}, len(deps.Static.AdminIDs))
	for _, id := range deps.Static.AdminIDs {
		staticAdmins[id] = struct{}{}
	}
	staticTechs := make(map[int64]struct{}, len(deps.Static.TechnicianIDs))
	for _, id := range deps.Static.TechnicianIDs {
		staticTechs[id] = struct{}{}
	}
	return &RoleService{
		roles:        deps.RoleRepo,
		actors:       deps.ActorRepo,
		staticAdmins: staticAdmins,
		staticTechs:  staticTechs,
		logger:       deps.Logger,
	}
}

// Capability returns the highest capability the actor holds. It never
// fails: when the grant store is unreachable the static sets still apply.
func (s *RoleService) Capability(ctx context.Context, actorID int64) domain.Capability {
	capability := domain.CapabilityUser
	if _, ok := s.staticTechs[actorID]; ok {
		capability = domain.CapabilityTechnician
	}
	if _, ok := s.staticAdmins[actorID]; ok {
		return domain.CapabilityAdmin
	}

	grant, err := s.roles.Get(ctx, actorID)
	if err != nil {
		s.logger.Warn("role lookup failed; using static roles only",
			zap.Int64("actor_id", actorID), zap.Error(err))
		return capability
	}
	if grant != nil && grant.Role.Capability() > capability {
		capability = grant.Role.Capability()
	}
	return capability
}

// IsAdmin reports whether the actor holds admin capability.
func (s *RoleService) IsAdmin(ctx context.Context, actorID int64) bool {
	return s.Capability(ctx, actorID).AtLeast(domain.CapabilityAdmin)
}

// Grant assigns a role to the target. Caller must be an admin.
func (s *RoleService) Grant(ctx context.Context, adminID, targetID int64, role domain.Role) error {
	if !s.IsAdmin(ctx, adminID) {
		return apperrors.NewForbidden("only admins can grant roles")
	}
	if !role.Valid() {
		return apperrors.NewInvalidInput("unknown role", map[string]any{"role": string(role)})
	}
	grant := &domain.RoleGrant{ActorID: targetID, Role: role, GrantedBy: adminID}
	if err := s.roles.Upsert(ctx, grant); err != nil {
		return err
	}
	s.logger.Info("role granted",
		zap.Int64("actor_id", targetID),
		zap.String("role", string(role)),
		zap.Int64("granted_by", adminID))
	return nil
}

// Revoke removes a stored grant. Actors seeded as admins in the
// configuration cannot be revoked at runtime; revoking an absent grant
// succeeds silently.
func (s *RoleService) Revoke(ctx context.Context, adminID, targetID int64) error {
	if !s.IsAdmin(ctx, adminID) {
		return apperrors.NewForbidden("only admins can revoke roles")
	}
	if _, ok := s.staticAdmins[targetID]; ok {
		return apperrors.NewForbidden("cannot revoke an admin seeded from configuration")
	}
	removed, err := s.roles.Delete(ctx, targetID)
	if err != nil {
		return err
	}
	if removed {
		s.logger.Info("role revoked",
			zap.Int64("actor_id", targetID),
			zap.Int64("revoked_by", adminID))
	}
	return nil
}

// Admins lists every actor with admin capability, static and granted.
// A store failure degrades to the static set so notification fan-out
// keeps working.
func (s *RoleService) Admins(ctx context.Context) []int64 {
	admins, _, err := s.splitRoles(ctx)
	if err != nil {
		s.logger.Warn("role listing degraded to static admins", zap.Error(err))
		return sortedIDs(s.staticAdmins)
	}
	return admins
}

// Technicians lists actors with technician capability, excluding pure
// admins; the assign menu offers exactly this set. Degrades like Admins
// on store failure.
func (s *RoleService) Technicians(ctx context.Context) []int64 {
	_, techs, err := s.splitRoles(ctx)
	if err != nil {
		s.logger.Warn("role listing degraded to static technicians", zap.Error(err))
		fallback := make(map[int64]struct{}, len(s.staticTechs))
		for id := range s.staticTechs {
			if _, admin := s.staticAdmins[id]; !admin {
				fallback[id] = struct{}{}
			}
		}
		return sortedIDs(fallback)
	}
	return techs
}

// Roles returns the admin and technician sets for the role listing.
func (s *RoleService) Roles(ctx context.Context) (admins, techs []int64, err error) {
	return s.splitRoles(ctx)
}

func (s *RoleService) splitRoles(ctx context.Context) ([]int64, []int64, error) {
	adminSet := make(map[int64]struct{}, len(s.staticAdmins))
	for id := range s.staticAdmins {
		adminSet[id] = struct{}{}
	}
	techSet := make(map[int64]struct{}, len(s.staticTechs))
	for id := range s.staticTechs {
		techSet[id] = struct{}{}
	}

	grants, err := s.roles.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, grant := range grants {
		switch grant.Role {
		case domain.RoleAdmin:
			adminSet[grant.ActorID] = struct{}{}
		case domain.RoleTechnician:
			techSet[grant.ActorID] = struct{}{}
		}
	}
	for id := range adminSet {
		delete(techSet, id)
	}
	return sortedIDs(adminSet), sortedIDs(techSet), nil
}

// ResolveActor turns a numeric ID or a known @username into an actor ID.
func (s *RoleService) ResolveActor(ctx context.Context, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	if strings.HasPrefix(ref, "@") {
		actor, err := s.actors.LookupByUsername(ctx, ref)
		if err != nil {
			return 0, err
		}
		if actor != nil {
			return actor.ID, nil
		}
	}
	return 0, apperrors.NewInvalidInput(
		"expected a numeric user id or a known @username", map[string]any{"field": "assignee", "ref": ref})
}

// Remember records that an actor was seen, for later username lookups.
// Directory failures are logged and swallowed: handling the update is
// more important than the bookkeeping.
func (s *RoleService) Remember(ctx context.Context, actorID int64, username string) {
	if err := s.actors.Remember(ctx, &domain.Actor{ID: actorID, Username: username}); err != nil {
		s.logger.Warn("failed to remember actor", zap.Int64("actor_id", actorID), zap.Error(err))
	}
}

// DisplayName returns a human label for an actor, preferring the
// remembered username.
func (s *RoleService) DisplayName(ctx context.Context, actorID int64) string {
	actor, err := s.actors.Get(ctx, actorID)
	if err == nil && actor != nil && actor.Username != "" {
		return "@" + actor.Username
	}
	return strconv.FormatInt(actorID, 10)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
