package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leaftogo/deskbot/internal/domain"
)

// memoryRoleRepository is the no-database fallback for role grants.
type memoryRoleRepository struct {
	mu     sync.Mutex
	grants map[int64]domain.RoleGrant
}

// NewMemoryRoleRepository instantiates the in-memory repository.
func NewMemoryRoleRepository() RoleRepository {
	return &memoryRoleRepository{grants: make(map[int64]domain.RoleGrant)}
}

func (r *memoryRoleRepository) Upsert(_ context.Context, grant *domain.RoleGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.grants[grant.ActorID]; ok {
		grant.CreatedAt = existing.CreatedAt
	} else {
		grant.CreatedAt = now
	}
	grant.UpdatedAt = now
	r.grants[grant.ActorID] = *grant
	return nil
}

func (r *memoryRoleRepository) Delete(_ context.Context, actorID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.grants[actorID]
	delete(r.grants, actorID)
	return ok, nil
}

func (r *memoryRoleRepository) Get(_ context.Context, actorID int64) (*domain.RoleGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	grant, ok := r.grants[actorID]
	if !ok {
		return nil, nil
	}
	return &grant, nil
}

func (r *memoryRoleRepository) List(_ context.Context) ([]domain.RoleGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.RoleGrant, 0, len(r.grants))
	for _, grant := range r.grants {
		result = append(result, grant)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ActorID < result[j].ActorID })
	return result, nil
}

// memoryActorRepository is the no-database fallback for the actor directory.
type memoryActorRepository struct {
	mu     sync.Mutex
	actors map[int64]domain.Actor
}

// NewMemoryActorRepository instantiates the in-memory repository.
func NewMemoryActorRepository() ActorRepository {
	return &memoryActorRepository{actors: make(map[int64]domain.Actor)}
}

func (r *memoryActorRepository) Remember(_ context.Context, actor *domain.Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor.Username = strings.TrimPrefix(actor.Username, "@")
	actor.LastSeen = time.Now().UTC()
	r.actors[actor.ID] = *actor
	return nil
}

func (r *memoryActorRepository) Get(_ context.Context, id int64) (*domain.Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, ok := r.actors[id]
	if !ok {
		return nil, nil
	}
	return &actor, nil
}

func (r *memoryActorRepository) LookupByUsername(_ context.Context, username string) (*domain.Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(strings.TrimPrefix(username, "@"))
	for _, actor := range r.actors {
		if strings.ToLower(actor.Username) == needle && actor.Username != "" {
			copied := actor
			return &copied, nil
		}
	}
	return nil, nil
}
