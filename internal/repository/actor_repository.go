package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaftogo/deskbot/internal/domain"
)

// ActorRepository remembers every messenger user the bot has seen, so
// @username arguments can be resolved back to numeric IDs.
type ActorRepository interface {
	Remember(ctx context.Context, actor *domain.Actor) error
	// Get returns (nil, nil) when the actor was never seen.
	Get(ctx context.Context, id int64) (*domain.Actor, error)
	// LookupByUsername returns (nil, nil) when no actor matches.
	LookupByUsername(ctx context.Context, username string) (*domain.Actor, error)
}

type actorRepository struct {
	pool *pgxpool.Pool
}

// NewActorRepository instantiates the repository.
func NewActorRepository(pool *pgxpool.Pool) ActorRepository {
	return &actorRepository{pool: pool}
}

func (r *actorRepository) Remember(ctx context.Context, actor *domain.Actor) error {
	const query = `
        INSERT INTO actors (id, username, last_seen)
        VALUES ($1,$2,NOW())
        ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, last_seen=NOW()
        RETURNING last_seen`
	return r.pool.QueryRow(ctx, query,
		actor.ID,
		strings.TrimPrefix(actor.Username, "@"),
	).Scan(&actor.LastSeen)
}

func (r *actorRepository) Get(ctx context.Context, id int64) (*domain.Actor, error) {
	const query = `SELECT id, username, last_seen FROM actors WHERE id=$1`
	var actor domain.Actor
	if err := r.pool.QueryRow(ctx, query, id).Scan(&actor.ID, &actor.Username, &actor.LastSeen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &actor, nil
}

func (r *actorRepository) LookupByUsername(ctx context.Context, username string) (*domain.Actor, error) {
	name := strings.TrimPrefix(username, "@")
	// Actors without a public username are stored with an empty string;
	// they must never win a lookup.
	if name == "" {
		return nil, nil
	}
	const query = `SELECT id, username, last_seen FROM actors WHERE LOWER(username)=LOWER($1)`
	var actor domain.Actor
	if err := r.pool.QueryRow(ctx, query, name).Scan(
		&actor.ID,
		&actor.Username,
		&actor.LastSeen,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &actor, nil
}
