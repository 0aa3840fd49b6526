package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaftogo/deskbot/internal/domain"
)

// RoleRepository handles persistence for mutable role grants. Statically
// configured role sets never reach this store.
type RoleRepository interface {
	Upsert(ctx context.Context, grant *domain.RoleGrant) error
	// Delete reports whether a grant existed.
	Delete(ctx context.Context, actorID int64) (bool, error)
	// Get returns (nil, nil) when the actor has no stored grant.
	Get(ctx context.Context, actorID int64) (*domain.RoleGrant, error)
	List(ctx context.Context) ([]domain.RoleGrant, error)
}

type roleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository instantiates the repository.
func NewRoleRepository(pool *pgxpool.Pool) RoleRepository {
	return &roleRepository{pool: pool}
}

func (r *roleRepository) Upsert(ctx context.Context, grant *domain.RoleGrant) error {
	const query = `
        INSERT INTO role_grants (actor_id, role, granted_by)
        VALUES ($1,$2,$3)
        ON CONFLICT (actor_id) DO UPDATE SET role=EXCLUDED.role, granted_by=EXCLUDED.granted_by, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		grant.ActorID,
		grant.Role,
		grant.GrantedBy,
	).Scan(&grant.CreatedAt, &grant.UpdatedAt)
}

func (r *roleRepository) Delete(ctx context.Context, actorID int64) (bool, error) {
	const query = `DELETE FROM role_grants WHERE actor_id=$1`
	cmd, err := r.pool.Exec(ctx, query, actorID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *roleRepository) Get(ctx context.Context, actorID int64) (*domain.RoleGrant, error) {
	const query = `
        SELECT actor_id, role, granted_by, created_at, updated_at
        FROM role_grants WHERE actor_id=$1`
	var grant domain.RoleGrant
	if err := r.pool.QueryRow(ctx, query, actorID).Scan(
		&grant.ActorID,
		&grant.Role,
		&grant.GrantedBy,
		&grant.CreatedAt,
		&grant.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

func (r *roleRepository) List(ctx context.Context) ([]domain.RoleGrant, error) {
	const query = `
        SELECT actor_id, role, granted_by, created_at, updated_at
        FROM role_grants ORDER BY actor_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoleGrant
	for rows.Next() {
		var grant domain.RoleGrant
		if err := rows.Scan(
			&grant.ActorID,
			&grant.Role,
			&grant.GrantedBy,
			&grant.CreatedAt,
			&grant.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, grant)
	}
	return result, rows.Err()
}
