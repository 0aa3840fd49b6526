// Package session stores per-actor dialog state. The bot treats a
// missing or expired record as "idle"; expiry never surfaces as an
// error, it just makes the session disappear.
package session

import (
	"context"

	"github.com/leaftogo/deskbot/internal/domain"
)

// Store persists dialog sessions keyed by actor ID.
type Store interface {
	// Get returns (nil, nil) when the actor has no live session.
	Get(ctx context.Context, actorID int64) (*domain.Session, error)
	Put(ctx context.Context, sess *domain.Session) error
	Delete(ctx context.Context, actorID int64) error
}
