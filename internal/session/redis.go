package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leaftogo/deskbot/internal/domain"
)

const keyPrefix = "deskbot:session:"

// redisStore persists sessions in Redis so dialogs survive restarts.
// Expiry rides on the key TTL.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed store. A zero TTL disables expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func (s *redisStore) Get(ctx context.Context, actorID int64) (*domain.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var sess domain.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		// Unreadable state is treated as no session rather than
		// wedging the actor's dialog forever.
		_ = s.client.Del(ctx, sessionKey(actorID)).Err()
		return nil, nil
	}
	return &sess, nil
}

func (s *redisStore) Put(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(sess.ActorID), string(payload), s.ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, actorID int64) error {
	return s.client.Del(ctx, sessionKey(actorID)).Err()
}

func sessionKey(actorID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, actorID)
}
