package session

import (
	"context"
	"sync"
	"time"

	"github.com/leaftogo/deskbot/internal/domain"
)

type memoryEntry struct {
	sess      domain.Session
	expiresAt time.Time
}

// memoryStore keeps sessions in process memory. Used when Redis is not
// configured and in tests.
type memoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]memoryEntry
}

// NewMemoryStore builds an in-memory store. A zero TTL disables expiry.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{ttl: ttl, entries: make(map[int64]memoryEntry)}
}

func (s *memoryStore) Get(_ context.Context, actorID int64) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[actorID]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.entries, actorID)
		return nil, nil
	}
	sess := entry.sess
	return &sess, nil
}

func (s *memoryStore) Put(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.UpdatedAt = time.Now().UTC()
	entry := memoryEntry{sess: *sess}
	if s.ttl > 0 {
		entry.expiresAt = time.Now().Add(s.ttl)
	}
	s.entries[sess.ActorID] = entry
	return nil
}

func (s *memoryStore) Delete(_ context.Context, actorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, actorID)
	return nil
}
