package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMemoryStoreSize = 4096
	DefaultSessionTTL      = 30 * time.Minute
)

// MemoryStore keeps sessions in process memory. Idle sessions expire after
// the TTL and the least recently used are evicted beyond size.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, Session]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryStoreSize
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{cache: expirable.NewLRU[string, Session](size, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Session, bool, error) {
	session, ok := s.cache.Get(userID)
	return session, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if current, ok := s.cache.Peek(session.UserID); ok {
		stored = current.Version
	}
	if stored != session.Version {
		return Session{}, ErrConflict
	}
	session.Version++
	s.cache.Add(session.UserID, session)
	return session, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.cache.Remove(userID)
	return nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
