package game

import (
	"context"
	"sync"
)

// SessionPersistence stores the client view between runs, keyed by
// SessionContext.Key.
type SessionPersistence interface {
	Save(ctx context.Context, key string, snap Snapshot) error
	Load(ctx context.Context, key string) (Snapshot, bool, error)
}

// InMemorySessionStore is used when no Redis is configured and in tests.
type InMemorySessionStore struct {
	mu sync.Mutex
	m  map[string]Snapshot
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		m: make(map[string]Snapshot),
	}
}

func (s *InMemorySessionStore) Save(_ context.Context, key string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = snap
	return nil
}

func (s *InMemorySessionStore) Load(_ context.Context, key string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.m[key]
	return snap, ok, nil
}
