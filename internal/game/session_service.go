package game

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const persistTimeout = 2 * time.Second

// SessionService builds the machine for one session and keeps its snapshot
// in the configured persistence. Saving happens off the machine's lock:
// the persist hook only records the latest snapshot per key and Run writes
// it out.
type SessionService struct {
	cfg     Config
	persist SessionPersistence
	log     *slog.Logger

	mu     sync.Mutex
	latest map[string]Snapshot
	wake   chan struct{}

	saveMu sync.Mutex // keeps saves in snapshot order
}

func NewSessionService(cfg Config, persist SessionPersistence, log *slog.Logger) *SessionService {
	if persist == nil {
		persist = NewInMemorySessionStore()
	}
	if log == nil {
		log = slog.Default()
	}
	return &SessionService{
		cfg:     cfg,
		persist: persist,
		log:     log,
		latest:  make(map[string]Snapshot),
		wake:    make(chan struct{}, 1),
	}
}

// Open returns a machine for sess. A stored snapshot is restored first;
// found reports whether there was one.
func (s *SessionService) Open(ctx context.Context, sess SessionContext, sink Sink) (m *Machine, found bool, err error) {
	key := sess.Key()

	snap, found, err := s.persist.Load(ctx, key)
	if err != nil {
		return nil, false, err
	}

	m = NewMachine(s.cfg, sess, sink, s.log)
	if found {
		m.Restore(snap)
		s.log.Info("session restored", "key", key, "phase", snap.Phase, "missions", len(snap.Missions))
	}

	m.SetPersistHook(func(snap Snapshot) { s.enqueue(key, snap) })

	return m, found, nil
}

// enqueue never blocks; a newer snapshot replaces an unsaved older one.
func (s *SessionService) enqueue(key string, snap Snapshot) {
	s.mu.Lock()
	s.latest[key] = snap
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run saves pending snapshots until ctx ends, then flushes what is left.
func (s *SessionService) Run(ctx context.Context) error {
	for {
		select {
		case <-s.wake:
			s.save()
		case <-ctx.Done():
			s.Flush()
			return nil
		}
	}
}

// Flush saves every pending snapshot before returning.
func (s *SessionService) Flush() {
	s.save()
}

func (s *SessionService) save() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	pending := s.latest
	s.latest = make(map[string]Snapshot)
	s.mu.Unlock()

	for key, snap := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := s.persist.Save(ctx, key, snap)
		cancel()
		if err != nil {
			s.log.Warn("session snapshot not saved", "key", key, "err", err)
		}
	}
}
