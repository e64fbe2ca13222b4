package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps sessions in a map with lazy expiry on Get plus an
// optional background sweep so abandoned conversations release memory.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
	ttl      time.Duration
	clock    func() time.Time
}

type MemoryOption func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStore(ttl time.Duration, opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		sessions: make(map[int64]Session),
		ttl:      ttl,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.BuyerID] = sess
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, buyer int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[buyer]
	if !ok {
		return nil, nil
	}
	if s.expired(sess) {
		delete(s.sessions, buyer)
		return nil, nil
	}
	cp := sess
	return &cp, nil
}

func (s *InMemoryStore) Delete(_ context.Context, buyer int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, buyer)
	return nil
}

// Sweep removes every expired session and returns how many were dropped.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for buyer, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, buyer)
			dropped++
		}
	}
	return dropped
}

// RunSweeper sweeps on the given interval until the context is done.
func (s *InMemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *InMemoryStore) expired(sess Session) bool {
	return s.ttl > 0 && s.clock().Sub(sess.CreatedAt) >= s.ttl
}
