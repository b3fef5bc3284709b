package snapshotstore

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/flarecast/internal/domain/insight"
)

type stateRecord struct {
	payload   insight.State
	expiresAt time.Time
}

// MemoryStore is an in-memory snapshot store for tests/dev.
type MemoryStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	states map[string]stateRecord
	now    func() time.Time
}

// NewMemoryStore constructs a store backed by process memory. A zero ttl
// keeps snapshots until they are deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		states: make(map[string]stateRecord),
		now:    time.Now,
	}
}

// Save implements insight.SnapshotStore.
func (s *MemoryStore) Save(_ context.Context, userID string, state insight.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp := time.Time{}
	if s.ttl > 0 {
		exp = s.now().Add(s.ttl)
	}
	s.states[userID] = stateRecord{payload: state, expiresAt: exp}
	return nil
}

// Load implements insight.SnapshotStore.
func (s *MemoryStore) Load(_ context.Context, userID string) (insight.State, bool, error) {
	s.mu.RLock()
	record, ok := s.states[userID]
	s.mu.RUnlock()
	if !ok {
		return insight.State{}, false, nil
	}
	if s.hasExpired(record.expiresAt) {
		s.mu.Lock()
		delete(s.states, userID)
		s.mu.Unlock()
		return insight.State{}, false, nil
	}
	return record.payload, true, nil
}

// Delete implements insight.SnapshotStore.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

func (s *MemoryStore) hasExpired(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return ts.Before(s.now())
}

var _ insight.SnapshotStore = (*MemoryStore)(nil)
