package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avolkov/finsync/internal/statestore"
)

// Store is an in-memory implementation of statestore.Store. Entries
// expire lazily: an expired entry behaves exactly like an absent one.
// Safe for concurrent use. Suitable for single-instance deployments and
// testing; multi-instance deployments should use the postgres store.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is swappable in tests to drive expiry deterministically.
	now func() time.Time
}

type entry struct {
	status    statestore.Status
	expiresAt time.Time
}

// NewStore creates a new in-memory state store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// TryAcquire implements statestore.Store. The check-then-set runs under
// one lock so it is atomic with respect to concurrent callers.
func (s *Store) TryAcquire(ctx context.Context, key string, initial statestore.Status, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("statestore: key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && s.now().Before(e.expiresAt) {
		return false, nil
	}

	s.entries[key] = entry{status: initial, expiresAt: s.now().Add(ttl)}
	return true, nil
}

// SetStatus implements statestore.Store.
func (s *Store) SetStatus(ctx context.Context, key string, status statestore.Status, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("statestore: key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{status: status, expiresAt: s.now().Add(ttl)}
	return nil
}

// Get implements statestore.Store.
func (s *Store) Get(ctx context.Context, key string) (statestore.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.status, true, nil
}

// Ensure Store implements the statestore.Store interface.
var _ statestore.Store = (*Store)(nil)
