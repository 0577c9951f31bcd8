package memstore

import (
	"context"
	"sort"
	"sync"

	"fintrack/internal/core"
)

// Store keeps every bucket in process memory. Ledgers are copied on the
// way in and out so callers never share maps with the store.
type Store struct {
	mu      sync.Mutex
	buckets map[string]core.Bucket
}

func New() *Store {
	return &Store{buckets: make(map[string]core.Bucket)}
}

// Seed replaces the bucket for resource; used to preload fixtures.
func (s *Store) Seed(resource string, b core.Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(core.Bucket, len(b))
	for user, l := range b {
		cp[user] = l.Clone()
	}
	s.buckets[resource] = cp
}

// LoadLedger implements bucket.Backend.
func (s *Store) LoadLedger(_ context.Context, resource, userID string) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.buckets[resource][userID]
	if !ok {
		return core.Ledger{}, nil
	}
	return l.Clone(), nil
}

// SaveLedger implements bucket.Backend.
func (s *Store) SaveLedger(_ context.Context, resource, userID string, ledger core.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[resource]
	if !ok {
		b = make(core.Bucket)
		s.buckets[resource] = b
	}
	b[userID] = ledger.Clone()
	return nil
}

// ListUsers implements bucket.Backend.
func (s *Store) ListUsers(_ context.Context, resource string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.buckets[resource]))
	for u := range s.buckets[resource] {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}
