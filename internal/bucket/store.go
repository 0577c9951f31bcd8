// Package bucket implements the per-user ledger store: get/update
// primitives over a pluggable backend with a retention policy applied
// after every write.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

var ErrMissingUser = errors.New("user id is required")

// ErrInvalidUser is returned for user ids that are not valid UTF-8. Backends
// that encode ids as JSON or BSON strings would store them under a mangled key.
var ErrInvalidUser = errors.New("user id is not valid UTF-8")

// Backend persists one ledger per (resource, user).
type Backend interface {
	// LoadLedger returns the stored ledger, or an empty one when none exists.
	LoadLedger(ctx context.Context, resource, userID string) (core.Ledger, error)
	// SaveLedger replaces the stored ledger.
	SaveLedger(ctx context.Context, resource, userID string, ledger core.Ledger) error
	// ListUsers returns every user that has a ledger for resource.
	ListUsers(ctx context.Context, resource string) ([]string, error)
}

// Mutator receives a private copy of the current ledger and returns the
// full replacement.
type Mutator func(ledger core.Ledger) (core.Ledger, error)

// Store applies resource rules on top of a Backend.
type Store struct {
	backend  Backend
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for retention diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the record id generator, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func NewStore(backend Backend, registry *Registry, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		registry: registry,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the resource registry the store was built with.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Get returns the user's ledger for resource. A missing ledger is an empty
// ledger, not an error.
func (s *Store) Get(ctx context.Context, resource, userID string) (core.Ledger, error) {
	if _, err := s.registry.Lookup(resource); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrMissingUser
	}
	if !utf8.ValidString(userID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	ledger, err := s.backend.LoadLedger(ctx, resource, userID)
	if err != nil {
		return nil, fmt.Errorf("load %s ledger: %w", resource, err)
	}
	if ledger == nil {
		ledger = core.Ledger{}
	}
	return ledger, nil
}

// Update loads the ledger, applies fn to a copy, enforces retention on the
// result and persists it. The persisted ledger is returned.
func (s *Store) Update(ctx context.Context, resource, userID string, fn Mutator) (core.Ledger, error) {
	res, err := s.registry.Lookup(resource)
	if err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, resource, userID)
	if err != nil {
		return nil, err
	}

	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = core.Ledger{}
	}

	if res.Bounded() {
		before := len(next)
		next = LimitEntries(next, res.Retention())
		if evicted := before - len(next); evicted > 0 {
			s.logger.DebugContext(ctx, "Evicted ledger entries",
				log.FieldResource, resource,
				log.FieldUserID, userID,
				log.FieldEvicted, evicted,
				"limit", res.Limit)
		}
	}

	if err := s.backend.SaveLedger(ctx, resource, userID, next); err != nil {
		return nil, fmt.Errorf("save %s ledger: %w", resource, err)
	}
	return next.Clone(), nil
}

// Upsert writes patch into the record stored under key. A missing record
// is created from the resource defaults and given a fresh id. Fields in
// remove are deleted after the patch is applied; the id, createdAt and key
// fields are never removed or overwritten by the caller.
func (s *Store) Upsert(ctx context.Context, resource, userID, key string, patch core.Record, remove []string) (core.Record, error) {
	res, err := s.registry.Lookup(resource)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("upsert %s: empty key", resource)
	}

	patch = patch.Clone()
	delete(patch, core.FieldID)
	delete(patch, core.FieldCreatedAt)
	remove = filterProtected(remove, res.KeyField)

	ledger, err := s.Update(ctx, resource, userID, func(l core.Ledger) (core.Ledger, error) {
		existing, ok := l[key]
		if !ok {
			existing = s.newRecord(res)
		}
		merged := core.Merge(existing, patch, remove)
		merged[res.KeyField] = key
		l[key] = merged
		return l, nil
	})
	if err != nil {
		return nil, err
	}

	// The write may have been evicted immediately when key is older than
	// everything retained.
	rec, ok := ledger[key]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// Delete removes the record stored under key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, resource, userID, key string) (bool, error) {
	var found bool
	_, err := s.Update(ctx, resource, userID, func(l core.Ledger) (core.Ledger, error) {
		_, found = l[key]
		delete(l, key)
		return l, nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Sweep re-applies retention to every user's ledger for resource and
// returns the number of ledgers rewritten.
func (s *Store) Sweep(ctx context.Context, resource string) (int, error) {
	res, err := s.registry.Lookup(resource)
	if err != nil {
		return 0, err
	}
	if !res.Bounded() {
		return 0, nil
	}
	users, err := s.backend.ListUsers(ctx, resource)
	if err != nil {
		return 0, fmt.Errorf("list %s users: %w", resource, err)
	}

	swept := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		if _, err := s.Update(ctx, resource, user, func(l core.Ledger) (core.Ledger, error) {
			return l, nil
		}); err != nil {
			return swept, fmt.Errorf("sweep %s for user %s: %w", resource, user, err)
		}
		swept++
	}
	return swept, nil
}

func (s *Store) newRecord(res Resource) core.Record {
	rec := core.Record{}
	if res.Defaults != nil {
		rec = res.Defaults().Clone()
	}
	rec[core.FieldID] = s.newID()
	rec[core.FieldCreatedAt] = s.now().UTC().Format(time.RFC3339)
	return rec
}

func filterProtected(remove []string, keyField string) []string {
	out := make([]string, 0, len(remove))
	for _, f := range remove {
		if f == core.FieldID || f == core.FieldCreatedAt || f == keyField {
			continue
		}
		out = append(out, f)
	}
	return out
}
