package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"fintrack/internal/amqp"
	"fintrack/internal/bucket"
	"fintrack/internal/core"
	"fintrack/internal/finance"
	"fintrack/internal/log"
)

var (
	ErrInvalidKey    = errors.New("invalid ledger key")
	ErrInvalidRecord = errors.New("invalid record")
	ErrNotFound      = errors.New("entry not found")
	// ErrMissingUser is returned when an operation has no user id.
	ErrMissingUser = bucket.ErrMissingUser
	ErrInvalidUser = bucket.ErrInvalidUser
)

// Publisher announces ledger changes to other processes.
type Publisher interface {
	PublishLedgerChange(ctx context.Context, msg *amqp.LedgerChangeMessage) error
}

// Entry is one ledger record with its derived totals.
type Entry struct {
	Key    string          `json:"key"`
	Record core.Record     `json:"record"`
	Totals finance.Summary `json:"totals"`
}

// LedgerView is a user's ledger ordered newest first.
type LedgerView struct {
	Resource string  `json:"resource"`
	UserID   string  `json:"userId"`
	Entries  []Entry `json:"entries"`
}

// SaveRequest describes one partial update of a ledger entry.
type SaveRequest struct {
	Resource string
	UserID   string
	Key      string
	Fields   map[string]any
	Remove   []string
}

// SaveResult is the outcome of a save. Evicted is set when the entry fell
// outside the retention window straight away and was not kept.
type SaveResult struct {
	Entry   Entry
	Evicted bool
}

// LedgerService orchestrates ledger operations across the bucket store and AMQP
type LedgerService struct {
	store     *bucket.Store
	publisher Publisher
	logger    *slog.Logger
}

func NewLedgerService(store *bucket.Store, publisher Publisher, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Resources returns the names of every tracked resource.
func (s *LedgerService) Resources() []string {
	return s.store.Registry().Names()
}

// Resource returns the definition of a tracked resource.
func (s *LedgerService) Resource(name string) (bucket.Resource, error) {
	return s.store.Registry().Lookup(name)
}

// Ledger returns the user's entries for resource, newest first, with totals recomputed.
func (s *LedgerService) Ledger(ctx context.Context, resource, userID string) (LedgerView, error) {
	ledger, err := s.store.Get(ctx, resource, userID)
	if err != nil {
		return LedgerView{}, err
	}

	view := LedgerView{
		Resource: resource,
		UserID:   userID,
		Entries:  make([]Entry, 0, len(ledger)),
	}
	for _, key := range ledger.Keys() {
		view.Entries = append(view.Entries, newEntry(resource, key, ledger[key]))
	}
	return view, nil
}

// Entry returns one entry or ErrNotFound.
func (s *LedgerService) Entry(ctx context.Context, resource, userID, key string) (Entry, error) {
	ledger, err := s.store.Get(ctx, resource, userID)
	if err != nil {
		return Entry{}, err
	}
	rec, ok := ledger[key]
	if !ok {
		return Entry{}, fmt.Errorf("%s %s: %w", resource, key, ErrNotFound)
	}
	return newEntry(resource, key, rec), nil
}

// Save merges req.Fields into the entry and publishes the change.
func (s *LedgerService) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	res, err := s.store.Registry().Lookup(req.Resource)
	if err != nil {
		return SaveResult{}, err
	}
	if req.UserID == "" {
		return SaveResult{}, ErrMissingUser
	}
	if !utf8.ValidString(req.UserID) {
		return SaveResult{}, ErrInvalidUser
	}
	if !finance.ValidKey(res, req.Key) {
		return SaveResult{}, fmt.Errorf("%w %q for %s", ErrInvalidKey, req.Key, req.Resource)
	}
	patch, err := core.NormalizeRecord(req.Fields)
	if err != nil {
		return SaveResult{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	rec, err := s.store.Upsert(ctx, req.Resource, req.UserID, req.Key, patch, req.Remove)
	if err != nil {
		return SaveResult{}, err
	}

	result := SaveResult{Entry: Entry{Key: req.Key}}
	if rec == nil {
		result.Evicted = true
		s.logger.InfoContext(ctx, "Entry outside retention window was not kept",
			log.FieldResource, req.Resource, log.FieldUserID, req.UserID, log.FieldKey, req.Key,
			log.FieldEvicted, true)
		return result, nil
	}

	result.Entry = newEntry(req.Resource, req.Key, rec)
	s.publish(ctx, req.Resource, req.UserID, req.Key, amqp.ActionUpsert)
	return result, nil
}

// Delete removes an entry; ErrNotFound when it did not exist.
func (s *LedgerService) Delete(ctx context.Context, resource, userID, key string) error {
	found, err := s.store.Delete(ctx, resource, userID, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s %s: %w", resource, key, ErrNotFound)
	}
	s.publish(ctx, resource, userID, key, amqp.ActionDelete)
	return nil
}

// Sweep re-applies retention to every user of every resource.
func (s *LedgerService) Sweep(ctx context.Context) (map[string]int, error) {
	swept := make(map[string]int)
	for _, name := range s.Resources() {
		n, err := s.store.Sweep(ctx, name)
		if err != nil {
			return swept, err
		}
		swept[name] = n
	}
	return swept, nil
}

// publish never fails the request; the write is already persisted.
func (s *LedgerService) publish(ctx context.Context, resource, userID, key, action string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewLedgerChangeMessage(resource, userID, key, action)
	if err := s.publisher.PublishLedgerChange(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger change",
			log.FieldResource, resource,
			log.FieldUserID, userID,
			log.FieldKey, key,
			"action", action,
			log.FieldOperation, log.OpPublish,
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
	}
}

// Close closes the publisher when it holds a connection
func (s *LedgerService) Close() error {
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}

func newEntry(resource, key string, rec core.Record) Entry {
	return Entry{
		Key:    key,
		Record: rec,
		Totals: finance.Totals(resource, rec),
	}
}
