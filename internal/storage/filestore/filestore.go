// Package filestore persists ledgers as one pretty-printed JSON document
// per resource, mapping user id to ledger.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"unicode/utf8"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

var errInvalidUserID = errors.New("user id is not valid UTF-8")

// Store reads and rewrites <dir>/<resource>.json on every operation.
type Store struct {
	dir    string
	logger *slog.Logger

	// mu serialises whole-file rewrites within this process only.
	mu sync.Mutex
}

func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Path returns the file backing resource.
func (s *Store) Path(resource string) string {
	return filepath.Join(s.dir, resource+".json")
}

// LoadLedger implements bucket.Backend.
func (s *Store) LoadLedger(ctx context.Context, resource, userID string) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.readBucket(ctx, resource)
	if err != nil {
		return nil, err
	}
	if l, ok := b[userID]; ok {
		return l, nil
	}
	return core.Ledger{}, nil
}

// SaveLedger implements bucket.Backend.
func (s *Store) SaveLedger(ctx context.Context, resource, userID string, ledger core.Ledger) error {
	// JSON encoding would rewrite the id with U+FFFD and file the ledger
	// under another user.
	if !utf8.ValidString(userID) {
		return fmt.Errorf("save %s ledger: %w", resource, errInvalidUserID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.readBucket(ctx, resource)
	if err != nil {
		return err
	}
	b[userID] = ledger
	return s.writeBucket(resource, b)
}

// ListUsers implements bucket.Backend.
func (s *Store) ListUsers(ctx context.Context, resource string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.readBucket(ctx, resource)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(b))
	for u := range b {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// readBucket loads the resource file. A missing file is created empty;
// content that is not a user -> ledger object is replaced by an empty
// bucket (logged, not returned as an error).
func (s *Store) readBucket(ctx context.Context, resource string) (core.Bucket, error) {
	path := s.Path(resource)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.writeBucket(resource, core.Bucket{}); err != nil {
			return nil, err
		}
		return core.Bucket{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.decodeBucket(ctx, path, data), nil
}

func (s *Store) decodeBucket(ctx context.Context, path string, data []byte) core.Bucket {
	if len(bytes.TrimSpace(data)) == 0 {
		return core.Bucket{}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.WarnContext(ctx, "Malformed ledger file, treating as empty",
			"path", path, log.FieldError, err)
		return core.Bucket{}
	}

	b := make(core.Bucket, len(raw))
	for user, msg := range raw {
		l, err := decodeLedger(msg)
		if err != nil {
			s.logger.WarnContext(ctx, "Malformed user ledger, treating as empty",
				"path", path, log.FieldUserID, user, log.FieldError, err)
			b[user] = core.Ledger{}
			continue
		}
		b[user] = l
	}
	return b
}

func decodeLedger(msg json.RawMessage) (core.Ledger, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(msg, &entries); err != nil {
		return nil, err
	}
	l := make(core.Ledger, len(entries))
	for key, raw := range entries {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		rec, err := core.NormalizeRecord(fields)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		l[key] = rec
	}
	return l, nil
}

// writeBucket overwrites the resource file through a temp file and rename.
func (s *Store) writeBucket(resource string, b core.Bucket) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s bucket: %w", resource, err)
	}
	data = append(data, '\n')

	path := s.Path(resource)
	tmp, err := os.CreateTemp(s.dir, resource+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
