// Package sqlstore is the SQLite ledger backend. It also keeps the audit
// trail of ledger change events recorded by the worker.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_time_format=sqlite"
}

func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadLedger implements bucket.Backend. Rows whose body is not a JSON
// object are skipped with a warning.
func (r *SQLiteRepository) LoadLedger(ctx context.Context, resource, userID string) (core.Ledger, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entry_key, body FROM ledger_entries WHERE resource = ? AND user_id = ?`,
		resource, userID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	ledger := core.Ledger{}
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			r.logger.WarnContext(ctx, "Skipping malformed ledger entry",
				log.FieldResource, resource, log.FieldUserID, userID, log.FieldKey, key, log.FieldError, err)
			continue
		}
		rec, err := core.NormalizeRecord(fields)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping malformed ledger entry",
				log.FieldResource, resource, log.FieldUserID, userID, log.FieldKey, key, log.FieldError, err)
			continue
		}
		ledger[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return ledger, nil
}

// SaveLedger implements bucket.Backend by replacing the user's rows in a
// single transaction.
func (r *SQLiteRepository) SaveLedger(ctx context.Context, resource, userID string, ledger core.Ledger) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE resource = ? AND user_id = ?`,
		resource, userID); err != nil {
		return fmt.Errorf("clear ledger entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ledger_entries (resource, user_id, entry_key, body, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for key, rec := range ledger {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, resource, userID, key, string(body), now); err != nil {
			return fmt.Errorf("insert entry %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}

// ListUsers implements bucket.Backend.
func (r *SQLiteRepository) ListUsers(ctx context.Context, resource string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM ledger_entries WHERE resource = ? ORDER BY user_id`, resource)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
