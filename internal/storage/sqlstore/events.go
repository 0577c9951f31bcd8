package sqlstore

import (
	"context"
	"fmt"
	"time"
)

// Event is one recorded ledger change.
type Event struct {
	ID         int64
	Resource   string
	UserID     string
	Key        string
	Action     string
	OccurredAt time.Time
	RecordedAt time.Time
}

// RecordEvent appends an event to the audit trail.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, e Event) (int64, error) {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_events (resource, user_id, entry_key, action, occurred_at, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Resource, e.UserID, e.Key, e.Action, e.OccurredAt.UTC(), e.RecordedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert ledger event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger event id: %w", err)
	}
	return id, nil
}

const selectEvents = `SELECT id, resource, user_id, entry_key, action, occurred_at, recorded_at FROM ledger_events`

// RecentEvents returns the newest events first, at most limit of them.
func (r *SQLiteRepository) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	return r.queryEvents(ctx, selectEvents+` ORDER BY occurred_at DESC, id DESC LIMIT ?`, eventLimit(limit))
}

// RecentEventsForUser is RecentEvents restricted to one user. The limit
// applies after the user filter.
func (r *SQLiteRepository) RecentEventsForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	return r.queryEvents(ctx, selectEvents+` WHERE user_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`, userID, eventLimit(limit))
}

func eventLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func (r *SQLiteRepository) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Resource, &e.UserID, &e.Key, &e.Action, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
