package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
	"fintrack/internal/storage/sqlstore"
)

// EventStore appends ledger events.
type EventStore interface {
	RecordEvent(ctx context.Context, e sqlstore.Event) (int64, error)
}

// EventRecorder persists consumed ledger change messages as an audit trail.
type EventRecorder struct {
	store  EventStore
	logger *slog.Logger
	now    func() time.Time
}

func NewEventRecorder(store EventStore, logger *slog.Logger) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRecorder{store: store, logger: logger, now: time.Now}
}

// Handle implements amqp.Handler.
func (r *EventRecorder) Handle(ctx context.Context, msg *amqp.LedgerChangeMessage) error {
	occurred := msg.Timestamp
	if occurred.IsZero() {
		occurred = r.now()
	}
	id, err := r.store.RecordEvent(ctx, sqlstore.Event{
		Resource:   msg.Resource,
		UserID:     msg.UserID,
		Key:        msg.Key,
		Action:     msg.Action,
		OccurredAt: occurred.UTC(),
		RecordedAt: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record ledger event: %w", err)
	}

	r.logger.DebugContext(ctx, "Recorded ledger event",
		"event_id", id,
		log.FieldResource, msg.Resource,
		log.FieldUserID, msg.UserID,
		log.FieldKey, msg.Key,
		"action", msg.Action,
		log.FieldOperation, log.OpRecord)
	return nil
}
