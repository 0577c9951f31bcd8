package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/storage/sqlstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSweeper struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (s *countingSweeper) Sweep(ctx context.Context) (map[string]int, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return map[string]int{"expense": 2, "income": 1}, s.err
}

func TestRetentionSweeper_RunOnce(t *testing.T) {
	sw := &countingSweeper{}
	r := NewRetentionSweeper(sw, "0 3 * * *", quietLogger())

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sw.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", sw.calls.Load())
	}

	sw.err = errors.New("backend down")
	if err := r.RunOnce(context.Background()); err == nil {
		t.Error("expected sweep error")
	}
}

func TestRetentionSweeper_SkipsOverlappingRuns(t *testing.T) {
	sw := &countingSweeper{block: make(chan struct{})}
	r := NewRetentionSweeper(sw, "0 3 * * *", quietLogger())

	done := make(chan struct{})
	go func() {
		_ = r.RunOnce(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sw.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("overlapping RunOnce: %v", err)
	}
	close(sw.block)
	<-done

	if sw.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", sw.calls.Load())
	}
}

func TestRetentionSweeper_RunSweepsAtStartupAndStops(t *testing.T) {
	sw := &countingSweeper{}
	r := NewRetentionSweeper(sw, "0 3 * * *", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sw.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if sw.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", sw.calls.Load())
	}
}

func TestRetentionSweeper_InvalidSchedule(t *testing.T) {
	r := NewRetentionSweeper(&countingSweeper{}, "whenever", quietLogger())
	if err := r.Run(context.Background()); err == nil {
		t.Error("expected schedule error")
	}
}

func TestEventRecorder_Handle(t *testing.T) {
	repo, err := sqlstore.NewSQLiteRepository(filepath.Join(t.TempDir(), "events.db"), quietLogger())
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	rec := NewEventRecorder(repo, quietLogger())
	occurred := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []*amqp.LedgerChangeMessage{
		{Resource: "expense", UserID: "u1", Key: "2024-02", Action: amqp.ActionUpsert, Timestamp: occurred},
		{Resource: "expense", UserID: "u1", Key: "2024-02", Action: amqp.ActionDelete, Timestamp: occurred.Add(time.Minute)},
	}
	for _, m := range msgs {
		if err := rec.Handle(context.Background(), m); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	events, err := repo.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Action != amqp.ActionDelete || !events[0].OccurredAt.Equal(occurred.Add(time.Minute)) {
		t.Errorf("newest event = %+v", events[0])
	}
}

type failingEventStore struct{}

func (failingEventStore) RecordEvent(context.Context, sqlstore.Event) (int64, error) {
	return 0, errors.New("disk full")
}

func TestEventRecorder_PropagatesStoreErrors(t *testing.T) {
	rec := NewEventRecorder(failingEventStore{}, quietLogger())
	err := rec.Handle(context.Background(), amqp.NewLedgerChangeMessage("tax", "u1", "2024", amqp.ActionUpsert))
	if err == nil {
		t.Error("expected error so the delivery is requeued")
	}
}
