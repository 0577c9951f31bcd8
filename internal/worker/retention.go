package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/log"
)

// Sweeper re-applies retention to every stored ledger.
type Sweeper interface {
	Sweep(ctx context.Context) (map[string]int, error)
}

// RetentionSweeper runs a Sweeper on a cron schedule.
type RetentionSweeper struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewRetentionSweeper(sweeper Sweeper, schedule string, logger *slog.Logger) *RetentionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionSweeper{
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  10 * time.Minute,
		logger:   logger,
	}
}

// RunOnce sweeps every resource. Overlapping runs are skipped.
func (r *RetentionSweeper) RunOnce(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "Retention sweep already running, skipping")
		return nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	swept, err := r.sweeper.Sweep(ctx)
	if err != nil {
		errorType := log.ErrorTypeDatabase
		if errors.Is(err, context.DeadlineExceeded) {
			errorType = log.ErrorTypeTimeout
		}
		r.logger.ErrorContext(ctx, "Retention sweep failed",
			log.FieldOperation, log.OpSweep,
			log.FieldErrorType, errorType,
			log.FieldError, err,
			"swept", swept)
		return err
	}

	total := 0
	for _, n := range swept {
		total += n
	}
	r.logger.InfoContext(ctx, "Retention sweep completed",
		log.FieldOperation, log.OpSweep,
		"ledgers", total,
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Run sweeps once, then on every schedule tick until ctx is cancelled.
func (r *RetentionSweeper) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		_ = r.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("add retention job %q: %w", r.schedule, err)
	}

	_ = r.RunOnce(ctx)

	c.Start()
	r.logger.InfoContext(ctx, "Retention sweeper scheduled", "schedule", r.schedule)

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}
