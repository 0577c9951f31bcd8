package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/storage/sqlstore"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)

	logger.Info("Starting fintrack-worker", log.FieldOperation, log.OpStartup)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := cli.Bootstrap(initCtx, cfg, logger, false)
	initCancel()
	if err != nil {
		logger.LogError(initCtx, "Failed to initialize ledger stack", err, log.OpStartup,
			log.NewFields().WithErrorType(log.ErrorTypeDatabase))
		os.Exit(1)
	}
	defer app.Close()

	var (
		events   *sqlstore.SQLiteRepository
		consumer *amqp.Client
	)
	if cfg.AMQPURL != "" {
		events, err = sqlstore.NewSQLiteRepository(cfg.SQLiteDBPath, logger.WithComponent(log.ComponentStorage).Slog())
		if err != nil {
			logger.Error("Failed to initialize event store", log.FieldError, err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer events.Close()

		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			logger.WithComponent(log.ComponentAMQP).Slog())
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer consumer.Close()
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided, ledger events will not be recorded")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)

	sweeper := worker.NewRetentionSweeper(app.Ledgers, cfg.RetentionSchedule,
		logger.WithComponent(log.ComponentRetention).Slog())
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if consumer != nil {
		recorder := worker.NewEventRecorder(events, logger.WithComponent(log.ComponentWorker).Slog())
		g.Go(func() error {
			return consumer.ConsumeLedgerChanges(gctx, recorder.Handle)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
