// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/fintrack, cmd/fintrack-worker, and cmd/fintrackctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/bucket"
	"fintrack/internal/config"
	"fintrack/internal/finance"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// SetupLogger initializes structured logging at the given level.
// Returns the configured logger and sets it as the default logger.
func SetupLogger(level, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.LogError(context.Background(), "Configuration validation failed", err, log.OpStartup,
			log.NewFields().WithErrorType(log.ErrorTypeConfiguration))
		os.Exit(1)
	}
	return cfg
}

// App bundles the ledger stack shared by the commands.
type App struct {
	Config  *config.Config
	Backend *backend.BackendResult
	Store   *bucket.Store
	Ledgers *services.LedgerService
	AMQP    *amqp.Client
}

// Bootstrap opens the configured backend and builds the ledger service.
// The AMQP publisher is attached only when withPublisher is set and
// AMQP_URL is configured.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger, withPublisher bool) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	limits := finance.Limits{Month: cfg.MonthLimit, Year: cfg.YearLimit}
	for _, res := range finance.Resources(limits) {
		bcfg.Resources = append(bcfg.Resources, res.Name)
	}

	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}

	app := &App{Config: cfg, Backend: result}
	app.Store = bucket.NewStore(result.Backend, finance.Registry(limits), bucket.WithLogger(logger.WithComponent(log.ComponentBucket).Slog()))

	var publisher services.Publisher
	if withPublisher && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			logger.WithComponent(log.ComponentAMQP).Slog())
		if err != nil {
			// Changes are still stored; only the notifications are lost.
			logger.Warn("AMQP unavailable, ledger changes will not be published",
				log.FieldErrorType, log.ErrorTypeNetwork, log.FieldError, err)
		} else {
			app.AMQP = client
			publisher = client
		}
	}

	app.Ledgers = services.NewLedgerService(app.Store, publisher, logger.WithComponent(log.ComponentLedger).Slog())
	logger.Info("Ledger stack initialized",
		log.FieldBackend, string(bcfg.Type),
		"month_limit", limits.Month,
		"year_limit", limits.Year,
		"publisher", publisher != nil)
	return app, nil
}

// Close releases the publisher and the backend.
func (a *App) Close() error {
	var errs []error
	if a.Ledgers != nil {
		if err := a.Ledgers.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown,
				log.FieldErrorType, log.ErrorTypeTimeout)
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
