package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/finance"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
)

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := cli.Bootstrap(initCtx, cfg, logger, true)
	initCancel()
	if err != nil {
		logger.LogError(initCtx, "Failed to initialize ledger stack", err, log.OpStartup,
			log.NewFields().WithErrorType(log.ErrorTypeDatabase))
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, app.Ledgers,
		apphttp.WithLogger(logger.WithComponent(log.ComponentHTTP)),
		apphttp.WithRequestTimeout(cfg.RequestTimeout),
		apphttp.WithReadinessCheck(cfg.DataBackend, func(ctx context.Context) error {
			_, err := app.Backend.Backend.ListUsers(ctx, finance.Income)
			return err
		}),
	)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.LogError(shutdownCtx, "Server shutdown error", err, log.OpShutdown, nil)
		}
		if err := app.Close(); err != nil {
			logger.LogError(shutdownCtx, "Failed to release resources", err, log.OpShutdown, nil)
		}
	})

	logger.Info("Starting fintrack server", log.FieldOperation, log.OpStartup, "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
