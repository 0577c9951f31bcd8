package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
)

var (
	flagBackend string
	flagDataDir string
	flagUser    string
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "fintrackctl",
	Short:         "Inspect and maintain fintrack ledgers",
	Long:          "Read ledgers, export them, run retention and browse recorded ledger events.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagBackend, "backend", "b", "", "Override DATA_BACKEND")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "Override DATA_DIR")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "User id")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", time.Minute, "Deadline for the whole command")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if flagBackend != "" {
		cfg.DataBackend = flagBackend
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp opens the ledger stack for the duration of fn. Nothing is
// published from the command line.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentCLI,
		Output:    cmd.ErrOrStderr(),
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	app, err := cli.Bootstrap(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func requireUser() error {
	if flagUser == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}
