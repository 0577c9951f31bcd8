package main

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"fintrack/internal/log"
	"fintrack/internal/storage/sqlstore"
)

var flagLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the most recent recorded ledger changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentCLI, Output: cmd.ErrOrStderr()})
		repo, err := sqlstore.NewSQLiteRepository(cfg.SQLiteDBPath, logger.Slog())
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer repo.Close()

		var events []sqlstore.Event
		if flagUser != "" {
			events, err = repo.RecentEventsForUser(cmd.Context(), flagUser, flagLimit)
		} else {
			events, err = repo.RecentEvents(cmd.Context(), flagLimit)
		}
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"ID", "Occurred", "Resource", "User", "Key", "Action"})
		for _, e := range events {
			table.Append([]string{
				fmt.Sprint(e.ID),
				e.OccurredAt.Local().Format(time.DateTime),
				e.Resource, e.UserID, e.Key, e.Action,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&flagLimit, "limit", "l", 20, "Number of events to show")
	rootCmd.AddCommand(eventsCmd)
}
