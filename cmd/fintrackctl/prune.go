package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Re-apply retention limits to every stored ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			swept, err := app.Ledgers.Sweep(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(swept))
			for name := range swept {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d ledgers\n", name, swept[name])
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
