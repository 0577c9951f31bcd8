package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/services"
)

var flagJSON bool

var showCmd = &cobra.Command{
	Use:   "show <resource>",
	Short: "Show a user's ledger, newest entry first",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List the tracked ledgers and their retention",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(_ context.Context, app *cli.App) error {
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Resource", "Key", "Retained"})
			for _, name := range app.Ledgers.Resources() {
				res, err := app.Ledgers.Resource(name)
				if err != nil {
					return err
				}
				retained := "unbounded"
				if res.Bounded() {
					retained = fmt.Sprint(res.Limit)
				}
				table.Append([]string{res.Name, res.KeyField, retained})
			}
			table.Render()
			return nil
		})
	},
}

func init() {
	showCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the ledger as JSON")
	rootCmd.AddCommand(showCmd, resourcesCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, app *cli.App) error {
		view, err := app.Ledgers.Ledger(ctx, args[0], flagUser)
		if err != nil {
			return err
		}
		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		renderLedger(cmd.OutOrStdout(), view)
		return nil
	})
}

// renderLedger prints one row per entry with its totals.
func renderLedger(w io.Writer, view services.LedgerView) {
	if len(view.Entries) == 0 {
		fmt.Fprintf(w, "No %s entries for %s.\n", view.Resource, view.UserID)
		return
	}

	names := view.Entries[0].Totals.Names()
	header := append([]string{"Key"}, names...)
	header = append(header, "Fields")

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	for _, e := range view.Entries {
		row := []string{e.Key}
		for _, n := range names {
			row = append(row, e.Totals[n].StringFixed(2))
		}
		row = append(row, strings.Join(dataFields(e), ", "))
		table.Append(row)
	}
	table.Render()
}
