package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/services"
)

var exportCmd = &cobra.Command{
	Use:   "export <resource>",
	Short: "Export a user's ledger as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			view, err := app.Ledgers.Ledger(ctx, args[0], flagUser)
			if err != nil {
				return err
			}
			return writeCSV(cmd.OutOrStdout(), view)
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

// dataFields returns the user-entered fields of an entry, sorted.
func dataFields(e services.Entry) []string {
	fields := make([]string, 0, len(e.Record))
	for k := range e.Record {
		switch k {
		case core.FieldID, core.FieldCreatedAt, core.FieldMonth, core.FieldYear:
			continue
		}
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// writeCSV writes one row per entry. Columns are the key, every data field
// seen in the ledger and the derived totals. Nested values are flattened
// with dotted names.
func writeCSV(w io.Writer, view services.LedgerView) error {
	rows := make([]map[string]string, 0, len(view.Entries))
	seen := map[string]bool{}
	var columns []string
	for _, e := range view.Entries {
		row := map[string]string{}
		for _, f := range dataFields(e) {
			flatten(row, f, e.Record[f])
		}
		for col := range row {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		rows = append(rows, row)
	}
	sort.Strings(columns)

	var totals []string
	if len(view.Entries) > 0 {
		totals = view.Entries[0].Totals.Names()
	}

	cw := csv.NewWriter(w)
	header := append([]string{"key"}, columns...)
	for _, t := range totals {
		header = append(header, "total_"+t)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, e := range view.Entries {
		rec := []string{e.Key}
		for _, c := range columns {
			rec = append(rec, rows[i][c])
		}
		for _, t := range totals {
			rec = append(rec, e.Totals[t].StringFixed(2))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func flatten(row map[string]string, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, nested := range t {
			flatten(row, prefix+"."+k, nested)
		}
	case core.Record:
		flatten(row, prefix, map[string]any(t))
	case float64:
		row[prefix] = strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		row[prefix] = ""
	default:
		row[prefix] = fmt.Sprint(t)
	}
}
