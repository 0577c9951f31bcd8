package main

import (
	"bytes"
	"strings"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/finance"
	"fintrack/internal/services"
)

func salaryView() services.LedgerView {
	rec := func(month string, gross float64) core.Record {
		return core.Record{
			"id": "x", "createdAt": "2024-01-01T00:00:00Z", "month": month,
			"gross":      gross,
			"deductions": map[string]any{"pension": 100.0},
		}
	}
	newer, older := rec("2024-02", 2000), rec("2024-01", 1500.5)
	return services.LedgerView{
		Resource: finance.Salary,
		UserID:   "u1",
		Entries: []services.Entry{
			{Key: "2024-02", Record: newer, Totals: finance.Totals(finance.Salary, newer)},
			{Key: "2024-01", Record: older, Totals: finance.Totals(finance.Salary, older)},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := writeCSV(&buf, salaryView()); err != nil {
		t.Fatalf("writeCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"key,deductions.pension,gross,total_deductions,total_gross,total_net",
		"2024-02,100,2000,100.00,2000.00,1900.00",
		"2024-01,100,1500.5,100.00,1500.50,1400.50",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestWriteCSVEmptyLedger(t *testing.T) {
	var buf bytes.Buffer
	if err := writeCSV(&buf, services.LedgerView{Resource: finance.Expense, UserID: "u1"}); err != nil {
		t.Fatalf("writeCSV: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "key" {
		t.Errorf("header = %q", got)
	}
}

func TestRenderLedger(t *testing.T) {
	var buf bytes.Buffer
	renderLedger(&buf, salaryView())
	out := buf.String()
	for _, want := range []string{"2024-02", "1900.00", "deductions, gross"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	renderLedger(&buf, services.LedgerView{Resource: finance.Tax, UserID: "u9"})
	if !strings.Contains(buf.String(), "No tax entries for u9") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestDataFieldsSkipsBookkeeping(t *testing.T) {
	e := services.Entry{Record: core.Record{"id": "1", "year": "2024", "createdAt": "x", "due": 1.0}}
	if got := dataFields(e); len(got) != 1 || got[0] != "due" {
		t.Errorf("dataFields = %v", got)
	}
}
