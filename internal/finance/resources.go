// Package finance defines the ledger resources tracked by the application
// and the totals derived from their records.
package finance

import (
	"regexp"
	"time"

	"fintrack/internal/bucket"
	"fintrack/internal/core"
)

// Resource names.
const (
	Income     = "income"
	Expense    = "expense"
	Savings    = "savings"
	Investment = "investment"
	Salary     = "salary"
	Tax        = "tax"
)

// DefaultMonthLimit is the number of months retained per month-keyed ledger.
const DefaultMonthLimit = 15

var (
	monthKeyRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	yearKeyRe  = regexp.MustCompile(`^\d{4}$`)
)

// Limits holds the retention limits applied to month and year ledgers.
// Zero or negative disables the limit.
type Limits struct {
	Month int
	Year  int
}

func DefaultLimits() Limits {
	return Limits{Month: DefaultMonthLimit}
}

// Resources returns the definitions of every tracked resource.
func Resources(lim Limits) []bucket.Resource {
	return []bucket.Resource{
		{Name: Income, KeyField: core.FieldMonth, Limit: lim.Month},
		{Name: Expense, KeyField: core.FieldMonth, Limit: lim.Month},
		{Name: Savings, KeyField: core.FieldMonth, Limit: lim.Month},
		{Name: Investment, KeyField: core.FieldMonth, Limit: lim.Month},
		{Name: Salary, KeyField: core.FieldMonth, Limit: lim.Month, Defaults: salaryDefaults},
		{Name: Tax, KeyField: core.FieldYear, Limit: lim.Year, Defaults: taxDefaults},
	}
}

// Registry builds the bucket registry for every tracked resource.
func Registry(lim Limits) *bucket.Registry {
	return bucket.NewRegistry(Resources(lim)...)
}

func salaryDefaults() core.Record {
	return core.Record{
		"gross": 0.0,
		"bonus": 0.0,
		"deductions": map[string]any{
			"pension":         0.0,
			"healthInsurance": 0.0,
			"incomeTax":       0.0,
		},
	}
}

func taxDefaults() core.Record {
	return core.Record{
		"taxableIncome": 0.0,
		"paid":          0.0,
		"due":           0.0,
	}
}

// MonthKey formats t as a month ledger key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// YearKey formats t as a year ledger key.
func YearKey(t time.Time) string {
	return t.Format("2006")
}

// ValidKey reports whether key has the shape expected by the resource's
// key field.
func ValidKey(res bucket.Resource, key string) bool {
	switch res.KeyField {
	case core.FieldMonth:
		return monthKeyRe.MatchString(key)
	case core.FieldYear:
		return yearKeyRe.MatchString(key)
	}
	return key != ""
}

// CurrentKey returns the key for "now" for the given resource.
func CurrentKey(res bucket.Resource, now time.Time) string {
	if res.KeyField == core.FieldYear {
		return YearKey(now)
	}
	return MonthKey(now)
}
