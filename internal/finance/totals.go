package finance

import (
	"sort"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Summary is a set of named totals derived from one record.
type Summary map[string]decimal.Decimal

// Float returns the named total as float64 for rendering.
func (s Summary) Float(name string) float64 {
	return s[name].InexactFloat64()
}

// Names returns the total names in sorted order.
func (s Summary) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var reserved = map[string]bool{
	core.FieldID:        true,
	core.FieldMonth:     true,
	core.FieldYear:      true,
	core.FieldCreatedAt: true,
}

// Totals computes the derived totals for a record of the given resource.
// It reads only persisted fields and holds no state between calls.
func Totals(resource string, rec core.Record) Summary {
	switch resource {
	case Salary:
		gross := number(rec["gross"])
		bonus := number(rec["bonus"])
		deductions := sumLeaves(rec["deductions"])
		return Summary{
			"gross":      round(gross),
			"deductions": round(deductions),
			"net":        round(gross.Add(bonus).Sub(deductions)),
		}
	case Tax:
		due := number(rec["due"])
		paid := number(rec["paid"])
		return Summary{
			"due":     round(due),
			"paid":    round(paid),
			"balance": round(due.Sub(paid)),
		}
	default:
		total := decimal.Zero
		for k, v := range rec {
			if reserved[k] {
				continue
			}
			total = total.Add(sumLeaves(v))
		}
		return Summary{"total": round(total)}
	}
}

// sumLeaves adds every numeric value reachable from v, descending into
// nested line-item maps and lists.
func sumLeaves(v any) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case map[string]any:
		sum := decimal.Zero
		for _, e := range t {
			sum = sum.Add(sumLeaves(e))
		}
		return sum
	case core.Record:
		return sumLeaves(map[string]any(t))
	case []any:
		sum := decimal.Zero
		for _, e := range t {
			sum = sum.Add(sumLeaves(e))
		}
		return sum
	}
	return decimal.Zero
}

func number(v any) decimal.Decimal {
	if f, ok := v.(float64); ok {
		return decimal.NewFromFloat(f)
	}
	return decimal.Zero
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
