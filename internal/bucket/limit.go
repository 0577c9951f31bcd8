package bucket

import (
	"sort"

	"fintrack/internal/core"
)

// Selector maps a ledger entry to the string used for ordering and
// retention. An empty result exempts the entry from limiting.
type Selector func(mapKey string, rec core.Record) string

// Limit configures LimitEntries.
type Limit struct {
	Max      int
	Selector Selector
}

// KeySelector returns a Selector that reads field from the record and
// yields "" unless the value is a non-empty string.
func KeySelector(field string) Selector {
	return func(_ string, rec core.Record) string {
		return rec.String(field)
	}
}

// LimitEntries keeps at most lim.Max entries with a selector key, choosing
// the ones with the greatest selector keys. Entries without a selector key
// always pass through. Equal selector keys are ordered by map key,
// descending. The input ledger is not modified.
func LimitEntries(ledger core.Ledger, lim Limit) core.Ledger {
	max := lim.Max
	if max < 0 {
		max = 0
	}

	type keyed struct {
		mapKey   string
		selector string
	}

	out := make(core.Ledger, len(ledger))
	var entries []keyed
	for k, rec := range ledger {
		sel := ""
		if lim.Selector != nil {
			sel = lim.Selector(k, rec)
		}
		if sel == "" {
			out[k] = rec
			continue
		}
		entries = append(entries, keyed{mapKey: k, selector: sel})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].selector != entries[j].selector {
			return entries[i].selector > entries[j].selector
		}
		return entries[i].mapKey > entries[j].mapKey
	})

	if len(entries) > max {
		entries = entries[:max]
	}
	for _, e := range entries {
		out[e.mapKey] = ledger[e.mapKey]
	}
	return out
}
