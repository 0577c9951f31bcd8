package bucket

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"fintrack/internal/core"
)

func monthLedger(from, to string) core.Ledger {
	l := core.Ledger{}
	y, m := 0, 0
	fmt.Sscanf(from, "%d-%d", &y, &m)
	for {
		key := fmt.Sprintf("%04d-%02d", y, m)
		l[key] = core.Record{"month": key}
		if key == to {
			return l
		}
		m++
		if m > 12 {
			m = 1
			y++
		}
	}
}

func sortedKeys(l core.Ledger) []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestLimitEntriesMonthRetention(t *testing.T) {
	l := monthLedger("2023-06", "2024-09")
	if len(l) != 16 {
		t.Fatalf("fixture has %d months, want 16", len(l))
	}
	l["2024-10"] = core.Record{"month": "2024-10"}

	got := LimitEntries(l, Limit{Max: 15, Selector: KeySelector("month")})

	want := sortedKeys(monthLedger("2023-07", "2024-10"))
	if keys := sortedKeys(got); !reflect.DeepEqual(keys, want) {
		t.Fatalf("retained %v, want %v", keys, want)
	}
	if _, ok := got["2023-06"]; ok {
		t.Fatalf("2023-06 should have been evicted")
	}
}

func TestLimitEntriesExemptPassthrough(t *testing.T) {
	meta := core.Record{"obj": "months", "months": map[string]any{"2024-01": true}}
	for _, max := range []int{0, 1, 15, -3} {
		t.Run(fmt.Sprintf("limit_%d", max), func(t *testing.T) {
			l := monthLedger("2024-01", "2024-06")
			l["obj"] = meta
			got := l
			for i := 0; i < 3; i++ {
				got = LimitEntries(got, Limit{Max: max, Selector: KeySelector("month")})
			}
			if !reflect.DeepEqual(got["obj"], meta) {
				t.Fatalf("exempt entry lost or changed: %v", got["obj"])
			}
		})
	}
}

func TestLimitEntriesNonStringSelectorIsExempt(t *testing.T) {
	l := core.Ledger{
		"a": {"month": 202401.0},
		"b": {"month": ""},
		"c": {"month": "2024-01"},
		"d": {},
	}
	got := LimitEntries(l, Limit{Max: 0, Selector: KeySelector("month")})
	want := []string{"a", "b", "d"}
	if keys := sortedKeys(got); !reflect.DeepEqual(keys, want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
}

func TestLimitEntriesTieBreakIsDeterministic(t *testing.T) {
	l := core.Ledger{
		"x": {"month": "2024-05"},
		"y": {"month": "2024-05"},
		"z": {"month": "2024-01"},
	}
	for i := 0; i < 20; i++ {
		got := LimitEntries(l, Limit{Max: 1, Selector: KeySelector("month")})
		if _, ok := got["y"]; !ok || len(got) != 1 {
			t.Fatalf("expected only y to survive, got %v", sortedKeys(got))
		}
	}
}

func TestLimitEntriesDoesNotMutateInput(t *testing.T) {
	l := monthLedger("2024-01", "2024-06")
	_ = LimitEntries(l, Limit{Max: 2, Selector: KeySelector("month")})
	if len(l) != 6 {
		t.Fatalf("input ledger mutated, len=%d", len(l))
	}
}

func randomLedger(r *rand.Rand) core.Ledger {
	l := core.Ledger{}
	n := r.Intn(30)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("%04d-%02d", 2015+r.Intn(10), 1+r.Intn(12))
		l[key] = core.Record{"month": key}
	}
	for i := 0; i < r.Intn(3); i++ {
		l[fmt.Sprintf("meta%d", i)] = core.Record{"obj": "meta"}
	}
	return l
}

func TestLimitEntriesProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	sel := KeySelector("month")

	for i := 0; i < 200; i++ {
		l := randomLedger(r)
		max := r.Intn(20)
		lim := Limit{Max: max, Selector: sel}
		got := LimitEntries(l, lim)

		var keyed, exempt int
		retained := map[string]bool{}
		for k, rec := range got {
			if s := sel(k, rec); s != "" {
				keyed++
				retained[s] = true
			} else {
				exempt++
			}
		}
		if keyed > max {
			t.Fatalf("case %d: %d keyed entries retained, limit %d", i, keyed, max)
		}

		var wantExempt int
		for k, rec := range l {
			if sel(k, rec) == "" {
				wantExempt++
			}
		}
		if exempt != wantExempt {
			t.Fatalf("case %d: exempt entries %d, want %d", i, exempt, wantExempt)
		}

		for k, rec := range l {
			s := sel(k, rec)
			if s == "" || retained[s] {
				continue
			}
			for kept := range retained {
				if kept < s {
					t.Fatalf("case %d: evicted %s while keeping smaller %s", i, s, kept)
				}
			}
		}

		again := LimitEntries(got, lim)
		if !reflect.DeepEqual(again, got) {
			t.Fatalf("case %d: LimitEntries is not idempotent", i)
		}
	}
}
