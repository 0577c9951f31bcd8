package core

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		existing Record
		patch    Record
		remove   []string
		want     Record
	}{
		{
			name:     "shallow merge keeps untouched fields",
			existing: Record{"house": 500.0, "internet": 300.0},
			patch:    Record{"internet": 350.0, "water": 100.0},
			want:     Record{"house": 500.0, "internet": 350.0, "water": 100.0},
		},
		{
			name:     "removal drops field",
			existing: Record{"a": 1.0, "b": 2.0, "c": 3.0},
			remove:   []string{"b"},
			want:     Record{"a": 1.0, "c": 3.0},
		},
		{
			name:     "removal wins over patch",
			existing: Record{"a": 1.0, "b": 2.0, "c": 3.0},
			patch:    Record{"b": 9.0},
			remove:   []string{"b"},
			want:     Record{"a": 1.0, "c": 3.0},
		},
		{
			name:  "nil existing",
			patch: Record{"x": "y"},
			want:  Record{"x": "y"},
		},
		{
			name:     "nested map replaced not merged",
			existing: Record{"items": map[string]any{"a": 1.0, "b": 2.0}},
			patch:    Record{"items": map[string]any{"c": 3.0}},
			want:     Record{"items": map[string]any{"c": 3.0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.existing, tt.patch, tt.remove)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	existing := Record{"items": map[string]any{"a": 1.0}}
	patch := Record{"list": []any{1.0}}
	got := Merge(existing, patch, nil)

	got["items"].(map[string]any)["a"] = 99.0
	got["list"].([]any)[0] = 99.0

	if existing["items"].(map[string]any)["a"] != 1.0 {
		t.Fatalf("existing record was mutated through merge result")
	}
	if patch["list"].([]any)[0] != 1.0 {
		t.Fatalf("patch was mutated through merge result")
	}
}

func TestLedgerCloneAndKeys(t *testing.T) {
	l := Ledger{
		"2024-01": {"month": "2024-01"},
		"2024-03": {"month": "2024-03"},
		"2023-12": {"month": "2023-12"},
	}
	c := l.Clone()
	c["2024-01"]["month"] = "changed"
	if l["2024-01"]["month"] != "2024-01" {
		t.Fatalf("clone aliases original")
	}

	want := []string{"2024-03", "2024-01", "2023-12"}
	if got := l.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
}

func TestNormalizeRecord(t *testing.T) {
	type namedMap map[string]any

	in := map[string]any{
		"i":      int64(5),
		"i32":    int32(7),
		"n":      json.Number("1.5"),
		"s":      "x",
		"b":      true,
		"nested": namedMap{"k": 3},
		"list":   []any{1, "two"},
		"nil":    nil,
	}
	got, err := NormalizeRecord(in)
	if err != nil {
		t.Fatalf("NormalizeRecord: %v", err)
	}
	want := Record{
		"i":      5.0,
		"i32":    7.0,
		"n":      1.5,
		"s":      "x",
		"b":      true,
		"nested": map[string]any{"k": 3.0},
		"list":   []any{1.0, "two"},
		"nil":    nil,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeRecord() = %#v, want %#v", got, want)
	}
}

func TestNormalizeRejectsUnsupported(t *testing.T) {
	_, err := NormalizeRecord(map[string]any{"ch": make(chan int)})
	if !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestRecordGetters(t *testing.T) {
	r := Record{"month": "2024-01", "amount": 12.5, "flag": true}
	if r.String("month") != "2024-01" {
		t.Errorf("String(month) = %q", r.String("month"))
	}
	if r.String("amount") != "" {
		t.Errorf("String on number should be empty")
	}
	if v, ok := r.Number("amount"); !ok || v != 12.5 {
		t.Errorf("Number(amount) = %v, %v", v, ok)
	}
	if _, ok := r.Number("flag"); ok {
		t.Errorf("Number on bool should fail")
	}
}
