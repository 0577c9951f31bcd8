package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Reserved field names shared by every resource.
const (
	FieldID        = "id"
	FieldMonth     = "month"
	FieldYear      = "year"
	FieldCreatedAt = "createdAt"
)

type (
	// Record is one stored entry's field set. Values are restricted to
	// float64, string, bool, map[string]any and []any (see Normalize).
	Record map[string]any

	// Ledger maps an entry key (month "YYYY-MM" or year "YYYY") to its record.
	Ledger map[string]Record

	// Bucket maps a user id to that user's ledger.
	Bucket map[string]Ledger
)

var ErrUnsupportedValue = errors.New("unsupported value type")

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the field as a string, or "" when absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Number returns the field as a float64 and whether it was numeric.
func (r Record) Number(field string) (float64, bool) {
	f, ok := r[field].(float64)
	return f, ok
}

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, rec := range l {
		out[k] = rec.Clone()
	}
	return out
}

// Keys returns the ledger keys in descending order.
func (l Ledger) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

// Merge applies patch on top of a copy of existing and then deletes every
// field listed in remove. Removal wins over a patch value of the same name.
func Merge(existing, patch Record, remove []string) Record {
	out := existing.Clone()
	if out == nil {
		out = make(Record, len(patch))
	}
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	for _, k := range remove {
		delete(out, k)
	}
	return out
}

// Normalize coerces a decoded value into the record value union.
// Integers become float64, json.Number is parsed, and any named map or
// slice type whose elements normalize is accepted.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64, string, bool:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrUnsupportedValue, t.String())
		}
		return f, nil
	case map[string]any:
		return normalizeMap(t)
	case Record:
		return normalizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return normalizeReflect(v)
}

// NormalizeRecord normalizes every field of m.
func NormalizeRecord(m map[string]any) (Record, error) {
	if m == nil {
		return Record{}, nil
	}
	out, err := normalizeMap(m)
	if err != nil {
		return nil, err
	}
	return Record(out), nil
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
