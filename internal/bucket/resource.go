package bucket

import (
	"errors"
	"fmt"
	"sort"

	"fintrack/internal/core"
)

// ErrUnknownResource is a configuration error: the caller named a resource
// that was never registered.
var ErrUnknownResource = errors.New("unknown resource")

// Resource describes one ledger kind (income, expense, ...).
type Resource struct {
	Name string
	// KeyField is the record field that mirrors the ledger key ("month" or "year").
	KeyField string
	// Limit caps the number of keyed entries retained; <= 0 means unbounded.
	Limit int
	// Defaults returns the initial field set for a new record, may be nil.
	Defaults func() core.Record
}

// Bounded reports whether the resource enforces a retention limit.
func (r Resource) Bounded() bool {
	return r.Limit > 0
}

// Retention returns the Limit applied after every write.
func (r Resource) Retention() Limit {
	return Limit{Max: r.Limit, Selector: KeySelector(r.KeyField)}
}

// Registry indexes resources by name.
type Registry struct {
	resources map[string]Resource
}

func NewRegistry(resources ...Resource) *Registry {
	reg := &Registry{resources: make(map[string]Resource, len(resources))}
	for _, r := range resources {
		reg.resources[r.Name] = r
	}
	return reg
}

// Lookup returns the named resource or ErrUnknownResource.
func (r *Registry) Lookup(name string) (Resource, error) {
	res, ok := r.resources[name]
	if !ok {
		return Resource{}, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return res, nil
}

// Names returns registered resource names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.resources))
	for n := range r.resources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
