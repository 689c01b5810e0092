package route

import (
	"fmt"
	"sort"
)

// Table resolves request paths to routes. Longest prefix wins; equal prefixes are
// rejected by NewTable, so resolution never depends on registration order.
type Table struct {
	byLength []Route
	ordered  []Route
}

func NewTable(routes []Route) (*Table, error) {
	seen := make(map[string]string, len(routes))
	ordered := make([]Route, 0, len(routes))

	for _, r := range routes {
		prefix, err := normalizePrefix(r.Prefix)
		if err != nil {
			return nil, err
		}
		r.Prefix = prefix

		if r.Target == nil || (r.Target.Scheme != "http" && r.Target.Scheme != "https") || r.Target.Host == "" {
			return nil, fmt.Errorf("%w: route %q", ErrInvalidTarget, prefix)
		}
		if other, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("%w: %q used by %q and %q", ErrDuplicatePrefix, prefix, other, r.Name)
		}
		seen[prefix] = r.Name

		if r.Name == "" {
			r.Name = prefix
		}
		if r.Rewrite == nil {
			r.Rewrite = StripPrefix(prefix)
		}
		ordered = append(ordered, r)
	}

	byLength := make([]Route, len(ordered))
	copy(byLength, ordered)
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i].Prefix) > len(byLength[j].Prefix)
	})

	return &Table{byLength: byLength, ordered: ordered}, nil
}

// Resolve returns the most specific route whose prefix matches path.
func (t *Table) Resolve(path string) (Route, bool) {
	for _, r := range t.byLength {
		if r.Matches(path) {
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns the routes in configuration order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Prefixes returns the configured prefixes in configuration order.
func (t *Table) Prefixes() []string {
	out := make([]string, len(t.ordered))
	for i, r := range t.ordered {
		out[i] = r.Prefix
	}
	return out
}
