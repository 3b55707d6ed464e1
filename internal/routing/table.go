// Package routing builds and queries the immutable routing table
// described by spec.md §3 and §4.F.
package routing

import (
	"sort"

	"github.com/deislabs/wagi-go/internal/handler"
)

// Table is an ordered, immutable sequence of handler.Spec. Order is:
// exact routes before wildcard routes; within each class, longer
// prefixes before shorter; within equal length, insertion order.
// Construction is the only mutation point; Match never mutates.
type Table struct {
	entries []*handler.Spec
}

// Build stable-sorts specs into routing order and freezes them into a
// Table. The input slice is not mutated; Build copies before sorting.
func Build(specs []*handler.Spec) *Table {
	ordered := make([]*handler.Spec, len(specs))
	copy(ordered, specs)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if (a.Pattern.Kind == handler.Exact) != (b.Pattern.Kind == handler.Exact) {
			return a.Pattern.Kind == handler.Exact
		}
		return len(a.Pattern.Prefix) > len(b.Pattern.Prefix)
	})

	return &Table{entries: ordered}
}

// Match scans entries top-to-bottom and returns the first whose pattern
// matches requestPath, along with the wildcard tail (empty for exact
// matches). The second return value reports whether a match was found.
func (t *Table) Match(requestPath string) (*handler.Spec, string, bool) {
	for _, e := range t.entries {
		if ok, tail := e.Pattern.Match(requestPath); ok {
			return e, tail, true
		}
	}
	return nil, "", false
}

// Len returns the number of routing entries, used by the /healthz
// operational surface.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns the ordered entries. Callers must not mutate the
// returned slice's Spec pointers' routing-relevant fields; it is shared
// with the live table.
func (t *Table) Entries() []*handler.Spec {
	return t.entries
}
