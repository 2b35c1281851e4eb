package graph

import (
	"strings"

	"go.uber.org/multierr"
)

// Merge combines declaring units into a new unsealed graph. Units are given
// least specific first: a same-kind redeclaration in a later unit overrides
// the earlier one, keeping the earlier declaration position. Conflicting
// kinds for one field name are reported together.
func Merge(units ...*Graph) (*Graph, error) {
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Unit())
	}
	merged := New(strings.Join(names, "+"))

	var errs error
	for _, u := range units {
		u.mu.Lock()
		for _, name := range u.order {
			n := *u.nodes[name]
			n.Edges = append([]*Edge(nil), n.Edges...)
			errs = multierr.Append(errs, merged.put(&n))
		}
		u.mu.Unlock()
	}
	if errs != nil {
		return nil, errs
	}
	return merged, nil
}
