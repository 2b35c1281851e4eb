// Package planner compiles a requested-field declaration into the minimal,
// dependency-ordered sequence of nodes needed to resolve it.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/fieldplan/internal/ctxlog"
	"github.com/hanpama/fieldplan/internal/graph"
	"github.com/hanpama/fieldplan/internal/selector"
)

// ErrInternalField reports a toplevel request for an internal field.
var ErrInternalField = errors.New("internal field")

// PlanNode is one node of a plan together with the edges that evaluated
// active for this request and the selectors delivered to it.
type PlanNode struct {
	Node *graph.Node
	// ActiveDeps lists the targets of the node's active edges in declaration order.
	ActiveDeps []string
	// Selectors is the concatenation, in first-discovered order, of the tokens
	// delivered by the request and by every active incoming edge. Unfiltered.
	Selectors []selector.Token
}

// Name returns the node's field name.
func (pn *PlanNode) Name() string { return pn.Node.Name }

// Filtered returns Selectors without the nil/true/false markers.
func (pn *PlanNode) Filtered() []selector.Token { return selector.Strip(pn.Selectors) }

// Plan is the per-request execution plan. It is not modified after Build.
type Plan struct {
	// Nodes is the load order: primary first, dependencies before dependents.
	Nodes []*PlanNode
	// Toplevel is the normalized requested set, as asked by the caller.
	Toplevel selector.Set
}

// Names returns the load order as field names.
func (p *Plan) Names() []string {
	out := make([]string, len(p.Nodes))
	for i, pn := range p.Nodes {
		out[i] = pn.Node.Name
	}
	return out
}

// Lookup returns the plan node for name.
func (p *Plan) Lookup(name string) (*PlanNode, bool) {
	for _, pn := range p.Nodes {
		if pn.Node.Name == name {
			return pn, true
		}
	}
	return nil, false
}

// String renders the plan one node per line.
func (p *Plan) String() string {
	var b strings.Builder
	for i, pn := range p.Nodes {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, pn.Node.Name, strings.ToLower(pn.Node.Kind.String()))
		if p.Toplevel.Has(pn.Node.Name) {
			b.WriteString(" *")
		}
		if len(pn.ActiveDeps) > 0 {
			fmt.Fprintf(&b, " <- %s", strings.Join(pn.ActiveDeps, ", "))
		}
		if f := pn.Filtered(); len(f) > 0 {
			fmt.Fprintf(&b, " %v", f)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Options configures Build.
type Options struct {
	// Internal allows internal-visibility fields in the toplevel request.
	Internal bool
}

// Option customizes Options.
type Option func(*Options)

// WithInternal permits requesting internal fields directly.
func WithInternal() Option { return func(o *Options) { o.Internal = true } }

// Build computes the plan for requested against sg.
func Build(ctx context.Context, sg *graph.Sorted, requested any, opts ...Option) (*Plan, error) {
	var o Options
	for _, f := range opts {
		f(&o)
	}

	top, err := selector.Normalize(requested)
	if err != nil {
		return nil, err
	}

	required := make(map[string]bool, sg.Len())
	incoming := make(map[string][]selector.Token, sg.Len())
	required[sg.Primary().Name] = true
	for _, e := range top {
		n, ok := sg.Lookup(e.Field)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %s", graph.ErrDanglingReference, e.Field)
		}
		if n.Visibility == graph.Internal && !o.Internal {
			return nil, fmt.Errorf("%w: %s cannot be requested", ErrInternalField, e.Field)
		}
		required[e.Field] = true
		incoming[e.Field] = append(incoming[e.Field], e.Tokens...)
	}

	// Dependents come after their dependencies in sg, so walking backwards
	// visits every dependent of a node before the node itself and each
	// accumulator is complete when the walk reaches its node. Edge
	// contributions arrive in descending load order and are replayed in
	// ascending order to keep first-discovered order.
	active := make(map[string][]string)
	delivered := make(map[string][][]selector.Token)
	for i := sg.Len() - 1; i >= 0; i-- {
		n := sg.At(i)
		if !required[n.Name] {
			continue
		}
		contribs := delivered[n.Name]
		for j := len(contribs) - 1; j >= 0; j-- {
			incoming[n.Name] = append(incoming[n.Name], contribs[j]...)
		}
		for _, e := range n.Edges {
			out, ok := selector.Evaluate(e.Spec, incoming[n.Name])
			if !ok {
				continue
			}
			active[n.Name] = append(active[n.Name], e.Target)
			required[e.Target] = true
			delivered[e.Target] = append(delivered[e.Target], out)
		}
	}

	plan := &Plan{Toplevel: top}
	for _, n := range sg.Nodes() {
		if !required[n.Name] {
			continue
		}
		plan.Nodes = append(plan.Nodes, &PlanNode{
			Node:       n,
			ActiveDeps: active[n.Name],
			Selectors:  incoming[n.Name],
		})
	}

	ctxlog.FromContext(ctx).Debug("planner: plan built",
		"requested", strings.Join(top.Fields(), ","),
		"order", strings.Join(plan.Names(), ","))
	return plan, nil
}
