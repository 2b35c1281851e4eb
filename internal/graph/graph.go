package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/hanpama/fieldplan/internal/record"
	"github.com/hanpama/fieldplan/internal/selector"
)

// Kind classifies how a field is resolved.
type Kind int

const (
	// Primary enumerates the base record set.
	Primary Kind = iota + 1
	// Loaded is resolved by one batch call across all live records.
	Loaded
	// Computed is derived per record from already resolved fields.
	Computed
)

func (k Kind) String() string {
	switch k {
	case Primary:
		return "Primary"
	case Loaded:
		return "Loaded"
	case Computed:
		return "Computed"
	default:
		return "Unknown"
	}
}

// Visibility controls whether a field may be requested by outside callers.
type Visibility int

const (
	Public Visibility = iota
	// Internal fields can only be pulled in as dependencies of other fields.
	Internal
)

func (v Visibility) String() string {
	if v == Internal {
		return "internal"
	}
	return "public"
}

// Enumerator returns the primary payload of every record in the batch.
// selectors have the nil/true/false markers stripped.
type Enumerator func(ctx context.Context, selectors []selector.Token, options map[string]any) ([]any, error)

// KeyFunc derives the batch key of one record for a Loaded field. Keys must
// be comparable.
type KeyFunc func(ctx context.Context, r *record.Record) (any, error)

// Loader resolves a Loaded field for every key in one call. A key missing from
// the result leaves that record's field not loaded.
type Loader func(ctx context.Context, keys []any, selectors []selector.Token, options map[string]any) (map[any]any, error)

// ComputeFunc derives a Computed field for one record.
type ComputeFunc func(ctx context.Context, r *record.Record) (any, error)

// Edge is a dependency on Target carrying a selector token spec.
type Edge struct {
	Target string
	Spec   []selector.Token
}

// Node is one declared field.
type Node struct {
	Name       string
	Kind       Kind
	Visibility Visibility
	// Unit names the declaring graph.
	Unit  string
	Edges []*Edge

	Enumerate Enumerator
	Key       KeyFunc
	Load      Loader
	Compute   ComputeFunc
}

// Edge returns the edge to target, if declared.
func (n *Node) Edge(target string) (*Edge, bool) {
	for _, e := range n.Edges {
		if e.Target == target {
			return e, true
		}
	}
	return nil, false
}

// NodeOption customizes a node at registration.
type NodeOption func(*Node)

// WithVisibility sets the node's visibility.
func WithVisibility(v Visibility) NodeOption { return func(n *Node) { n.Visibility = v } }

// Graph is a mutable registry of field nodes. It becomes read-only once
// sealed.
type Graph struct {
	unit string

	mu     sync.Mutex
	nodes  map[string]*Node
	order  []string
	sorted *Sorted
}

// New creates an empty graph for the declaring unit.
func New(unit string) *Graph {
	return &Graph{unit: unit, nodes: make(map[string]*Node)}
}

// Unit returns the declaring unit name.
func (g *Graph) Unit() string { return g.unit }

// AddPrimary declares the primary field.
func (g *Graph) AddPrimary(name string, enumerate Enumerator, opts ...NodeOption) error {
	if enumerate == nil {
		return fmt.Errorf("%w: primary %s has no enumerator", selector.ErrInvalidDeclaration, name)
	}
	return g.add(&Node{Name: name, Kind: Primary, Enumerate: enumerate}, nil, opts)
}

// AddLoaded declares a batch-loaded field depending on deps.
func (g *Graph) AddLoaded(name string, key KeyFunc, load Loader, deps any, opts ...NodeOption) error {
	if key == nil || load == nil {
		return fmt.Errorf("%w: loaded %s needs a key function and a loader", selector.ErrInvalidDeclaration, name)
	}
	return g.add(&Node{Name: name, Kind: Loaded, Key: key, Load: load}, deps, opts)
}

// AddComputed declares a per-record computed field depending on deps.
func (g *Graph) AddComputed(name string, compute ComputeFunc, deps any, opts ...NodeOption) error {
	if compute == nil {
		return fmt.Errorf("%w: computed %s has no body", selector.ErrInvalidDeclaration, name)
	}
	return g.add(&Node{Name: name, Kind: Computed, Compute: compute}, deps, opts)
}

func (g *Graph) add(n *Node, deps any, opts []NodeOption) error {
	if n.Name == "" {
		return fmt.Errorf("%w: empty field name", selector.ErrInvalidDeclaration)
	}
	if deps != nil {
		set, err := selector.Normalize(deps)
		if err != nil {
			return fmt.Errorf("field %s: %w", n.Name, err)
		}
		for _, e := range set {
			n.Edges = append(n.Edges, &Edge{Target: e.Field, Spec: e.Tokens})
		}
	}
	n.Unit = g.unit
	for _, o := range opts {
		o(n)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sorted != nil {
		return fmt.Errorf("%w: cannot declare %s", ErrSealed, n.Name)
	}
	return g.put(n)
}

// put registers n, replacing a same-kind declaration. Callers hold g.mu.
func (g *Graph) put(n *Node) error {
	if prev, ok := g.nodes[n.Name]; ok {
		if prev.Kind != n.Kind {
			return fmt.Errorf("%w: %s declared as %s in %s and as %s in %s",
				ErrKindConflict, n.Name, prev.Kind, prev.Unit, n.Kind, n.Unit)
		}
		g.nodes[n.Name] = n
		return nil
	}
	g.nodes[n.Name] = n
	g.order = append(g.order, n.Name)
	return nil
}

// Node returns the declared node called name.
func (g *Graph) Node(name string) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[name]
	return n, ok
}

// Names returns field names in declaration order.
func (g *Graph) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.order...)
}

// Len returns the number of declared fields.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}
