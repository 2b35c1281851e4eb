package graph

import (
	"fmt"
	"strings"
)

// Sorted is a validated, topologically ordered and immutable view of a
// sealed graph. Every edge target precedes its source and the primary node
// comes first. It is safe for concurrent use.
type Sorted struct {
	nodes   []*Node
	index   map[string]int
	primary *Node
}

// Seal validates the graph and returns its sorted view. The result is cached;
// later calls return the same view and the graph rejects new declarations.
func (g *Graph) Seal() (*Sorted, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sorted != nil {
		return g.sorted, nil
	}
	s, err := sortNodes(g.nodes, g.order)
	if err != nil {
		return nil, err
	}
	g.sorted = s
	return s, nil
}

// Verify runs the seal checks. Call it at definition time so graph validity
// errors surface before the first request.
func (g *Graph) Verify() error {
	_, err := g.Seal()
	return err
}

// Sealed reports whether Seal succeeded.
func (g *Graph) Sealed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sorted != nil
}

const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // emitted
)

// sortNodes performs a three-color depth-first traversal, emitting a node
// once all of its edge targets are emitted.
func sortNodes(nodes map[string]*Node, order []string) (*Sorted, error) {
	var primary *Node
	for _, name := range order {
		n := nodes[name]
		if n.Kind != Primary {
			continue
		}
		if primary != nil {
			return nil, fmt.Errorf("%w: %s and %s", ErrMultiplePrimary, primary.Name, n.Name)
		}
		primary = n
	}
	if primary == nil {
		return nil, ErrMissingPrimary
	}

	color := make(map[string]int, len(nodes))
	out := make([]*Node, 0, len(nodes))
	var path []string

	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch color[n.Name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: %s (%s)", ErrCyclicDependency, n.Name, cyclePath(path, n.Name))
		}
		color[n.Name] = gray
		path = append(path, n.Name)
		for _, e := range n.Edges {
			dep, ok := nodes[e.Target]
			if !ok {
				return fmt.Errorf("%w: %s depends on undeclared field %s", ErrDanglingReference, n.Name, e.Target)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[n.Name] = black
		out = append(out, n)
		return nil
	}

	if err := visit(primary); err != nil {
		return nil, err
	}
	for _, name := range order {
		if err := visit(nodes[name]); err != nil {
			return nil, err
		}
	}

	index := make(map[string]int, len(out))
	for i, n := range out {
		index[n.Name] = i
	}
	return &Sorted{nodes: out, index: index, primary: primary}, nil
}

func cyclePath(path []string, closing string) string {
	start := 0
	for i, name := range path {
		if name == closing {
			start = i
			break
		}
	}
	cycle := append(append([]string(nil), path[start:]...), closing)
	return strings.Join(cycle, " -> ")
}

// Primary returns the primary node.
func (s *Sorted) Primary() *Node { return s.primary }

// Nodes returns the nodes in load order.
func (s *Sorted) Nodes() []*Node { return append([]*Node(nil), s.nodes...) }

// Len returns the number of nodes.
func (s *Sorted) Len() int { return len(s.nodes) }

// At returns the node at position i of the load order.
func (s *Sorted) At(i int) *Node { return s.nodes[i] }

// Lookup returns the node called name.
func (s *Sorted) Lookup(name string) (*Node, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.nodes[i], true
}

// Position returns the load-order index of name, or -1.
func (s *Sorted) Position(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Names returns field names in load order.
func (s *Sorted) Names() []string {
	out := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Name
	}
	return out
}
