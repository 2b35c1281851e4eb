// Package graph models batch-resolvable fields and their dependencies.
//
// # Declaration
//
// A Graph is a registry of Nodes. Each node is one field of kind Primary,
// Loaded or Computed and carries ordered Edges to the fields it depends on.
// An edge's Spec is a selector token list (see package selector): tokens gate
// the edge (true/false/nil), carry opaque payloads to the dependency, or are
// dynamic functions evaluated per request.
//
//	g := graph.New("users")
//	_ = g.AddPrimary("user", enumerateUsers)
//	_ = g.AddComputed("name", computeName, "user")
//	_ = g.AddLoaded("posts", userID, loadPosts, map[string]any{"user": nil})
//
// Registration normalizes the dependency declaration immediately, so a
// malformed declaration fails with selector.ErrInvalidDeclaration at the call.
//
// # Units and merging
//
// Each declaring unit builds its own Graph. Merge combines them: a later
// unit's same-kind declaration overrides an earlier one, and declaring the same
// name with different kinds fails with ErrKindConflict.
//
// # Sealing
//
// Seal validates the graph and produces a Sorted view:
//   - exactly one Primary node (ErrMissingPrimary, ErrMultiplePrimary)
//   - every edge targets a declared field (ErrDanglingReference)
//   - no cycles (ErrCyclicDependency, naming the first field found on a cycle)
//
// Ordering uses a three-color depth-first traversal starting at the primary
// node and then every node in declaration order, emitting nodes in post-order.
// Dependencies therefore precede dependents and the primary node is first.
// The sorted view is cached; a sealed graph rejects new declarations with
// ErrSealed and is safe to share across concurrent requests.
package graph
