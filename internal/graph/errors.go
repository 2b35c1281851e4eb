package graph

import "errors"

// Graph validity errors. They indicate a model definition bug and are
// reported by Seal, Verify, Merge and the planner.
var (
	ErrMissingPrimary    = errors.New("missing primary field")
	ErrMultiplePrimary   = errors.New("multiple primary fields")
	ErrDanglingReference = errors.New("dangling reference")
	ErrCyclicDependency  = errors.New("cyclic dependency")
	ErrKindConflict      = errors.New("conflicting field kinds")
	ErrSealed            = errors.New("graph is sealed")
)
