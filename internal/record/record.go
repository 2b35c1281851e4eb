// Package record holds per-entity field storage and the read-time access
// guard.
//
// A Record owns one storage cell per field and a stack of execution frames.
// The executor pushes a frame around every node body it runs; the frame names
// the fields that body may read. Reads through Get are checked against the
// frame on top of the stack, so a body observes only the fields it declared as
// direct dependencies. The bottom frame is the toplevel frame: it allows the
// fields the caller originally requested and stays in place after the batch
// returns.
package record

import (
	"errors"
	"fmt"

	"github.com/hanpama/fieldplan/internal/selector"
)

var (
	// ErrNotLoaded reports a read of a field whose storage cell was never assigned.
	ErrNotLoaded = errors.New("field not loaded")
	// ErrForbiddenDependency reports a read of a field that is not a direct
	// dependency of the currently executing node.
	ErrForbiddenDependency = errors.New("forbidden dependency")
)

// ToplevelNode is the node name reported by the toplevel frame.
const ToplevelNode = ""

// Frame is one execution segment on a record's stack.
type Frame struct {
	// Node is the field whose body runs in this frame (ToplevelNode outside any body).
	Node      string
	active    map[string]struct{}
	selectors []selector.Token
}

// NewFrame builds a frame allowing reads of deps. selectors is the node's
// filtered selector view.
func NewFrame(node string, deps []string, selectors []selector.Token) *Frame {
	active := make(map[string]struct{}, len(deps))
	for _, d := range deps {
		active[d] = struct{}{}
	}
	if selectors == nil {
		selectors = []selector.Token{}
	}
	return &Frame{Node: node, active: active, selectors: selectors}
}

// Allows reports whether field is an active dependency of the frame.
func (f *Frame) Allows(field string) bool {
	_, ok := f.active[field]
	return ok
}

// Failure is a sentinel value a loader or compute body returns instead of an
// error to mark one record as failed without aborting the batch.
type Failure struct {
	Err error
}

func (f Failure) Error() string {
	if f.Err == nil {
		return "record failed"
	}
	return f.Err.Error()
}

func (f Failure) Unwrap() error { return f.Err }

// Record is one domain entity instance.
type Record struct {
	values map[string]any
	frames []*Frame
	failed bool
}

// New creates a record whose stack holds the toplevel frame.
func New(toplevel *Frame) *Record {
	r := &Record{values: make(map[string]any)}
	if toplevel != nil {
		r.frames = append(r.frames, toplevel)
	}
	return r
}

// Get returns the value of field, enforcing that it is loaded and that the
// frame on top of the stack lists it as an active dependency.
func (r *Record) Get(field string) (any, error) {
	v, ok := r.values[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, field)
	}
	top := r.top()
	if top == nil || !top.Allows(field) {
		node := ToplevelNode
		if top != nil {
			node = top.Node
		}
		if node == ToplevelNode {
			return nil, fmt.Errorf("%w: %s was not requested", ErrForbiddenDependency, field)
		}
		return nil, fmt.Errorf("%w: %s is not a dependency of %s", ErrForbiddenDependency, field, node)
	}
	return v, nil
}

// MustGet is like Get but panics on error.
func (r *Record) MustGet(field string) any {
	v, err := r.Get(field)
	if err != nil {
		panic(err)
	}
	return v
}

// Value is the typed accessor over Get.
func Value[T any](r *Record, field string) (T, error) {
	var zero T
	v, err := r.Get(field)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("field %s holds %T, not %T", field, v, zero)
	}
	return t, nil
}

// Loaded reports whether field has been assigned. It bypasses the guard.
func (r *Record) Loaded(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Store assigns field. A Failure value also marks the record failed.
func (r *Record) Store(field string, v any) {
	r.values[field] = v
	switch v.(type) {
	case Failure, *Failure:
		r.failed = true
	}
}

// Failed reports whether any stored value was a Failure.
func (r *Record) Failed() bool { return r.failed }

// Push places f on top of the frame stack.
func (r *Record) Push(f *Frame) { r.frames = append(r.frames, f) }

// Pop removes the top frame. The toplevel frame is never removed.
func (r *Record) Pop() {
	if len(r.frames) > 1 {
		r.frames[len(r.frames)-1] = nil
		r.frames = r.frames[:len(r.frames)-1]
	}
}

// Unwind drops every frame above the toplevel frame.
func (r *Record) Unwind() {
	for len(r.frames) > 1 {
		r.Pop()
	}
}

// Current returns the node whose body is executing, or ToplevelNode.
func (r *Record) Current() string {
	if top := r.top(); top != nil {
		return top.Node
	}
	return ToplevelNode
}

// Selectors returns a copy of the filtered selectors of the executing node.
// Outside any node body it returns an empty list.
func (r *Record) Selectors() []selector.Token {
	top := r.top()
	if top == nil {
		return []selector.Token{}
	}
	return append(make([]selector.Token, 0, len(top.selectors)), top.selectors...)
}

func (r *Record) top() *Frame {
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}
