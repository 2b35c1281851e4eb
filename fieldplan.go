// Package fieldplan derives requested fields for batches of entities.
//
// Fields are declared on graph units as Primary (the batch enumerator),
// Loaded (one batched fetch per request) or Computed (derived per record).
// A Model merges the units, verifies the resulting graph once, and for every
// request builds a minimal plan and runs it over one batch:
//
//	users := graph.New("users")
//	users.AddPrimary("user", listUsers)
//	users.AddComputed("name", userName, "user")
//	users.AddComputed("fancyName", fancy, "name")
//
//	m, err := fieldplan.NewModel([]*fieldplan.Graph{users})
//	records, err := m.Resolve(ctx, "fancyName", nil)
//
// Field bodies read their declared dependencies through Record.Get; any other
// read fails with ErrForbiddenDependency.
package fieldplan

import (
	"context"

	"github.com/hanpama/fieldplan/internal/executor"
	"github.com/hanpama/fieldplan/internal/graph"
	"github.com/hanpama/fieldplan/internal/language"
	"github.com/hanpama/fieldplan/internal/planner"
	"github.com/hanpama/fieldplan/internal/record"
	"github.com/hanpama/fieldplan/internal/selector"
)

type (
	Graph       = graph.Graph
	Node        = graph.Node
	Kind        = graph.Kind
	Enumerator  = graph.Enumerator
	KeyFunc     = graph.KeyFunc
	Loader      = graph.Loader
	ComputeFunc = graph.ComputeFunc
	Plan        = planner.Plan
	Record      = record.Record
	Failure     = record.Failure
	Token       = selector.Token
	Dynamic     = selector.Dynamic
	Set         = selector.Set
)

var (
	ErrInvalidDeclaration  = selector.ErrInvalidDeclaration
	ErrMissingPrimary      = graph.ErrMissingPrimary
	ErrMultiplePrimary     = graph.ErrMultiplePrimary
	ErrDanglingReference   = graph.ErrDanglingReference
	ErrCyclicDependency    = graph.ErrCyclicDependency
	ErrKindConflict        = graph.ErrKindConflict
	ErrSealed              = graph.ErrSealed
	ErrInternalField       = planner.ErrInternalField
	ErrNotLoaded           = record.ErrNotLoaded
	ErrForbiddenDependency = record.ErrForbiddenDependency
)

// Value is the typed accessor over Record.Get.
func Value[T any](r *Record, field string) (T, error) { return record.Value[T](r, field) }

type Options struct {
	Executor []executor.Option
	Planner  []planner.Option
}

type Option func(*Options)

// WithExecutorOptions configures how plans are executed.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(o *Options) { o.Executor = append(o.Executor, opts...) }
}

// WithPlannerOptions configures how plans are built.
func WithPlannerOptions(opts ...planner.Option) Option {
	return func(o *Options) { o.Planner = append(o.Planner, opts...) }
}

// Model is a verified field graph ready to serve requests. It is safe for
// concurrent use.
type Model struct {
	graph  *graph.Graph
	sorted *graph.Sorted
	exec   *executor.Executor
	opt    Options
}

// NewModel merges units and seals the result.
func NewModel(units []*Graph, opts ...Option) (*Model, error) {
	var o Options
	for _, f := range opts {
		f(&o)
	}
	g, err := graph.Merge(units...)
	if err != nil {
		return nil, err
	}
	sorted, err := g.Seal()
	if err != nil {
		return nil, err
	}
	return &Model{graph: g, sorted: sorted, exec: executor.New(o.Executor...), opt: o}, nil
}

// Verify checks units taken together. Kind conflicts between units are all
// reported at once; otherwise the merged graph runs the seal checks.
func Verify(units ...*Graph) error {
	g, err := graph.Merge(units...)
	if err != nil {
		return err
	}
	return g.Verify()
}

// Sorted returns the sealed graph.
func (m *Model) Sorted() *graph.Sorted { return m.sorted }

// Fields returns the field names in load order.
func (m *Model) Fields() []string { return m.sorted.Names() }

// Plan builds the plan for fields without running it.
func (m *Model) Plan(ctx context.Context, fields any) (*Plan, error) {
	return planner.Build(ctx, m.sorted, fields, m.opt.Planner...)
}

// Resolve plans fields and runs the plan over one batch. options are passed
// unchanged to the enumerator and loaders.
func (m *Model) Resolve(ctx context.Context, fields any, options map[string]any) ([]*Record, error) {
	p, err := m.Plan(ctx, fields)
	if err != nil {
		return nil, err
	}
	return m.exec.Execute(ctx, p, options)
}

// Query is a field request in selection syntax.
type Query struct {
	Fields        string
	OperationName string
	Variables     map[string]any
}

// ParseQuery converts q into a normalized declaration.
func ParseQuery(q Query) (Set, error) {
	return language.Parse(q.Fields, q.OperationName, q.Variables)
}

// ResolveQuery parses q and resolves it.
func (m *Model) ResolveQuery(ctx context.Context, q Query, options map[string]any) (Set, []*Record, error) {
	fields, err := ParseQuery(q)
	if err != nil {
		return nil, nil, err
	}
	records, err := m.Resolve(ctx, fields, options)
	if err != nil {
		return nil, nil, err
	}
	return fields, records, nil
}
