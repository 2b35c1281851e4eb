package executor

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	ctxlog "github.com/hanpama/fieldplan/internal/ctxlog"
	eventbus "github.com/hanpama/fieldplan/internal/eventbus"
	events "github.com/hanpama/fieldplan/internal/events"
	graph "github.com/hanpama/fieldplan/internal/graph"
	planner "github.com/hanpama/fieldplan/internal/planner"
	record "github.com/hanpama/fieldplan/internal/record"
)

// Options configures an Executor.
type Options struct {
	// Parallelism bounds the number of records a Computed node evaluates
	// concurrently. Values below 2 run records sequentially.
	Parallelism int

	// DropFailed removes records holding a record.Failure value before later
	// nodes run and from the result.
	DropFailed bool
}

// Option customizes Options.
type Option func(*Options)

// WithParallelism lets a Computed node evaluate up to n records at once.
func WithParallelism(n int) Option { return func(o *Options) { o.Parallelism = n } }

// WithDropFailed enables the drop-failed-records policy.
func WithDropFailed() Option { return func(o *Options) { o.DropFailed = true } }

// Executor runs plans over batches of records.
type Executor struct {
	opt Options
}

// New creates an Executor configured by opts.
func New(opts ...Option) *Executor {
	var o Options
	for _, f := range opts {
		f(&o)
	}
	return &Executor{opt: o}
}

// Options returns the executor configuration.
func (e *Executor) Options() Options { return e.opt }

var batchSeq atomic.Uint64

// batchState holds the records of one Execute call.
type batchState struct {
	id      uint64
	exec    *Executor
	plan    *planner.Plan
	options map[string]any
	// all holds every record created by the primary node; live excludes
	// records dropped by the failure policy.
	all     []*record.Record
	live    []*record.Record
	dropped int
}

// Execute runs plan over one batch and returns the resolved records. Nodes run
// strictly in plan order, each across the whole batch before the next starts.
// Any collaborator error aborts the call.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, options map[string]any) ([]*record.Record, error) {
	if options == nil {
		options = map[string]any{}
	}
	requested := plan.Toplevel.Fields()
	start := time.Now()
	st := &batchState{id: batchSeq.Add(1), exec: e, plan: plan, options: options}
	eventbus.Publish(ctx, events.BatchStart{BatchID: st.id, Requested: requested, Order: plan.Names()})

	err := st.run(ctx)
	if err != nil {
		for _, r := range st.all {
			r.Unwind()
		}
	}

	eventbus.Publish(ctx, events.BatchFinish{
		BatchID:   st.id,
		Requested: requested,
		Records:   len(st.live),
		Dropped:   st.dropped,
		Err:       err,
		Duration:  time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return st.live, nil
}

func (st *batchState) run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for _, pn := range st.plan.Nodes {
		n := pn.Node
		start := time.Now()
		eventbus.Publish(ctx, events.NodeStart{BatchID: st.id, Field: n.Name, Kind: n.Kind.String(), Records: len(st.live)})

		var (
			keys int
			err  error
		)
		switch n.Kind {
		case graph.Primary:
			err = st.runPrimary(ctx, pn)
		case graph.Loaded:
			keys, err = st.runLoaded(ctx, pn)
		case graph.Computed:
			err = st.runComputed(ctx, pn)
		default:
			err = fmt.Errorf("field %s has unknown kind %d", n.Name, n.Kind)
		}
		if err == nil && st.exec.opt.DropFailed {
			st.dropFailed()
		}

		eventbus.Publish(ctx, events.NodeFinish{
			BatchID:  st.id,
			Field:    n.Name,
			Kind:     n.Kind.String(),
			Records:  len(st.live),
			Keys:     keys,
			Err:      err,
			Duration: time.Since(start),
		})
		if err != nil {
			return err
		}
		logger.Debug("executor: node done", "field", n.Name, "kind", n.Kind.String(),
			"records", len(st.live), "duration", time.Since(start))
	}
	return nil
}

func (st *batchState) runPrimary(ctx context.Context, pn *planner.PlanNode) error {
	n := pn.Node
	payloads, err := n.Enumerate(ctx, pn.Filtered(), st.options)
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", n.Name, err)
	}
	toplevel := record.NewFrame(record.ToplevelNode, st.plan.Toplevel.Fields(), nil)
	st.all = make([]*record.Record, len(payloads))
	for i, p := range payloads {
		r := record.New(toplevel)
		r.Store(n.Name, p)
		st.all[i] = r
	}
	st.live = st.all
	return nil
}

func (st *batchState) runLoaded(ctx context.Context, pn *planner.PlanNode) (int, error) {
	n := pn.Node
	selectors := pn.Filtered()
	frame := record.NewFrame(n.Name, pn.ActiveDeps, selectors)
	for _, r := range st.live {
		r.Push(frame)
	}
	defer func() {
		for _, r := range st.live {
			r.Pop()
		}
	}()

	perRecord := make([]any, len(st.live))
	var keys []any
	seen := make(map[any]struct{})
	for i, r := range st.live {
		k, err := n.Key(ctx, r)
		if err != nil {
			return 0, fmt.Errorf("key %s: %w", n.Name, err)
		}
		// Value.Comparable looks through interfaces held in struct fields.
		if k != nil && !reflect.ValueOf(k).Comparable() {
			return 0, fmt.Errorf("key %s: %T is not comparable", n.Name, k)
		}
		perRecord[i] = k
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	values, err := n.Load(ctx, keys, selectors, st.options)
	if err != nil {
		return len(keys), fmt.Errorf("load %s: %w", n.Name, err)
	}
	for i, r := range st.live {
		if v, ok := values[perRecord[i]]; ok {
			r.Store(n.Name, v)
		}
	}
	return len(keys), nil
}

func (st *batchState) runComputed(ctx context.Context, pn *planner.PlanNode) error {
	n := pn.Node
	frame := record.NewFrame(n.Name, pn.ActiveDeps, pn.Filtered())
	one := func(ctx context.Context, r *record.Record) error {
		r.Push(frame)
		defer r.Pop()
		v, err := n.Compute(ctx, r)
		if err != nil {
			return fmt.Errorf("compute %s: %w", n.Name, err)
		}
		r.Store(n.Name, v)
		return nil
	}

	if st.exec.opt.Parallelism < 2 || len(st.live) < 2 {
		for _, r := range st.live {
			if err := one(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(st.exec.opt.Parallelism)
	for _, r := range st.live {
		g.Go(func() error { return one(gctx, r) })
	}
	return g.Wait()
}

func (st *batchState) dropFailed() {
	kept := st.live[:0:0]
	for _, r := range st.live {
		if r.Failed() {
			st.dropped++
			continue
		}
		kept = append(kept, r)
	}
	st.live = kept
}
