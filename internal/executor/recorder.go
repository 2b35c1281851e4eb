package executor

import (
	"context"
	"sync"

	graph "github.com/hanpama/fieldplan/internal/graph"
	record "github.com/hanpama/fieldplan/internal/record"
	selector "github.com/hanpama/fieldplan/internal/selector"
)

// Call kinds recorded by Recorder.
const (
	CallEnumerate = "enumerate"
	CallLoad      = "load"
	CallCompute   = "compute"
)

// Call is one recorded collaborator invocation. Compute records one Call per
// record; enumerate and load record one Call per batch.
type Call struct {
	Kind      string
	Field     string
	Keys      []any
	Selectors []selector.Token
	Options   map[string]any
}

// Recorder wraps collaborators so tests can assert how often and with what
// arguments the executor called them.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func NewRecorder() *Recorder { return &Recorder{} }

func (m *Recorder) record(c Call) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (m *Recorder) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Count returns the number of recorded calls of kind for field.
func (m *Recorder) Count(kind, field string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Kind == kind && c.Field == field {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (m *Recorder) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

// Payloads returns an Enumerator that always yields payloads.
func (m *Recorder) Payloads(field string, payloads ...any) graph.Enumerator {
	return m.Enumerator(field, func(ctx context.Context, selectors []selector.Token, options map[string]any) ([]any, error) {
		return append([]any(nil), payloads...), nil
	})
}

// Enumerator records calls to fn.
func (m *Recorder) Enumerator(field string, fn graph.Enumerator) graph.Enumerator {
	return func(ctx context.Context, selectors []selector.Token, options map[string]any) ([]any, error) {
		m.record(Call{Kind: CallEnumerate, Field: field, Selectors: selectors, Options: options})
		return fn(ctx, selectors, options)
	}
}

// Loader records calls to fn.
func (m *Recorder) Loader(field string, fn graph.Loader) graph.Loader {
	return func(ctx context.Context, keys []any, selectors []selector.Token, options map[string]any) (map[any]any, error) {
		m.record(Call{Kind: CallLoad, Field: field, Keys: append([]any(nil), keys...), Selectors: selectors, Options: options})
		return fn(ctx, keys, selectors, options)
	}
}

// Table returns a Loader answering from a fixed key/value table.
func (m *Recorder) Table(field string, table map[any]any) graph.Loader {
	return m.Loader(field, func(ctx context.Context, keys []any, selectors []selector.Token, options map[string]any) (map[any]any, error) {
		out := make(map[any]any, len(keys))
		for _, k := range keys {
			if v, ok := table[k]; ok {
				out[k] = v
			}
		}
		return out, nil
	})
}

// Compute records calls to fn.
func (m *Recorder) Compute(field string, fn graph.ComputeFunc) graph.ComputeFunc {
	return func(ctx context.Context, r *record.Record) (any, error) {
		m.record(Call{Kind: CallCompute, Field: field, Selectors: r.Selectors()})
		return fn(ctx, r)
	}
}
