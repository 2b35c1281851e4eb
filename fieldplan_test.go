package fieldplan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/fieldplan"
	"github.com/hanpama/fieldplan/internal/executor"
	"github.com/hanpama/fieldplan/internal/graph"
	"github.com/hanpama/fieldplan/internal/planner"
	"github.com/hanpama/fieldplan/internal/selector"
)

type user struct {
	ID    int
	First string
	Last  string
}

func usersUnit(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("users")
	require.NoError(t, g.AddPrimary("user", func(ctx context.Context, _ []selector.Token, options map[string]any) ([]any, error) {
		return []any{user{1, "Ada", "Lovelace"}, user{2, "Alan", "Turing"}}, nil
	}))
	require.NoError(t, g.AddComputed("name", func(ctx context.Context, r *fieldplan.Record) (any, error) {
		u, err := fieldplan.Value[user](r, "user")
		return u.First + " " + u.Last, err
	}, "user"))
	return g
}

func styleUnit(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("style")
	require.NoError(t, g.AddComputed("fancyName", func(ctx context.Context, r *fieldplan.Record) (any, error) {
		n, err := fieldplan.Value[string](r, "name")
		return "*" + n + "*", err
	}, "name"))
	require.NoError(t, g.AddComputed("secret", func(ctx context.Context, r *fieldplan.Record) (any, error) {
		return "s3cr3t", nil
	}, "user", graph.WithVisibility(graph.Internal)))
	return g
}

func TestModel_Resolve(t *testing.T) {
	m, err := fieldplan.NewModel([]*fieldplan.Graph{usersUnit(t), styleUnit(t)})
	require.NoError(t, err)
	require.Equal(t, []string{"user", "name", "fancyName", "secret"}, m.Fields())

	records, err := m.Resolve(context.Background(), "fancyName", nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "*Alan Turing*", records[1].MustGet("fancyName"))

	_, err = records[0].Get("name")
	require.True(t, errors.Is(err, fieldplan.ErrForbiddenDependency), "got %v", err)
}

func TestModel_Plan(t *testing.T) {
	m, err := fieldplan.NewModel([]*fieldplan.Graph{usersUnit(t), styleUnit(t)})
	require.NoError(t, err)

	p, err := m.Plan(context.Background(), []string{"name"})
	require.NoError(t, err)
	require.Equal(t, []string{"user", "name"}, p.Names())

	_, err = m.Plan(context.Background(), "secret")
	require.True(t, errors.Is(err, fieldplan.ErrInternalField), "got %v", err)

	_, err = m.Plan(context.Background(), "nope")
	require.True(t, errors.Is(err, fieldplan.ErrDanglingReference), "got %v", err)
}

func TestModel_Options(t *testing.T) {
	m, err := fieldplan.NewModel([]*fieldplan.Graph{usersUnit(t), styleUnit(t)},
		fieldplan.WithPlannerOptions(planner.WithInternal()),
		fieldplan.WithExecutorOptions(executor.WithParallelism(2)),
	)
	require.NoError(t, err)

	records, err := m.Resolve(context.Background(), "secret", nil)
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", records[0].MustGet("secret"))
}

func TestModel_ResolveQuery(t *testing.T) {
	m, err := fieldplan.NewModel([]*fieldplan.Graph{usersUnit(t), styleUnit(t)})
	require.NoError(t, err)

	fields, records, err := m.ResolveQuery(context.Background(), fieldplan.Query{Fields: "{ name fancyName }"}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"name", "fancyName"}, fields.Fields())
	require.Equal(t, "Ada Lovelace", records[0].MustGet("name"))

	_, _, err = m.ResolveQuery(context.Background(), fieldplan.Query{Fields: "{ name("}, nil)
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	require.NoError(t, fieldplan.Verify(usersUnit(t), styleUnit(t)))

	err := fieldplan.Verify(styleUnit(t))
	require.True(t, errors.Is(err, fieldplan.ErrMissingPrimary), "got %v", err)

	clash := graph.New("clash")
	require.NoError(t, clash.AddPrimary("name", func(ctx context.Context, _ []selector.Token, _ map[string]any) ([]any, error) {
		return nil, nil
	}))
	require.NoError(t, clash.AddPrimary("fancyName", func(ctx context.Context, _ []selector.Token, _ map[string]any) ([]any, error) {
		return nil, nil
	}))
	err = fieldplan.Verify(usersUnit(t), styleUnit(t), clash)
	require.True(t, errors.Is(err, fieldplan.ErrKindConflict), "got %v", err)
	require.Contains(t, err.Error(), "name declared as")
	require.Contains(t, err.Error(), "fancyName declared as")

	_, err = fieldplan.NewModel([]*fieldplan.Graph{usersUnit(t), clash})
	require.True(t, errors.Is(err, fieldplan.ErrKindConflict), "got %v", err)
}
