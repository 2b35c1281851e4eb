package demo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	graph "github.com/hanpama/fieldplan/internal/graph"
	record "github.com/hanpama/fieldplan/internal/record"
	selector "github.com/hanpama/fieldplan/internal/selector"
)

// Units declares the demo fields over s, split the way separate teams would
// own them:
//
//	users:   user (primary), name, fancyName, email (internal), contact,
//	         manager (loaded), managerName
//	posts:   posts (loaded), postCount
//	summary: summary, which loads posts only when asked withPosts
func Units(s *Store) []*graph.Graph {
	return []*graph.Graph{usersUnit(s), postsUnit(s), summaryUnit()}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func usersUnit(s *Store) *graph.Graph {
	g := graph.New("users")

	must(g.AddPrimary("user", func(ctx context.Context, selectors []selector.Token, options map[string]any) ([]any, error) {
		var ids []int
		for _, t := range selectors {
			m, ok := t.(map[string]any)
			if !ok {
				continue
			}
			got, err := intList(m["ids"])
			if err != nil {
				return nil, fmt.Errorf("user ids: %w", err)
			}
			ids = append(ids, got...)
		}
		limit, _ := toInt(options["limit"])
		users := s.ListUsers(ids, limit)
		out := make([]any, len(users))
		for i, u := range users {
			out[i] = u
		}
		return out, nil
	}))

	must(g.AddComputed("name", func(ctx context.Context, r *record.Record) (any, error) {
		u, err := record.Value[User](r, "user")
		if err != nil {
			return nil, err
		}
		return u.First + " " + u.Last, nil
	}, "user"))

	must(g.AddComputed("fancyName", func(ctx context.Context, r *record.Record) (any, error) {
		name, err := record.Value[string](r, "name")
		if err != nil {
			return nil, err
		}
		style := "*"
		for _, t := range r.Selectors() {
			if m, ok := t.(map[string]any); ok {
				if v, ok := m["style"].(string); ok && v != "" {
					style = v
				}
			}
		}
		return style + name + style, nil
	}, "name"))

	must(g.AddComputed("email", func(ctx context.Context, r *record.Record) (any, error) {
		u, err := record.Value[User](r, "user")
		return u.Email, err
	}, "user", graph.WithVisibility(graph.Internal)))

	must(g.AddComputed("contact", func(ctx context.Context, r *record.Record) (any, error) {
		name, err := record.Value[string](r, "name")
		if err != nil {
			return nil, err
		}
		email, err := record.Value[string](r, "email")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s <%s>", name, email), nil
	}, []string{"name", "email"}))

	must(g.AddLoaded("manager",
		func(ctx context.Context, r *record.Record) (any, error) {
			u, err := record.Value[User](r, "user")
			if err != nil {
				return nil, err
			}
			return u.Manager, nil
		},
		func(ctx context.Context, keys []any, selectors []selector.Token, options map[string]any) (map[any]any, error) {
			ids := make([]int, 0, len(keys))
			for _, k := range keys {
				if id := k.(int); id != 0 {
					ids = append(ids, id)
				}
			}
			out := make(map[any]any, len(ids))
			for id, u := range s.UsersByID(ids) {
				out[id] = u
			}
			return out, nil
		},
		"user"))

	must(g.AddComputed("managerName", func(ctx context.Context, r *record.Record) (any, error) {
		m, err := record.Value[User](r, "manager")
		if errors.Is(err, record.ErrNotLoaded) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return m.First + " " + m.Last, nil
	}, "manager"))

	return g
}

func postsUnit(s *Store) *graph.Graph {
	g := graph.New("posts")

	must(g.AddLoaded("posts",
		func(ctx context.Context, r *record.Record) (any, error) {
			u, err := record.Value[User](r, "user")
			return u.ID, err
		},
		func(ctx context.Context, keys []any, selectors []selector.Token, options map[string]any) (map[any]any, error) {
			q, err := postQuery(selectors)
			if err != nil {
				return nil, err
			}
			authors := make([]int, len(keys))
			for i, k := range keys {
				authors[i] = k.(int)
			}
			out := make(map[any]any, len(keys))
			for a, posts := range s.PostsByAuthor(authors, q) {
				out[a] = posts
			}
			return out, nil
		},
		"user"))

	must(g.AddComputed("postCount", func(ctx context.Context, r *record.Record) (any, error) {
		posts, err := record.Value[[]Post](r, "posts")
		return len(posts), err
	}, "posts"))

	return g
}

const summaryPosts = 3

// withPosts activates the summary's posts edge when the summary was asked
// for {withPosts: true}.
func withPosts(incoming []selector.Token) selector.Token {
	for _, t := range incoming {
		if m, ok := t.(map[string]any); ok && m["withPosts"] == true {
			return true
		}
	}
	return false
}

func summaryUnit() *graph.Graph {
	g := graph.New("summary")
	must(g.AddComputed("summary", func(ctx context.Context, r *record.Record) (any, error) {
		name, err := record.Value[string](r, "name")
		if err != nil {
			return nil, err
		}
		posts, err := record.Value[[]Post](r, "posts")
		if errors.Is(err, record.ErrNotLoaded) || errors.Is(err, record.ErrForbiddenDependency) {
			return name, nil
		}
		if err != nil {
			return nil, err
		}
		if len(posts) > summaryPosts {
			posts = posts[:summaryPosts]
		}
		titles := make([]string, len(posts))
		for i, p := range posts {
			titles[i] = p.Title
		}
		return fmt.Sprintf("%s: %s", name, strings.Join(titles, "; ")), nil
	}, map[string]any{
		"name":  true,
		"posts": selector.Dynamic(withPosts),
	}))
	return g
}

// postQuery merges the posts selectors. Every contributor is served by the
// one fetch, so the widest request wins: published-only applies when all map
// selectors ask for it, and the largest limit applies unless some map
// selector has none. Plain markers carry no filter.
func postQuery(selectors []selector.Token) (PostQuery, error) {
	var q PostQuery
	n := 0
	publishedOnly := true
	unlimited := false
	for _, t := range selectors {
		m, ok := t.(map[string]any)
		if !ok {
			continue
		}
		n++
		if p, _ := m["published"].(bool); !p {
			publishedOnly = false
		}
		v, present := m["limit"]
		if !present || v == nil {
			unlimited = true
			continue
		}
		limit, err := toInt(v)
		if err != nil {
			return q, fmt.Errorf("posts limit: %w", err)
		}
		if limit > q.Limit {
			q.Limit = limit
		}
	}
	if n == 0 || unlimited {
		q.Limit = 0
	}
	q.PublishedOnly = n > 0 && publishedOnly
	return q, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}

func intList(v any) ([]int, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case []int:
		return l, nil
	case []any:
		out := make([]int, len(l))
		for i, e := range l {
			n, err := toInt(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}
}
