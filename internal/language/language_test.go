package language

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/fieldplan/internal/selector"
)

func TestParse_BareFields(t *testing.T) {
	got, err := Parse("name fancyName", "", nil)
	require.NoError(t, err)
	want := selector.Set{
		{Field: "name", Tokens: []selector.Token{true}},
		{Field: "fancyName", Tokens: []selector.Token{true}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("set mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_ArgumentsAndSubselections(t *testing.T) {
	got, err := Parse(`{ posts(limit: 2, published: true, tags: ["go"], order: DESC) { title } summary(withPosts: true) }`, "", nil)
	require.NoError(t, err)
	want := selector.Set{
		{Field: "posts", Tokens: []selector.Token{
			map[string]any{"limit": 2, "published": true, "tags": []any{"go"}, "order": "DESC"},
			selector.Set{{Field: "title", Tokens: []selector.Token{true}}},
		}},
		{Field: "summary", Tokens: []selector.Token{map[string]any{"withPosts": true}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("set mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_RepeatedFieldsMerge(t *testing.T) {
	got, err := Parse(`{ posts(limit: 1) posts(published: true) }`, "", nil)
	require.NoError(t, err)
	tokens, ok := got.Lookup("posts")
	require.True(t, ok)
	require.Equal(t, []selector.Token{map[string]any{"limit": 1}, map[string]any{"published": true}}, tokens)
	require.Len(t, got, 1)
}

func TestParse_Variables(t *testing.T) {
	src := `query Q($n: Int = 3, $full: Boolean) { posts(limit: $n) summary(withPosts: $full) }`

	got, err := Parse(src, "", map[string]any{"full": true})
	require.NoError(t, err)
	tokens, _ := got.Lookup("posts")
	require.Equal(t, []selector.Token{map[string]any{"limit": 3}}, tokens)
	tokens, _ = got.Lookup("summary")
	require.Equal(t, []selector.Token{map[string]any{"withPosts": true}}, tokens)

	got, err = Parse(src, "Q", map[string]any{"$n": 7})
	require.NoError(t, err)
	tokens, _ = got.Lookup("posts")
	require.Equal(t, []selector.Token{map[string]any{"limit": 7}}, tokens)
	tokens, _ = got.Lookup("summary")
	require.Equal(t, []selector.Token{map[string]any{"withPosts": nil}}, tokens)
}

func TestParse_Directives(t *testing.T) {
	src := `query($skipName: Boolean!) { name @skip(if: $skipName) email @include(if: false) user }`
	got, err := Parse(src, "", map[string]any{"skipName": true})
	require.NoError(t, err)
	require.Equal(t, []string{"user"}, got.Fields())

	got, err = Parse(src, "", map[string]any{"skipName": false})
	require.NoError(t, err)
	require.Equal(t, []string{"name", "user"}, got.Fields())
}

func TestParse_Fragments(t *testing.T) {
	src := `
query { user ...Names ... on User { postCount } ...Names }
fragment Names on User { name fancyName }
`
	got, err := Parse(src, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"user", "name", "fancyName", "postCount"}, got.Fields())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("{ name(", "", nil)
	require.True(t, errors.Is(err, ErrSyntax), "got %v", err)
	require.ErrorContains(t, err, "parse fields")

	_, err = Parse("query A { name } query B { user }", "", nil)
	require.True(t, errors.Is(err, ErrUnknownOperation), "got %v", err)

	_, err = Parse("query A { name }", "B", nil)
	require.True(t, errors.Is(err, ErrUnknownOperation), "got %v", err)

	got, err := Parse("query A { name } query B { user }", "B", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"user"}, got.Fields())
}

func TestParse_NumberOutOfRange(t *testing.T) {
	for _, src := range []string{
		"posts(limit: 99999999999999999999)",
		"posts { comments(limit: 99999999999999999999) }",
		"posts(ids: [1, 99999999999999999999])",
		"query ($n: Int = 99999999999999999999) { posts(limit: $n) }",
		"name @include(if: 99999999999999999999)",
	} {
		_, err := Parse(src, "", nil)
		require.True(t, errors.Is(err, ErrSyntax), "%s: got %v", src, err)
		require.ErrorContains(t, err, "99999999999999999999")
	}

	got, err := Parse("posts { comments(limit: 2) }", "", nil)
	require.NoError(t, err)
	want := selector.Set{{Field: "posts", Tokens: []selector.Token{
		selector.Set{{Field: "comments", Tokens: []selector.Token{map[string]any{"limit": 2}}}},
	}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("nested selection mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Empty(t *testing.T) {
	got, err := Parse("  ", "", nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWrap(t *testing.T) {
	require.Equal(t, "{name}", wrap(" name "))
	require.Equal(t, "{queryCount}", wrap("queryCount"))
	require.Equal(t, "query { a }", wrap("query { a }"))
	require.Equal(t, "{ a }", wrap("{ a }"))
}
