// Package selector canonicalizes dependency and request declarations into an
// ordered field -> token list form and evaluates edge token specs.
//
// A declaration is one of:
//   - a bare field name ("name")
//   - a list of declarations ([]string, []any)
//   - a map from field name to a token value (map[string]any)
//   - an already normalized Set or a single Entry
//
// Tokens are opaque. The booleans true/false and nil enable or disable an
// edge; a Dynamic token is a function evaluated per request against the
// incoming selectors of the node owning the edge.
package selector

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidDeclaration reports a malformed selector or dependency declaration.
var ErrInvalidDeclaration = errors.New("invalid declaration")

// Token is one selector payload element.
type Token = any

// Dynamic computes tokens from the incoming selectors of the node that owns
// the edge. It must be referentially transparent. Returning a []Token splices
// the list one level deep; any other value is appended as a single token.
type Dynamic func(incoming []Token) Token

// Entry is one normalized field with its token list.
type Entry struct {
	Field  string
	Tokens []Token
}

// Set is a normalized declaration. Field names are unique and keep their
// first-appearance order.
type Set []Entry

// Fields returns the field names in order.
func (s Set) Fields() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.Field
	}
	return out
}

// Lookup returns the token list for field.
func (s Set) Lookup(field string) ([]Token, bool) {
	for _, e := range s {
		if e.Field == field {
			return e.Tokens, true
		}
	}
	return nil, false
}

// Has reports whether field is part of the set.
func (s Set) Has(field string) bool {
	_, ok := s.Lookup(field)
	return ok
}

// With builds a single entry declaration.
func With(field string, tokens ...Token) Entry {
	return Entry{Field: field, Tokens: tokens}
}

// Normalize canonicalizes decl. See the package documentation for the
// accepted forms.
func Normalize(decl any) (Set, error) {
	b := &builder{index: map[string]int{}}
	if err := b.add(decl); err != nil {
		return nil, err
	}
	return b.set, nil
}

// MustNormalize is like Normalize but panics on error.
func MustNormalize(decl any) Set {
	s, err := Normalize(decl)
	if err != nil {
		panic(err)
	}
	return s
}

type builder struct {
	set   Set
	index map[string]int
}

func (b *builder) add(decl any) error {
	switch d := decl.(type) {
	case string:
		return b.put(d, []Token{true})
	case []string:
		for _, name := range d {
			if err := b.put(name, []Token{true}); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, item := range d {
			if err := b.add(item); err != nil {
				return err
			}
		}
		return nil
	case Entry:
		return b.put(d.Field, valueTokens(d.Tokens))
	case Set:
		for _, e := range d {
			if err := b.put(e.Field, valueTokens(e.Tokens)); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := b.put(k, valueTokens(d[k])); err != nil {
				return err
			}
		}
		return nil
	case map[string]bool:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := b.put(k, []Token{d[k]}); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported declaration %T", ErrInvalidDeclaration, decl)
	}
}

func (b *builder) put(field string, tokens []Token) error {
	if field == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidDeclaration)
	}
	if i, ok := b.index[field]; ok {
		b.set[i].Tokens = append(b.set[i].Tokens, tokens...)
		return nil
	}
	b.index[field] = len(b.set)
	b.set = append(b.set, Entry{Field: field, Tokens: append([]Token(nil), tokens...)})
	return nil
}

// valueTokens converts a map value into its token list.
func valueTokens(v any) []Token {
	switch t := v.(type) {
	case nil:
		return []Token{true}
	case []Token:
		if len(t) == 0 {
			return []Token{true}
		}
		return t
	default:
		return []Token{v}
	}
}

// Strip removes the enable/disable markers nil, true and false.
func Strip(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t == nil {
			continue
		}
		if _, ok := t.(bool); ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Evaluate substitutes the dynamic tokens of spec using incoming and reports
// whether the resulting edge is active. Dynamic tokens see incoming with the
// nil/true/false markers stripped.
func Evaluate(spec []Token, incoming []Token) ([]Token, bool) {
	var filtered []Token
	out := make([]Token, 0, len(spec))
	for _, t := range spec {
		fn, ok := dynamicOf(t)
		if !ok {
			out = append(out, t)
			continue
		}
		if filtered == nil {
			filtered = Strip(incoming)
		}
		switch r := fn(filtered).(type) {
		case []Token:
			out = append(out, r...)
		default:
			out = append(out, r)
		}
	}
	return out, IsActive(out)
}

// IsActive reports whether tokens hold at least one value other than nil or
// false.
func IsActive(tokens []Token) bool {
	for _, t := range tokens {
		if !isOff(t) {
			return true
		}
	}
	return false
}

func isOff(t Token) bool {
	if t == nil {
		return true
	}
	b, ok := t.(bool)
	return ok && !b
}

func dynamicOf(t Token) (Dynamic, bool) {
	switch fn := t.(type) {
	case Dynamic:
		return fn, fn != nil
	case func([]Token) Token:
		return fn, fn != nil
	}
	return nil, false
}
