package language

import (
	"fmt"
	"strings"

	"github.com/hanpama/fieldplan/internal/selector"
)

// Parse reads source and returns the selected fields of the chosen operation
// as a normalized selector set. variables supply $-references; a missing
// variable falls back to its declared default and then to null.
func Parse(source, operationName string, variables map[string]any) (selector.Set, error) {
	if strings.TrimSpace(source) == "" {
		return selector.Set{}, nil
	}
	doc, err := ParseQuery(wrap(source))
	if err != nil {
		return nil, fmt.Errorf("parse fields: %w: %w", ErrSyntax, err)
	}
	return Selection(doc, operationName, variables)
}

// Selection converts the selection set of one operation of doc.
func Selection(doc *QueryDocument, operationName string, variables map[string]any) (selector.Set, error) {
	op, err := operation(doc, operationName)
	if err != nil {
		return nil, err
	}
	vars, err := coerceVariables(op, variables)
	if err != nil {
		return nil, err
	}
	st := &state{doc: doc, variables: vars}
	decl, err := st.collect(op.SelectionSet, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return selector.Normalize(decl)
}

type state struct {
	doc       *QueryDocument
	variables map[string]any
}

func coerceVariables(op *OperationDefinition, variables map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(variables))
	for k, v := range variables {
		out[strings.TrimPrefix(k, "$")] = v
	}
	for _, def := range op.VariableDefinitions {
		if _, ok := out[def.Variable]; ok || def.DefaultValue == nil {
			continue
		}
		v, err := astValueToGo(def.DefaultValue, nil)
		if err != nil {
			return nil, fmt.Errorf("variable $%s: %w", def.Variable, err)
		}
		out[def.Variable] = v
	}
	return out, nil
}

// collect flattens fields, inline fragments and fragment spreads into a list
// of entries in document order. Type conditions are ignored.
func (st *state) collect(set SelectionSet, visited map[string]bool) ([]any, error) {
	var out []any
	for _, selection := range set {
		switch sel := selection.(type) {
		case *Field:
			ok, err := st.include(sel.Directives)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			tokens, err := st.fieldTokens(sel)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", sel.Name, err)
			}
			out = append(out, selector.Entry{Field: sel.Name, Tokens: tokens})

		case *InlineFragment:
			ok, err := st.include(sel.Directives)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			sub, err := st.collect(sel.SelectionSet, visited)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)

		case *FragmentSpread:
			ok, err := st.include(sel.Directives)
			if err != nil {
				return nil, err
			}
			if !ok || visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true
			def := st.doc.Fragments.ForName(sel.Name)
			if def == nil {
				continue
			}
			if ok, err = st.include(def.Directives); err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			sub, err := st.collect(def.SelectionSet, visited)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

func (st *state) fieldTokens(f *Field) ([]selector.Token, error) {
	var tokens []selector.Token
	if len(f.Arguments) > 0 {
		args := make(map[string]any, len(f.Arguments))
		for _, a := range f.Arguments {
			v, err := astValueToGo(a.Value, st.variables)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", a.Name, err)
			}
			args[a.Name] = v
		}
		tokens = append(tokens, args)
	}
	if len(f.SelectionSet) > 0 {
		decl, err := st.collect(f.SelectionSet, map[string]bool{})
		if err != nil {
			return nil, err
		}
		sub, err := selector.Normalize(decl)
		if err != nil {
			return nil, err
		}
		if len(sub) > 0 {
			tokens = append(tokens, sub)
		}
	}
	if len(tokens) == 0 {
		tokens = []selector.Token{true}
	}
	return tokens, nil
}

// include evaluates @skip and @include.
func (st *state) include(directives DirectiveList) (bool, error) {
	if d := directives.ForName("skip"); d != nil {
		b, ok, err := st.directiveIf(d)
		if err != nil {
			return false, err
		}
		if ok && b {
			return false, nil
		}
	}
	if d := directives.ForName("include"); d != nil {
		b, ok, err := st.directiveIf(d)
		if err != nil {
			return false, err
		}
		if ok && !b {
			return false, nil
		}
	}
	return true, nil
}

func (st *state) directiveIf(d *Directive) (bool, bool, error) {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false, nil
	}
	v, err := astValueToGo(arg.Value, st.variables)
	if err != nil {
		return false, false, fmt.Errorf("@%s: %w", d.Name, err)
	}
	b, ok := v.(bool)
	return b, ok, nil
}
