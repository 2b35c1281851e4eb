package language

import (
	"fmt"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
)

type (
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	Directive           = ast.Directive
	DirectiveList       = ast.DirectiveList
	Value               = ast.Value
)

// astValueToGo converts a literal to a Go value, substituting variables.
// Ints stay int so they compare equal to declared selector payloads. A number
// that does not fit is reported as ErrSyntax.
func astValueToGo(value *Value, variables map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch value.Kind {
	case ast.Variable:
		return variables[value.Raw], nil
	case ast.IntValue:
		iv, err := strconv.Atoi(value.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: int %s: %w", ErrSyntax, value.Raw, err)
		}
		return iv, nil
	case ast.FloatValue:
		fv, err := strconv.ParseFloat(value.Raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: float %s: %w", ErrSyntax, value.Raw, err)
		}
		return fv, nil
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return value.Raw, nil
	case ast.BooleanValue:
		return value.Raw == "true", nil
	case ast.NullValue:
		return nil, nil
	case ast.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			v, err := astValueToGo(c.Value, variables)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case ast.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			v, err := astValueToGo(f.Value, variables)
			if err != nil {
				return nil, err
			}
			m[f.Name] = v
		}
		return m, nil
	default:
		return nil, nil
	}
}
