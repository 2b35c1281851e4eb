// Package language reads field requests written in GraphQL selection syntax.
//
//	{ user fancyName posts(limit: 2) { title } }
//
// Each selected field becomes one selector entry. Arguments become a single
// map token and a sub-selection becomes a nested selector.Set token; a field
// with neither is requested with the plain true marker. The outer braces may
// be omitted.
package language

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

var (
	// ErrSyntax reports a request that does not parse.
	ErrSyntax = errors.New("syntax error")
	// ErrUnknownOperation reports an operation name that is not in the document.
	ErrUnknownOperation = errors.New("unknown operation")
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// wrap adds the outer braces to a bare field list.
func wrap(source string) string {
	s := strings.TrimSpace(source)
	if strings.HasPrefix(s, "{") || keyword(s, "query") || keyword(s, "fragment") {
		return s
	}
	return "{" + s + "}"
}

func keyword(s, kw string) bool {
	if !strings.HasPrefix(s, kw) {
		return false
	}
	if len(s) == len(kw) {
		return true
	}
	c := s[len(kw)]
	return !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z')
}

// operation picks the named operation, or the only one when name is empty.
func operation(doc *QueryDocument, name string) (*OperationDefinition, error) {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0], nil
		}
		return nil, fmt.Errorf("%w: document has %d operations, name one", ErrUnknownOperation, len(doc.Operations))
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
}
