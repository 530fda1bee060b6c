package query

import (
	"errors"
	"fmt"
)

// Comparison operator spellings understood by the counting service.
const (
	OpEq    = "eq"
	OpNe    = "ne"
	OpGt    = "gt"
	OpGte   = "gte"
	OpLt    = "lt"
	OpLte   = "lte"
	OpMatch = "match"
)

// WordFieldName is the name of the full-text word field.
const WordFieldName = "word"

// ErrUnknownOperator indicates a comparison operator outside the service vocabulary.
var ErrUnknownOperator = errors.New("unknown comparison operator")

var operators = map[string]bool{
	OpEq:    true,
	OpNe:    true,
	OpGt:    true,
	OpGte:   true,
	OpLt:    true,
	OpLte:   true,
	OpMatch: true,
}

// IsOperator reports whether op is part of the comparison vocabulary.
func IsOperator(op string) bool {
	return operators[op]
}

// Term is a named, queryable field.
type Term interface {
	Name() string
	Compare(op string, value any) (Fragment, error)
}

// FieldTerm is a handle on a single field. Comparing it against a literal
// yields a Fragment; the term itself never changes.
type FieldTerm struct {
	name string
}

// NewFieldTerm returns a term for the named field.
func NewFieldTerm(name string) FieldTerm {
	return FieldTerm{name: name}
}

// Name returns the field name as sent to the service.
func (f FieldTerm) Name() string {
	return f.name
}

// Eq constrains the field to equal value.
func (f FieldTerm) Eq(value any) Fragment { return f.constraint(OpEq, value) }

// Ne constrains the field to differ from value.
func (f FieldTerm) Ne(value any) Fragment { return f.constraint(OpNe, value) }

// Gt constrains the field to be greater than value.
func (f FieldTerm) Gt(value any) Fragment { return f.constraint(OpGt, value) }

// Gte constrains the field to be greater than or equal to value.
func (f FieldTerm) Gte(value any) Fragment { return f.constraint(OpGte, value) }

// Lt constrains the field to be less than value.
func (f FieldTerm) Lt(value any) Fragment { return f.constraint(OpLt, value) }

// Lte constrains the field to be less than or equal to value.
func (f FieldTerm) Lte(value any) Fragment { return f.constraint(OpLte, value) }

// Match constrains the field to match a regular expression. The pattern is
// passed through untouched; only the service interprets it.
func (f FieldTerm) Match(pattern string) Fragment { return f.constraint(OpMatch, pattern) }

// Compare builds the fragment for an operator given by name.
func (f FieldTerm) Compare(op string, value any) (Fragment, error) {
	if !IsOperator(op) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
	return f.constraint(op, value), nil
}

func (f FieldTerm) constraint(op string, value any) Fragment {
	return Fragment{f.name: map[string]any{op: value}}
}

// WordTerm is the word field. The service expects equality on it as a bare
// value rather than an operator object, so Eq differs from FieldTerm.Eq.
type WordTerm struct {
	FieldTerm
}

// NewWordTerm returns the word term.
func NewWordTerm() WordTerm {
	return WordTerm{FieldTerm: NewFieldTerm(WordFieldName)}
}

// Eq constrains the word field to value.
func (w WordTerm) Eq(value any) Fragment {
	return Fragment{w.name: value}
}

// Compare builds the fragment for an operator given by name.
func (w WordTerm) Compare(op string, value any) (Fragment, error) {
	if op == OpEq {
		return w.Eq(value), nil
	}
	return w.FieldTerm.Compare(op, value)
}
