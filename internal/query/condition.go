package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCondition indicates a condition string that cannot be parsed.
var ErrInvalidCondition = errors.New("invalid condition")

// conditionOps maps condition syntax to operators. Two-character forms are
// listed first so ">=" is not read as ">".
var conditionOps = []struct {
	symbol string
	op     string
}{
	{">=", OpGte},
	{"<=", OpLte},
	{"!=", OpNe},
	{"==", OpEq},
	{"=", OpEq},
	{">", OpGt},
	{"<", OpLt},
	{"~", OpMatch},
}

// ParseCondition parses "field<op>value" into a fragment. Supported
// operators are = == != > >= < <= and ~ (regular expression match).
func ParseCondition(condition string) (Fragment, error) {
	name, op, value, err := splitCondition(condition)
	if err != nil {
		return nil, err
	}
	var t Term = NewFieldTerm(name)
	if name == WordFieldName {
		t = NewWordTerm()
	}
	return t.Compare(op, value)
}

func (b *Builder) parseCondition(condition string) (Fragment, error) {
	name, op, value, err := splitCondition(condition)
	if err != nil {
		return nil, err
	}
	return b.Term(name).Compare(op, value)
}

func splitCondition(condition string) (name, op string, value any, err error) {
	idx := strings.IndexAny(condition, "=!<>~")
	if idx <= 0 {
		return "", "", nil, fmt.Errorf("%w: %q", ErrInvalidCondition, condition)
	}

	name = strings.TrimSpace(condition[:idx])
	if name == "" {
		return "", "", nil, fmt.Errorf("%w: missing field in %q", ErrInvalidCondition, condition)
	}

	rest := condition[idx:]
	for _, candidate := range conditionOps {
		if strings.HasPrefix(rest, candidate.symbol) {
			raw := strings.TrimSpace(rest[len(candidate.symbol):])
			if raw == "" {
				return "", "", nil, fmt.Errorf("%w: missing value in %q", ErrInvalidCondition, condition)
			}
			if candidate.op == OpMatch {
				return name, candidate.op, unquote(raw), nil
			}
			return name, candidate.op, parseLiteral(raw), nil
		}
	}
	return "", "", nil, fmt.Errorf("%w: unknown operator in %q", ErrInvalidCondition, condition)
}

// parseLiteral reads integers, floats and booleans; anything else is a
// string. Quoted text is always a string.
func parseLiteral(raw string) any {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

func unquote(raw string) string {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	return raw
}
