package results

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShape indicates a response whose structure does not match the query's
// groups or count types.
var ErrShape = errors.New("response shape mismatch")

// Row is one flattened leaf: a key per group field holding the group value
// and a key per count type holding the count.
type Row map[string]any

// binding is a group field resolved to a value by an enclosing level.
type binding struct {
	field string
	value string
}

// Expand flattens a nested response into one row per leaf. Each mapping
// level consumes one group field, in order; leaves are paired with count
// types by position. Rows follow the response's key order depth first.
func Expand(resp *Node, groups, countTypes []string) ([]Row, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrShape)
	}
	return expand(resp, groups, countTypes, []binding{})
}

func expand(n *Node, groups, countTypes []string, resolved []binding) ([]Row, error) {
	if len(groups) == 0 {
		if n == nil || !n.IsLeaf() {
			return nil, shapeError(resolved, "expected counts, found a deeper grouping level")
		}
		if len(n.Counts) != len(countTypes) {
			return nil, shapeError(resolved, fmt.Sprintf("got %d counts for %d count types", len(n.Counts), len(countTypes)))
		}
		row := make(Row, len(resolved)+len(countTypes))
		for _, b := range resolved {
			row[b.field] = b.value
		}
		for i, ct := range countTypes {
			row[ct] = n.Counts[i]
		}
		return []Row{row}, nil
	}

	if n == nil || n.IsLeaf() {
		return nil, shapeError(resolved, fmt.Sprintf("expected values for group %q, found counts", groups[0]))
	}

	var rows []Row
	for _, e := range n.Entries {
		next := make([]binding, len(resolved), len(resolved)+1)
		copy(next, resolved)
		next = append(next, binding{field: groups[0], value: e.Key})

		sub, err := expand(e.Value, groups[1:], countTypes, next)
		if err != nil {
			return nil, err
		}
		rows = append(rows, sub...)
	}
	return rows, nil
}

func shapeError(resolved []binding, msg string) error {
	if len(resolved) == 0 {
		return fmt.Errorf("%w: %s", ErrShape, msg)
	}
	parts := make([]string, len(resolved))
	for i, b := range resolved {
		parts[i] = b.field + "=" + b.value
	}
	return fmt.Errorf("%w at %s: %s", ErrShape, strings.Join(parts, "/"), msg)
}
