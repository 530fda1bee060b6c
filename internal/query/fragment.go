package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Logical operator keys for combinator nodes.
const (
	LogicalAnd = "and"
	LogicalOr  = "or"
)

// ErrNotFragment indicates an operand that cannot take part in a merge.
var ErrNotFragment = errors.New("operand is not a query fragment")

// Fragment maps field names to constraints. A constraint is an operator
// object, a sequence of operator objects, or, under the "and"/"or" keys, a
// pair of operand fragments. Distinct keys are conjoined by the service.
//
// Fragments are never modified after construction; every operation in this
// package returns a new value.
type Fragment map[string]any

// Merge combines f and other without dropping any constraint. See Merge.
func (f Fragment) Merge(other Fragment) Fragment {
	return Merge(f, other)
}

// Keys returns the top-level keys in sorted order.
func (f Fragment) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fields returns the sorted field names referenced anywhere in the fragment,
// descending into combinator operands.
func (f Fragment) Fields() []string {
	seen := make(map[string]bool)
	collectFields(map[string]any(f), seen)
	fields := make([]string, 0, len(seen))
	for name := range seen {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// Without returns a copy of f lacking the given key.
func (f Fragment) Without(key string) Fragment {
	out := make(Fragment, len(f))
	for k, v := range f {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// String renders the fragment as JSON.
func (f Fragment) String() string {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(f))
	}
	return string(b)
}

// Merge returns a fragment holding every key of a and b. Each value is
// normalized to a sequence; keys present on both sides get a's elements
// followed by b's. How several constraints on one key combine is left to the
// service.
func Merge(a, b Fragment) Fragment {
	out := make(Fragment, len(a)+len(b))
	for k, v := range a {
		var right []any
		if bv, ok := b[k]; ok {
			right = asSequence(bv)
		}
		out[k] = concat(asSequence(v), right)
	}
	for k, v := range b {
		if _, ok := a[k]; ok {
			continue
		}
		out[k] = concat(nil, asSequence(v))
	}
	return out
}

// Fold merges fragments left to right. A single fragment is returned as is
// and no fragments yields nil.
func Fold(fragments ...Fragment) Fragment {
	if len(fragments) == 0 {
		return nil
	}
	merged := fragments[0]
	for _, f := range fragments[1:] {
		merged = Merge(merged, f)
	}
	return merged
}

// FoldValues folds operands of unknown type, such as decoded JSON or YAML.
// Every operand is checked before anything is merged.
func FoldValues(values ...any) (Fragment, error) {
	fragments := make([]Fragment, 0, len(values))
	for i, v := range values {
		f, err := AsFragment(v)
		if err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
		fragments = append(fragments, f)
	}
	return Fold(fragments...), nil
}

// AsFragment converts a decoded mapping into a Fragment.
func AsFragment(v any) (Fragment, error) {
	switch t := v.(type) {
	case Fragment:
		return t, nil
	case map[string]any:
		return Fragment(t), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotFragment, v)
	}
}

// And joins two fragments under an explicit conjunction node.
func And(a, b Fragment) Fragment {
	return Fragment{LogicalAnd: []any{a, b}}
}

// Or joins two fragments under an explicit disjunction node.
func Or(a, b Fragment) Fragment {
	return Fragment{LogicalOr: []any{a, b}}
}

// asSequence returns the elements of v, treating a non-sequence (nil
// included) as a single element. Byte slices are scalars, as on the wire.
func asSequence(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []Fragment:
		seq := make([]any, len(t))
		for i := range t {
			seq[i] = t[i]
		}
		return seq
	case []byte:
		return []any{v}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	seq := make([]any, rv.Len())
	for i := range seq {
		seq[i] = rv.Index(i).Interface()
	}
	return seq
}

// concat allocates a fresh slice so no operand's backing array is shared.
func concat(left, right []any) []any {
	out := make([]any, 0, len(left)+len(right))
	out = append(out, left...)
	return append(out, right...)
}

func collectFields(m map[string]any, seen map[string]bool) {
	for k, v := range m {
		if k != LogicalAnd && k != LogicalOr {
			seen[k] = true
			continue
		}
		for _, operand := range asSequence(v) {
			switch t := operand.(type) {
			case Fragment:
				collectFields(map[string]any(t), seen)
			case map[string]any:
				collectFields(t, seen)
			}
		}
	}
}
