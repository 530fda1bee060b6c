package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Node is one level of a nested count response: either a mapping from group
// values to deeper levels, or a leaf holding one count per count type.
// Mapping keys keep the order in which the service sent them.
type Node struct {
	Entries []Entry
	Counts  []float64
	leaf    bool
}

// Entry is one group value and the level beneath it.
type Entry struct {
	Key   string
	Value *Node
}

// Leaf returns a leaf node.
func Leaf(counts ...float64) *Node {
	return &Node{Counts: append([]float64{}, counts...), leaf: true}
}

// Branch returns a mapping node.
func Branch(entries ...Entry) *Node {
	return &Node{Entries: append([]Entry{}, entries...)}
}

// IsLeaf reports whether n holds counts.
func (n *Node) IsLeaf() bool {
	return n.leaf
}

// UnmarshalJSON decodes a nested response, keeping mapping key order.
func (n *Node) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeNode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}

// DecodeNode reads one nested response from r.
func DecodeNode(r io.Reader) (*Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	n, err := decodeNode(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after response", ErrShape)
	}
	return n, nil
}

func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: unexpected end of response", ErrShape)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, fmt.Errorf("%w: expected object or array, got %v", ErrShape, tok)
	}

	switch delim {
	case '{':
		n := &Node{}
		seen := make(map[string]bool)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("failed to read response key: %w", err)
			}
			key, _ := keyTok.(string)
			if seen[key] {
				return nil, fmt.Errorf("%w: duplicate key %q", ErrShape, key)
			}
			seen[key] = true
			child, err := decodeNode(dec)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			n.Entries = append(n.Entries, Entry{Key: key, Value: child})
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return n, nil
	case '[':
		n := &Node{leaf: true, Counts: []float64{}}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("failed to read counts: %w", err)
			}
			num, ok := tok.(json.Number)
			if !ok {
				return nil, fmt.Errorf("%w: expected a count, got %v", ErrShape, tok)
			}
			f, err := parseCount(num)
			if err != nil {
				return nil, err
			}
			n.Counts = append(n.Counts, f)
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %v", ErrShape, delim)
	}
}

// maxExactCount is the largest integer a float64 holds exactly.
const maxExactCount = 1 << 53

// parseCount reads a count, rejecting integers that would lose precision.
func parseCount(num json.Number) (float64, error) {
	if i, err := num.Int64(); err == nil {
		if i > maxExactCount || i < -maxExactCount {
			return 0, fmt.Errorf("%w: count %s exceeds exact range", ErrShape, num)
		}
		return float64(i), nil
	}
	f, err := num.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: bad count %s", ErrShape, num)
	}
	if f == math.Trunc(f) && math.Abs(f) > maxExactCount {
		return 0, fmt.Errorf("%w: count %s exceeds exact range", ErrShape, num)
	}
	return f, nil
}

// MarshalJSON encodes the node back to the service's nested format.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	if n.leaf {
		b, err := json.Marshal(n.Counts)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	buf.WriteByte('{')
	for i, e := range n.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if e.Value == nil {
			buf.WriteString("null")
			continue
		}
		if err := e.Value.encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
