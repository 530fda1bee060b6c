package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Service methods.
const (
	MethodReturnJSON     = "return_json"
	MethodPossibleFields = "returnPossibleFields"
)

// Count types.
const (
	CountText = "TextCount"
	CountWord = "WordCount"
)

// DefaultWordsCollation is the collation used unless a query overrides it.
const DefaultWordsCollation = "Case_Sensitive"

// ErrMissingDatabase indicates a query without a target database.
var ErrMissingDatabase = errors.New("no database specified")

// DefaultCountTypes returns the count types requested when none are given.
func DefaultCountTypes() []string {
	return []string{CountText, CountWord}
}

// Descriptor is the query document sent to the counting service.
type Descriptor struct {
	Database       string     `json:"database" yaml:"database"`
	Method         string     `json:"method" yaml:"method"`
	SearchLimits   []Fragment `json:"search_limits" yaml:"search_limits"`
	CompareLimits  []Fragment `json:"compare_limits" yaml:"compare_limits"`
	Groups         []string   `json:"groups" yaml:"groups"`
	CountType      []string   `json:"counttype" yaml:"counttype"`
	WordsCollation string     `json:"words_collation,omitempty" yaml:"words_collation,omitempty"`
}

// NewDescriptor returns the default descriptor for database.
func NewDescriptor(database string) Descriptor {
	return Descriptor{
		Database:       database,
		Method:         MethodReturnJSON,
		SearchLimits:   []Fragment{},
		CompareLimits:  []Fragment{},
		Groups:         []string{},
		CountType:      DefaultCountTypes(),
		WordsCollation: DefaultWordsCollation,
	}
}

// Validate checks the fields every query needs.
func (d Descriptor) Validate() error {
	if d.Database == "" {
		return ErrMissingDatabase
	}
	if len(d.CountType) == 0 {
		return errors.New("at least one count type is required")
	}
	return nil
}

// Clone copies the descriptor's slices. Fragments are shared since they are
// never modified.
func (d Descriptor) Clone() Descriptor {
	c := d
	c.SearchLimits = append([]Fragment{}, d.SearchLimits...)
	c.CompareLimits = append([]Fragment{}, d.CompareLimits...)
	c.Groups = append([]string{}, d.Groups...)
	c.CountType = append([]string{}, d.CountType...)
	return c
}

// LimitFields returns the field names referenced by the search limits.
func (d Descriptor) LimitFields() []string {
	return Fold(d.SearchLimits...).Fields()
}

// JSON encodes the descriptor for the wire.
func (d Descriptor) JSON() ([]byte, error) {
	return json.Marshal(d)
}

func (d Descriptor) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%+v", map[string]any{"database": d.Database, "groups": d.Groups})
	}
	return string(b)
}

// rawDescriptor mirrors Descriptor with loosely typed slots, since files
// written by hand give limits as one object or a list and groups as a
// string or a list.
type rawDescriptor struct {
	Database       string `yaml:"database"`
	Method         string `yaml:"method"`
	SearchLimits   any    `yaml:"search_limits"`
	CompareLimits  any    `yaml:"compare_limits"`
	Groups         any    `yaml:"groups"`
	CountType      any    `yaml:"counttype"`
	WordsCollation string `yaml:"words_collation"`
}

// ParseDescriptor decodes a descriptor from JSON or YAML. Missing slots take
// their defaults; the database may be left empty for the caller to fill.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var raw rawDescriptor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("failed to decode descriptor: %w", err)
	}

	d := NewDescriptor(raw.Database)
	if raw.Method != "" {
		d.Method = raw.Method
	}
	if raw.WordsCollation != "" {
		d.WordsCollation = raw.WordsCollation
	}

	var err error
	if d.SearchLimits, err = limitList(raw.SearchLimits); err != nil {
		return Descriptor{}, fmt.Errorf("search_limits: %w", err)
	}
	if d.CompareLimits, err = limitList(raw.CompareLimits); err != nil {
		return Descriptor{}, fmt.Errorf("compare_limits: %w", err)
	}
	if raw.Groups != nil {
		if d.Groups, err = stringList(raw.Groups); err != nil {
			return Descriptor{}, fmt.Errorf("groups: %w", err)
		}
	}
	if raw.CountType != nil {
		if d.CountType, err = stringList(raw.CountType); err != nil {
			return Descriptor{}, fmt.Errorf("counttype: %w", err)
		}
	}
	return d, nil
}

func limitList(v any) ([]Fragment, error) {
	switch t := v.(type) {
	case nil:
		return []Fragment{}, nil
	case []any:
		out := make([]Fragment, 0, len(t))
		for i, item := range t {
			f, err := AsFragment(item)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		f, err := AsFragment(v)
		if err != nil {
			return nil, err
		}
		if len(f) == 0 {
			return []Fragment{}, nil
		}
		return []Fragment{f}, nil
	}
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}
