package query

import (
	"context"
	"log/slog"
)

// CollisionSuffix is appended to a requested field name that collides with a
// name reserved by the builder.
const CollisionSuffix = "_bw"

// reservedNames are the builder's own slots and accessors. A field requested
// under one of these names is registered with CollisionSuffix appended.
var reservedNames = map[string]bool{
	"database":       true,
	"method":         true,
	"query":          true,
	"search_limits":  true,
	"compare_limits": true,
	"groups":         true,
	"counttype":      true,
	WordFieldName:    true,
}

// IsReservedName reports whether name collides with a builder slot.
func IsReservedName(name string) bool {
	return reservedNames[name]
}

// Builder assembles a Descriptor from a registry of named field terms.
// Setters return the builder so calls can be chained.
type Builder struct {
	descriptor Descriptor
	terms      map[string]FieldTerm
	order      []string
	renamed    map[string]string
	word       WordTerm
	logger     *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for registry notices.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithWordsCollation overrides the default collation.
func WithWordsCollation(collation string) BuilderOption {
	return func(b *Builder) {
		if collation != "" {
			b.descriptor.WordsCollation = collation
		}
	}
}

// NewBuilder registers a term for each field name. Names that collide with a
// reserved name are renamed with CollisionSuffix and reported at warning
// level; the rename is also available from Renamed.
func NewBuilder(database string, fields []string, opts ...BuilderOption) (*Builder, error) {
	if database == "" {
		return nil, ErrMissingDatabase
	}

	b := &Builder{
		descriptor: NewDescriptor(database),
		terms:      make(map[string]FieldTerm, len(fields)),
		renamed:    make(map[string]string),
		word:       NewWordTerm(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, name := range fields {
		effective := name
		if IsReservedName(name) {
			effective = name + CollisionSuffix
			b.renamed[name] = effective
			b.logger.WarnContext(context.Background(), "Field conflicts with a reserved name, renaming",
				"field", name, "renamed_to", effective)
		}
		if _, exists := b.terms[effective]; exists {
			continue
		}
		b.terms[effective] = NewFieldTerm(effective)
		b.order = append(b.order, effective)
	}

	return b, nil
}

// Field returns the registered term for name. Renamed fields are found under
// their effective name.
func (b *Builder) Field(name string) (FieldTerm, bool) {
	t, ok := b.terms[name]
	return t, ok
}

// MustField is like Field but panics for unregistered names.
func (b *Builder) MustField(name string) FieldTerm {
	t, ok := b.terms[name]
	if !ok {
		panic("query: field not registered: " + name)
	}
	return t
}

// Word returns the word term.
func (b *Builder) Word() WordTerm {
	return b.word
}

// Term resolves a name to a term: the word term, a registered field, or an
// unregistered field used as is.
func (b *Builder) Term(name string) Term {
	if name == WordFieldName {
		return b.word
	}
	if t, ok := b.terms[name]; ok {
		return t
	}
	if renamed, ok := b.renamed[name]; ok {
		return b.terms[renamed]
	}
	return NewFieldTerm(name)
}

// Fields returns the registered terms in registration order.
func (b *Builder) Fields() []FieldTerm {
	out := make([]FieldTerm, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.terms[name])
	}
	return out
}

// Renamed maps requested field names to the names they were registered under.
func (b *Builder) Renamed() map[string]string {
	out := make(map[string]string, len(b.renamed))
	for k, v := range b.renamed {
		out[k] = v
	}
	return out
}

// SearchLimits folds the fragments into one and stores it as the only
// search limit. No fragments clears the limits.
func (b *Builder) SearchLimits(fragments ...Fragment) *Builder {
	b.descriptor.SearchLimits = foldedList(fragments)
	return b
}

// CompareLimits is SearchLimits for the comparison slot.
func (b *Builder) CompareLimits(fragments ...Fragment) *Builder {
	b.descriptor.CompareLimits = foldedList(fragments)
	return b
}

// Index stores each fragment as its own search limit entry, in order,
// without merging.
func (b *Builder) Index(fragments ...Fragment) *Builder {
	b.descriptor.SearchLimits = append([]Fragment{}, fragments...)
	return b
}

// Where parses conditions such as "date_year>=1900" and sets them as search
// limits. Nothing changes when any condition fails to parse.
func (b *Builder) Where(conditions ...string) (*Builder, error) {
	fragments := make([]Fragment, 0, len(conditions))
	for _, c := range conditions {
		f, err := b.parseCondition(c)
		if err != nil {
			return b, err
		}
		fragments = append(fragments, f)
	}
	return b.SearchLimits(fragments...), nil
}

// Groups replaces the group list with the names of the given terms.
func (b *Builder) Groups(terms ...Term) *Builder {
	groups := make([]string, 0, len(terms))
	for _, t := range terms {
		groups = append(groups, t.Name())
	}
	b.descriptor.Groups = groups
	return b
}

// CountTypes replaces the requested count types. No arguments restores the
// defaults.
func (b *Builder) CountTypes(countTypes ...string) *Builder {
	if len(countTypes) == 0 {
		b.descriptor.CountType = DefaultCountTypes()
		return b
	}
	b.descriptor.CountType = append([]string{}, countTypes...)
	return b
}

// Descriptor returns a copy of the assembled query.
func (b *Builder) Descriptor() Descriptor {
	return b.descriptor.Clone()
}

// WireDescriptor is Descriptor with renamed fields mapped back to the names
// the service knows them by, in groups and in both limit slots.
func (b *Builder) WireDescriptor() Descriptor {
	d := b.descriptor.Clone()
	if len(b.renamed) == 0 {
		return d
	}

	wire := make(map[string]string, len(b.renamed))
	for name, effective := range b.renamed {
		wire[effective] = name
	}
	for i, g := range d.Groups {
		if name, ok := wire[g]; ok {
			d.Groups[i] = name
		}
	}
	d.SearchLimits = wireLimits(d.SearchLimits, wire)
	d.CompareLimits = wireLimits(d.CompareLimits, wire)
	return d
}

func wireLimits(limits []Fragment, wire map[string]string) []Fragment {
	if limits == nil {
		return nil
	}
	out := make([]Fragment, len(limits))
	for i, f := range limits {
		out[i] = wireFragment(f, wire)
	}
	return out
}

func wireFragment(f Fragment, wire map[string]string) Fragment {
	out := make(Fragment, len(f))
	for k, v := range f {
		if k == LogicalAnd || k == LogicalOr {
			v = wireOperands(v, wire)
		}
		if name, ok := wire[k]; ok {
			k = name
		}
		out[k] = v
	}
	return out
}

func wireOperands(v any, wire map[string]string) any {
	seq := asSequence(v)
	out := make([]any, len(seq))
	for i, op := range seq {
		switch t := op.(type) {
		case Fragment:
			out[i] = wireFragment(t, wire)
		case map[string]any:
			out[i] = wireFragment(t, wire)
		default:
			out[i] = op
		}
	}
	return out
}

// String renders the full descriptor.
func (b *Builder) String() string {
	return b.descriptor.String()
}

func foldedList(fragments []Fragment) []Fragment {
	merged := Fold(fragments...)
	if merged == nil {
		return []Fragment{}
	}
	return []Fragment{merged}
}
