package bookworm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sha1n/mcp-bookworm-server/internal/metrics"
	"github.com/sha1n/mcp-bookworm-server/internal/query"
	"github.com/sha1n/mcp-bookworm-server/internal/results"
)

// StatsYearCeiling bounds the date_year limit of Stats so that every text
// with a year qualifies.
const StatsYearCeiling = 10000

// SessionOptions configures a Session.
type SessionOptions struct {
	// Database overrides the database of Descriptor.
	Database string
	// Descriptor is the initial query. Zero value means the default query.
	Descriptor *query.Descriptor
	// VerifyFields loads the field catalog on creation so that groups and
	// limits are checked against it.
	VerifyFields bool
	// Catalog is a preloaded catalog, used regardless of VerifyFields.
	Catalog *Catalog
	// Cache persists field values across sessions. Optional.
	Cache  *ValueCache
	Logger *slog.Logger
}

// Session is a query bound to one service and database. Every change is
// validated; a change that fails validation is undone.
type Session struct {
	fetcher    Fetcher
	descriptor query.Descriptor
	lastGood   *query.Descriptor
	catalog    *Catalog
	cache      *ValueCache
	values     map[string][]string
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewSession creates a session. It fails with query.ErrMissingDatabase when
// neither the options nor the initial descriptor name a database.
func NewSession(ctx context.Context, f Fetcher, opts SessionOptions) (*Session, error) {
	d := query.NewDescriptor("")
	if opts.Descriptor != nil {
		d = opts.Descriptor.Clone()
	}
	if opts.Database != "" {
		d.Database = opts.Database
	}
	if d.Database == "" {
		return nil, query.ErrMissingDatabase
	}

	s := &Session{
		fetcher:    f,
		descriptor: d,
		catalog:    opts.Catalog,
		cache:      opts.Cache,
		values:     make(map[string][]string),
		logger:     opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if opts.VerifyFields && s.catalog == nil {
		if _, err := s.Catalog(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Database returns the queried database.
func (s *Session) Database() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor.Database
}

// Descriptor returns a copy of the current query.
func (s *Session) Descriptor() query.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor.Clone()
}

// Catalog returns the field catalog, fetching it on first use. Once loaded,
// later changes are checked against it.
func (s *Session) Catalog(ctx context.Context) (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog != nil {
		return s.catalog, nil
	}
	c, err := LoadCatalog(ctx, s.fetcher, s.descriptor.Database)
	if err != nil {
		return nil, err
	}
	s.catalog = c
	return c, nil
}

// Apply replaces the query. An empty database in d keeps the current one.
func (s *Session) Apply(ctx context.Context, d query.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := d.Clone()
	if next.Database == "" {
		next.Database = s.descriptor.Database
	}
	s.descriptor = next
	return s.validate(ctx)
}

// SetGroups replaces the group fields.
func (s *Session) SetGroups(ctx context.Context, groups ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptor.Groups = append([]string{}, groups...)
	return s.validate(ctx)
}

// SetSearchLimits folds the fragments into the single search limit.
func (s *Session) SetSearchLimits(ctx context.Context, fragments ...query.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := query.Fold(fragments...)
	s.descriptor.SearchLimits = []query.Fragment{}
	if merged != nil {
		s.descriptor.SearchLimits = []query.Fragment{merged}
	}
	return s.validate(ctx)
}

// SetCountTypes replaces the count types. No arguments restores the defaults.
func (s *Session) SetCountTypes(countTypes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(countTypes) == 0 {
		s.descriptor.CountType = query.DefaultCountTypes()
		return
	}
	s.descriptor.CountType = append([]string{}, countTypes...)
}

// Run sends the current query and wraps the response.
func (s *Session) Run(ctx context.Context) (*results.Results, error) {
	s.mu.Lock()
	if err := s.validate(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	d := s.descriptor.Clone()
	dtypes := s.dtypes()
	s.mu.Unlock()

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return s.run(ctx, d, dtypes)
}

// FieldValues returns every value of field, most frequent text count first.
// Results are kept for the session and, when a cache is configured, on disk.
func (s *Session) FieldValues(ctx context.Context, field string) ([]string, error) {
	s.mu.Lock()
	database := s.descriptor.Database
	if err := s.checkFields(field); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if values, ok := s.values[field]; ok {
		s.mu.Unlock()
		return append([]string{}, values...), nil
	}
	s.mu.Unlock()

	if s.cache != nil {
		values, ok := s.cache.Get(s.fetcher.Endpoint(), database, field)
		metrics.ObserveCacheLookup(ok)
		if ok {
			s.remember(field, values)
			return values, nil
		}
	}

	d := query.NewDescriptor(database)
	d.Groups = []string{field}
	values, err := s.valuesOf(ctx, d, field)
	if err != nil {
		return nil, err
	}

	s.remember(field, values)
	if s.cache != nil {
		if err := s.cache.Put(ctx, s.fetcher.Endpoint(), database, field, values); err != nil {
			s.logger.WarnContext(ctx, "Failed to cache field values", "field", field, "error", err)
		}
	}
	return values, nil
}

// LimitedFieldValues returns the values of field that occur under the
// current search limits. Word limits are dropped and field is appended to
// the current groups.
func (s *Session) LimitedFieldValues(ctx context.Context, field string) ([]string, error) {
	s.mu.Lock()
	if err := s.checkFields(field); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	d := s.descriptor.Clone()
	s.mu.Unlock()

	limits := make([]query.Fragment, 0, len(d.SearchLimits))
	for _, l := range d.SearchLimits {
		if rest := l.Without(query.WordFieldName); len(rest) > 0 {
			limits = append(limits, rest)
		}
	}
	d.SearchLimits = limits
	d.Groups = append(d.Groups, field)
	d.CountType = query.DefaultCountTypes()

	return s.valuesOf(ctx, d, field)
}

// Stats returns corpus-wide counts: every text with a year.
func (s *Session) Stats(ctx context.Context) (*results.Results, error) {
	d := query.NewDescriptor(s.Database())
	d.SearchLimits = []query.Fragment{
		query.NewFieldTerm("date_year").Lte(StatsYearCeiling),
	}
	return s.run(ctx, d, nil)
}

// valuesOf runs d and returns the distinct values of field in frame order.
func (s *Session) valuesOf(ctx context.Context, d query.Descriptor, field string) ([]string, error) {
	res, err := s.run(ctx, d, nil)
	if err != nil {
		return nil, err
	}
	frame, err := res.Frame(results.FrameOptions{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	values := make([]string, 0, frame.Len())
	for _, v := range frame.Column(field) {
		str := fmt.Sprint(v)
		if seen[str] {
			continue
		}
		seen[str] = true
		values = append(values, str)
	}
	return values, nil
}

func (s *Session) run(ctx context.Context, d query.Descriptor, dtypes map[string]string) (*results.Results, error) {
	raw, err := s.fetcher.Fetch(ctx, d)
	if err != nil {
		return nil, err
	}
	res, err := results.Decode(raw, d.Groups, d.CountType, dtypes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return res, nil
}

func (s *Session) remember(field string, values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[field] = append([]string{}, values...)
}

// validate checks the descriptor against the catalog and records it as the
// last good state, or restores the last good state. Callers hold s.mu.
func (s *Session) validate(ctx context.Context) error {
	if s.descriptor.Method != query.MethodReturnJSON {
		s.logger.WarnContext(ctx, "Ignoring custom method argument", "method", s.descriptor.Method)
		s.descriptor.Method = query.MethodReturnJSON
	}

	err := s.checkFields(s.descriptor.Groups...)
	if err == nil {
		err = s.checkFields(s.descriptor.LimitFields()...)
	}
	if err != nil {
		if s.lastGood != nil {
			s.descriptor = s.lastGood.Clone()
		}
		return err
	}

	good := s.descriptor.Clone()
	s.lastGood = &good
	return nil
}

// checkFields reports names missing from the catalog. Without a catalog
// every name passes.
func (s *Session) checkFields(names ...string) error {
	if s.catalog == nil {
		return nil
	}
	var check []string
	for _, n := range names {
		if n != query.WordFieldName {
			check = append(check, n)
		}
	}
	if bad := s.catalog.Unknown(check); len(bad) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownField, strings.Join(bad, ", "))
	}
	return nil
}

func (s *Session) dtypes() map[string]string {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.DTypes()
}
