package bookworm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sha1n/mcp-bookworm-server/internal/config"
	"github.com/sha1n/mcp-bookworm-server/internal/query"
)

// Service hands out sessions against the configured counting service and
// keeps one field catalog per database.
type Service struct {
	settings *config.BookwormSettings
	client   *Client
	cache    *ValueCache
	catalogs map[string]*Catalog
	mu       sync.Mutex
}

// NewService creates a service from settings.
func NewService(settings *config.BookwormSettings, opts ...ClientOption) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}

	opts = append([]ClientOption{WithTimeout(settings.Timeout)}, opts...)
	client, err := NewClient(settings.Endpoint, opts...)
	if err != nil {
		return nil, err
	}

	var cache *ValueCache
	if settings.CacheDir != "" {
		cache = NewValueCache(settings.CacheDir)
	}

	return &Service{
		settings: settings,
		client:   client,
		cache:    cache,
		catalogs: make(map[string]*Catalog),
	}, nil
}

// GetSettings returns the service settings.
func (s *Service) GetSettings() *config.BookwormSettings {
	return s.settings
}

// Client returns the transport client.
func (s *Service) Client() *Client {
	return s.client
}

// Database resolves an optional database name against the configured
// default.
func (s *Service) Database(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if s.settings.Database != "" {
		return s.settings.Database, nil
	}
	return "", query.ErrMissingDatabase
}

// Catalog returns the field catalog of database, fetching it once.
func (s *Service) Catalog(ctx context.Context, database string) (*Catalog, error) {
	database, err := s.Database(database)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.catalogs[database]; ok {
		return c, nil
	}

	c, err := LoadCatalog(ctx, s.client, database)
	if err != nil {
		return nil, err
	}
	s.catalogs[database] = c
	slog.InfoContext(ctx, "Loaded field catalog", "database", database, "fields", len(c.fields))
	return c, nil
}

// Session opens a session on database with the configured count types.
func (s *Service) Session(ctx context.Context, database string) (*Session, error) {
	database, err := s.Database(database)
	if err != nil {
		return nil, err
	}

	opts := SessionOptions{
		Database: database,
		Cache:    s.cache,
	}
	if s.settings.VerifyFields {
		if opts.Catalog, err = s.Catalog(ctx, database); err != nil {
			return nil, err
		}
	}

	d := s.defaultDescriptor(database)
	opts.Descriptor = &d
	return NewSession(ctx, s.client, opts)
}

// Builder returns a query builder for database. When field verification is
// on, every catalog field is registered.
func (s *Service) Builder(ctx context.Context, database string) (*query.Builder, error) {
	database, err := s.Database(database)
	if err != nil {
		return nil, err
	}

	var fields []string
	if s.settings.VerifyFields {
		c, err := s.Catalog(ctx, database)
		if err != nil {
			return nil, err
		}
		fields = c.Names()
	}

	b, err := query.NewBuilder(database, fields, query.WithWordsCollation(s.settings.WordsCollation))
	if err != nil {
		return nil, err
	}
	return b.CountTypes(s.settings.CountType...), nil
}

// Close releases every catalog index.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for db, c := range s.catalogs {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("catalog %s: %w", db, err))
		}
		delete(s.catalogs, db)
	}
	return errors.Join(errs...)
}

func (s *Service) defaultDescriptor(database string) query.Descriptor {
	d := query.NewDescriptor(database)
	if len(s.settings.CountType) > 0 {
		d.CountType = append([]string{}, s.settings.CountType...)
	}
	if s.settings.WordsCollation != "" {
		d.WordsCollation = s.settings.WordsCollation
	}
	return d
}
