package bookworm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// CacheVersion is the current schema version of a value manifest
	CacheVersion = 1

	// CacheLockTimeout bounds the wait for another writer
	CacheLockTimeout = 10 * time.Second
)

// ValueManifest stores the cached field values of one database.
type ValueManifest struct {
	Version  int                    `json:"version"`
	Endpoint string                 `json:"endpoint"`
	Database string                 `json:"database"`
	Fields   map[string]FieldValues `json:"fields"`
	mu       sync.RWMutex           `json:"-"`
}

// FieldValues is the cached value list of a single field, most frequent
// first.
type FieldValues struct {
	Values    []string  `json:"values"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewValueManifest creates an empty manifest.
func NewValueManifest(endpoint, database string) *ValueManifest {
	return &ValueManifest{
		Version:  CacheVersion,
		Endpoint: endpoint,
		Database: database,
		Fields:   make(map[string]FieldValues),
	}
}

// LoadValueManifest reads a manifest from disk. A missing file yields an
// empty manifest.
func LoadValueManifest(path, endpoint, database string) (*ValueManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewValueManifest(endpoint, database), nil
		}
		return nil, fmt.Errorf("failed to read value cache: %w", err)
	}

	var m ValueManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse value cache: %w", err)
	}
	if m.Fields == nil {
		m.Fields = make(map[string]FieldValues)
	}
	if m.Version != CacheVersion {
		return NewValueManifest(endpoint, database), nil
	}
	return &m, nil
}

// Save writes the manifest atomically through a temp file and rename.
func (m *ValueManifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal value cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write value cache temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename value cache file: %w", err)
	}
	return nil
}

// Get returns the cached values of field.
func (m *ValueManifest) Get(field string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fv, ok := m.Fields[field]
	if !ok {
		return nil, false
	}
	return append([]string{}, fv.Values...), true
}

// Set stores the values of field.
func (m *ValueManifest) Set(field string, values []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fields[field] = FieldValues{
		Values:    append([]string{}, values...),
		FetchedAt: time.Now().UTC(),
	}
}

// Remove drops a field from the manifest.
func (m *ValueManifest) Remove(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Fields, field)
}

// FieldNames returns the cached field names in sorted order.
func (m *ValueManifest) FieldNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValueCache persists field values under a directory, one manifest per
// endpoint and database. Writers from several processes are serialized with
// a file lock; readers see either the old or the new file.
type ValueCache struct {
	dir string
	mu  sync.Mutex
}

// NewValueCache creates a cache rooted at dir.
func NewValueCache(dir string) *ValueCache {
	return &ValueCache{dir: dir}
}

// Dir returns the cache root.
func (c *ValueCache) Dir() string {
	return c.dir
}

// Path returns the manifest path for endpoint and database.
func (c *ValueCache) Path(endpoint, database string) string {
	return filepath.Join(c.dir, "values", CacheID(endpoint, database)+".json")
}

// Get returns cached values, reporting false on a miss or unreadable file.
func (c *ValueCache) Get(endpoint, database, field string) ([]string, bool) {
	m, err := LoadValueManifest(c.Path(endpoint, database), endpoint, database)
	if err != nil {
		return nil, false
	}
	return m.Get(field)
}

// Put stores values for field. The manifest is re-read under the lock so
// entries written by other processes are kept.
func (c *ValueCache) Put(ctx context.Context, endpoint, database, field string, values []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(endpoint, database)
	lock := newFileLock(path + ".lock")
	if err := lock.lock(ctx, CacheLockTimeout); err != nil {
		return fmt.Errorf("failed to lock value cache: %w", err)
	}
	defer func() { _ = lock.unlock() }()

	m, err := LoadValueManifest(path, endpoint, database)
	if err != nil {
		m = NewValueManifest(endpoint, database)
	}
	m.Set(field, values)
	return m.Save(path)
}

// Invalidate removes a cached field.
func (c *ValueCache) Invalidate(ctx context.Context, endpoint, database, field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(endpoint, database)
	lock := newFileLock(path + ".lock")
	if err := lock.lock(ctx, CacheLockTimeout); err != nil {
		return fmt.Errorf("failed to lock value cache: %w", err)
	}
	defer func() { _ = lock.unlock() }()

	m, err := LoadValueManifest(path, endpoint, database)
	if err != nil {
		return err
	}
	m.Remove(field)
	return m.Save(path)
}

// CacheID converts an endpoint and database into a filesystem-safe name.
//
// Examples:
//   - http://localhost:10012/cgi-bin, federalist -> localhost_10012_cgi-bin_federalist
//   - https://bookworm.example.org/, hathipd -> bookworm.example.org_hathipd
func CacheID(endpoint, database string) string {
	s := endpoint
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")
	s = sanitizeForFilesystem(s)
	if database != "" {
		s += "_" + sanitizeForFilesystem(database)
	}
	return s
}

// sanitizeForFilesystem replaces characters unsafe in file names with
// underscores.
func sanitizeForFilesystem(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '?', '&', '=', '@', '*', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}
