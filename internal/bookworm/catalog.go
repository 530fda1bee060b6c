package bookworm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/mitchellh/mapstructure"
	"github.com/sha1n/mcp-bookworm-server/internal/domain"
	"github.com/sha1n/mcp-bookworm-server/internal/query"
)

// ErrUnknownField indicates a field the counting service does not support
var ErrUnknownField = errors.New("field not supported by this bookworm")

// DefaultSearchLimit is the number of hits returned when none is requested.
const DefaultSearchLimit = 10

// FieldInfo is one record of the field catalog.
type FieldInfo struct {
	Name        string `mapstructure:"name" json:"name"`
	DBName      string `mapstructure:"dbname" json:"dbname,omitempty"`
	Type        string `mapstructure:"type" json:"type"`
	Description string `mapstructure:"description" json:"description,omitempty"`
	TableName   string `mapstructure:"tablename" json:"tablename,omitempty"`
	Anchor      string `mapstructure:"anchor" json:"anchor,omitempty"`
}

// SearchHit is a catalog search result.
type SearchHit struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}

// Catalog holds the fields of one database, with an in-memory full-text
// index over names and descriptions.
type Catalog struct {
	database string
	fields   []FieldInfo
	byName   map[string]FieldInfo
	index    bleve.Index
}

// DecodeFields decodes a returnPossibleFields response. Records are decoded
// weakly typed since services disagree on scalar types; records without a
// name are skipped.
func DecodeFields(raw []byte) ([]FieldInfo, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse field catalog: %w", err)
	}

	fields := make([]FieldInfo, 0, len(records))
	for i, rec := range records {
		var f FieldInfo
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &f,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(rec); err != nil {
			return nil, fmt.Errorf("field record %d: %w", i, err)
		}
		if f.Name == "" {
			continue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// LoadCatalog fetches the field catalog of database.
func LoadCatalog(ctx context.Context, f Fetcher, database string) (*Catalog, error) {
	if database == "" {
		return nil, query.ErrMissingDatabase
	}
	raw, err := f.Fetch(ctx, map[string]any{
		"database": database,
		"method":   query.MethodPossibleFields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch field catalog: %w", err)
	}
	fields, err := DecodeFields(raw)
	if err != nil {
		return nil, err
	}
	return NewCatalog(database, fields)
}

// CreateFieldMapping creates the Bleve index mapping for catalog fields.
func CreateFieldMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Terms - analyzed for full-text search
	termsField := bleve.NewTextFieldMapping()
	termsField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(domain.FieldTerms, termsField)

	// Name - keyword, stored
	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = keyword.Name
	nameField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldName, nameField)

	// Type and description - stored for display only
	typeField := bleve.NewTextFieldMapping()
	typeField.Index = false
	typeField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldType, typeField)

	descField := bleve.NewTextFieldMapping()
	descField.Index = false
	descField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldDescription, descField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// NewCatalog indexes fields for database. Later duplicates of a name are
// ignored.
func NewCatalog(database string, fields []FieldInfo) (*Catalog, error) {
	index, err := bleve.NewMemOnly(CreateFieldMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create field index: %w", err)
	}

	c := &Catalog{
		database: database,
		byName:   make(map[string]FieldInfo, len(fields)),
		index:    index,
	}

	batch := index.NewBatch()
	for _, f := range fields {
		if _, dup := c.byName[f.Name]; dup {
			continue
		}
		c.byName[f.Name] = f
		c.fields = append(c.fields, f)

		doc := domain.FieldDocument{
			Name:        f.Name,
			Type:        f.Type,
			Description: f.Description,
			Terms:       strings.TrimSpace(strings.ReplaceAll(f.Name, "_", " ") + " " + f.Description),
		}
		if err := batch.Index(f.Name, doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index field %s: %w", f.Name, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index fields: %w", err)
	}

	return c, nil
}

// Database returns the database the catalog describes.
func (c *Catalog) Database() string {
	return c.database
}

// Fields returns the catalog records in service order.
func (c *Catalog) Fields() []FieldInfo {
	return append([]FieldInfo{}, c.fields...)
}

// Names returns the field names in service order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.fields))
	for _, f := range c.fields {
		names = append(names, f.Name)
	}
	return names
}

// Has reports whether name is a known field.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Lookup returns the record for name.
func (c *Catalog) Lookup(name string) (FieldInfo, bool) {
	f, ok := c.byName[name]
	return f, ok
}

// DTypes maps field names to their catalog types.
func (c *Catalog) DTypes() map[string]string {
	out := make(map[string]string, len(c.fields))
	for _, f := range c.fields {
		if f.Type != "" {
			out[f.Name] = f.Type
		}
	}
	return out
}

// Unknown returns the sorted, de-duplicated names not in the catalog.
func (c *Catalog) Unknown(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		if c.Has(n) || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Search finds fields whose name or description matches text. A limit of
// zero or less uses DefaultSearchLimit.
func (c *Catalog) Search(text string, limit int) ([]SearchHit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("search text cannot be empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	req := bleve.NewSearchRequest(buildFieldQuery(text))
	req.Size = limit
	req.Fields = []string{domain.FieldName, domain.FieldType, domain.FieldDescription}

	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("field search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := SearchHit{Name: h.ID, Score: h.Score}
		if f, ok := c.byName[h.ID]; ok {
			hit.Type = f.Type
			hit.Description = f.Description
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close releases the search index.
func (c *Catalog) Close() error {
	return c.index.Close()
}

// buildFieldQuery matches analyzed terms, or a substring of the raw name
// with a boost.
func buildFieldQuery(text string) bquery.Query {
	termsQuery := bleve.NewMatchQuery(text)
	termsQuery.SetField(domain.FieldTerms)

	nameQuery := bleve.NewWildcardQuery("*" + strings.ToLower(text) + "*")
	nameQuery.SetField(domain.FieldName)
	nameQuery.SetBoost(2.0)

	return bleve.NewDisjunctionQuery(termsQuery, nameQuery)
}
