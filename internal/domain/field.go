package domain

// FieldDocument is a catalog field as stored in the Bleve search index.
type FieldDocument struct {
	// Name is the field name used in groups and search limits.
	// Example: "date_year", "publication_country"
	Name string `json:"name"`

	// Type is the field type reported by the service.
	// Example: "integer", "character", "datetime"
	Type string `json:"type"`

	// Description is the human-readable description, possibly empty.
	Description string `json:"description"`

	// Terms is the searchable text: the name split on underscores followed
	// by the description.
	Terms string `json:"terms"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	FieldName        = "name"
	FieldType        = "type"
	FieldDescription = "description"
	FieldTerms       = "terms"
)
