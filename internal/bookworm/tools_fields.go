package bookworm

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-bookworm-server/internal/query"
)

// DefaultValueLimit caps the values listed by field_values when no limit is
// given.
const DefaultValueLimit = 100

// ListFieldsArgument defines list_fields parameters.
type ListFieldsArgument struct {
	Database string `json:"database,omitempty" jsonschema_description:"Database to describe (defaults to the configured database)"`
}

// SearchFieldsArgument defines search_fields parameters.
type SearchFieldsArgument struct {
	Query    string `json:"query" jsonschema_description:"Words to look for in field names and descriptions"`
	Database string `json:"database,omitempty" jsonschema_description:"Database to search (defaults to the configured database)"`
	Limit    int    `json:"limit,omitempty" jsonschema_description:"Maximum number of fields to return"`
}

// FieldValuesArgument defines field_values parameters.
type FieldValuesArgument struct {
	Field    string   `json:"field" jsonschema_description:"Field whose values to list (e.g., publication_country)"`
	Database string   `json:"database,omitempty" jsonschema_description:"Database to query (defaults to the configured database)"`
	Where    []string `json:"where,omitempty" jsonschema_description:"Only list values occurring under these conditions (e.g., date_year>=1900)"`
	Limit    int      `json:"limit,omitempty" jsonschema_description:"Maximum number of values to return"`
}

// FieldsHandler handles the field catalog MCP tools.
type FieldsHandler struct {
	service *Service
}

// NewFieldsHandler creates a new fields handler.
func NewFieldsHandler(service *Service) *FieldsHandler {
	return &FieldsHandler{service: service}
}

// HandleList lists the field catalog.
func (h *FieldsHandler) HandleList(ctx context.Context, req *mcp.CallToolRequest, args ListFieldsArgument) (*mcp.CallToolResult, any, error) {
	catalog, err := h.service.Catalog(ctx, args.Database)
	if err != nil {
		return errorResult("Failed to load field catalog: %s", err), nil, nil
	}

	fields := catalog.Fields()
	if len(fields) == 0 {
		return textResult(fmt.Sprintf("No fields found in %s", catalog.Database())), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d fields in %s:\n\n", len(fields), catalog.Database()))
	sb.WriteString("| name | type | description |\n| --- | --- | --- |\n")
	for _, f := range fields {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", f.Name, f.Type, cell(f.Description)))
	}
	return textResult(sb.String()), nil, nil
}

// HandleSearch searches field names and descriptions.
func (h *FieldsHandler) HandleSearch(ctx context.Context, req *mcp.CallToolRequest, args SearchFieldsArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	catalog, err := h.service.Catalog(ctx, args.Database)
	if err != nil {
		return errorResult("Failed to load field catalog: %s", err), nil, nil
	}

	hits, err := catalog.Search(args.Query, args.Limit)
	if err != nil {
		return errorResult("Search failed: %s", err), nil, nil
	}
	if len(hits) == 0 {
		return textResult(fmt.Sprintf("No fields found for query: %s", args.Query)), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d fields for '%s':\n\n", len(hits), args.Query))
	for i, hit := range hits {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s)", i+1, hit.Name, hit.Type))
		if hit.Description != "" {
			sb.WriteString(": " + hit.Description)
		}
		sb.WriteString("\n")
	}
	return textResult(sb.String()), nil, nil
}

// HandleValues lists the values of a field, most frequent first.
func (h *FieldsHandler) HandleValues(ctx context.Context, req *mcp.CallToolRequest, args FieldValuesArgument) (*mcp.CallToolResult, any, error) {
	field := strings.TrimSpace(args.Field)
	if field == "" {
		return errorResult("Field cannot be empty"), nil, nil
	}

	session, err := h.service.Session(ctx, args.Database)
	if err != nil {
		return errorResult("Failed to open session: %s", err), nil, nil
	}

	var values []string
	if len(args.Where) > 0 {
		values, err = h.limitedValues(ctx, session, field, args.Where)
	} else {
		values, err = session.FieldValues(ctx, field)
	}
	if err != nil {
		return errorResult("Failed to list values of %s: %s", field, err), nil, nil
	}
	if len(values) == 0 {
		return textResult(fmt.Sprintf("No values found for %s", field)), nil, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = DefaultValueLimit
	}
	shown := values
	if len(shown) > limit {
		shown = shown[:limit]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Values of %s by text count:\n\n", field))
	for _, v := range shown {
		sb.WriteString("- " + v + "\n")
	}
	if len(shown) < len(values) {
		sb.WriteString(fmt.Sprintf("\n... and %d more values\n", len(values)-len(shown)))
	}
	return textResult(sb.String()), nil, nil
}

func (h *FieldsHandler) limitedValues(ctx context.Context, session *Session, field string, where []string) ([]string, error) {
	limits := make([]query.Fragment, 0, len(where))
	for _, c := range where {
		f, err := query.ParseCondition(c)
		if err != nil {
			return nil, err
		}
		limits = append(limits, f)
	}
	if err := session.SetSearchLimits(ctx, limits...); err != nil {
		return nil, err
	}
	return session.LimitedFieldValues(ctx, field)
}

// RegisterFieldTools registers list_fields, search_fields and field_values
// with an MCP server.
func RegisterFieldTools(server *mcp.Server, service *Service) {
	handler := NewFieldsHandler(service)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_fields",
		Description: "List the metadata fields of a Bookworm database with their types and descriptions",
	}, handler.HandleList)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_fields",
		Description: "Search Bookworm metadata fields by name or description",
	}, handler.HandleSearch)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "field_values",
		Description: "List the values of a Bookworm metadata field ordered by text count",
	}, handler.HandleValues)
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
