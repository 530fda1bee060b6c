package bookworm

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-bookworm-server/internal/query"
	"github.com/sha1n/mcp-bookworm-server/internal/results"
)

// Output formats for query results.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// QueryArgument defines run_query parameters.
type QueryArgument struct {
	Database     string   `json:"database,omitempty" jsonschema_description:"Database to query (defaults to the configured database)"`
	Groups       []string `json:"groups,omitempty" jsonschema_description:"Fields to group counts by, outermost first (e.g., date_year)"`
	Where        []string `json:"where,omitempty" jsonschema_description:"Conditions as field<op>value, op one of = != > >= < <= ~ (e.g., date_year>=1900, word=whale)"`
	CountType    []string `json:"counttype,omitempty" jsonschema_description:"Count types (e.g., TextCount, WordCount, WordsPerMillion)"`
	Format       string   `json:"format,omitempty" jsonschema_description:"Output format: table, csv, or json (default table)"`
	DropZeros    bool     `json:"drop_zeros,omitempty" jsonschema_description:"Drop rows whose counts are all zero"`
	DropUnknowns bool     `json:"drop_unknowns,omitempty" jsonschema_description:"Drop rows with unknown or missing group values"`
	Limit        int      `json:"limit,omitempty" jsonschema_description:"Maximum number of rows to return"`
}

// QueryHandler handles the run_query MCP tool.
type QueryHandler struct {
	service *Service
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(service *Service) *QueryHandler {
	return &QueryHandler{service: service}
}

// Handle builds the query, runs it and renders the result table.
func (h *QueryHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args QueryArgument) (*mcp.CallToolResult, any, error) {
	format := strings.ToLower(strings.TrimSpace(args.Format))
	if format == "" {
		format = FormatTable
	}
	if format != FormatTable && format != FormatCSV && format != FormatJSON {
		return errorResult("Unsupported format %q (use table, csv, or json)", args.Format), nil, nil
	}

	d, err := h.buildDescriptor(ctx, args)
	if err != nil {
		return errorResult("Invalid query: %s", err), nil, nil
	}

	session, err := h.service.Session(ctx, d.Database)
	if err != nil {
		return errorResult("Failed to open session: %s", err), nil, nil
	}
	if err := session.Apply(ctx, d); err != nil {
		return errorResult("Invalid query: %s", err), nil, nil
	}

	res, err := session.Run(ctx)
	if err != nil {
		return errorResult("Query failed: %s", err), nil, nil
	}

	frame, err := res.Frame(results.FrameOptions{
		DropZeros:    args.DropZeros,
		DropUnknowns: args.DropUnknowns,
	})
	if err != nil {
		return errorResult("Unexpected response: %s", err), nil, nil
	}

	return h.formatResults(frame, format, h.rowLimit(args.Limit))
}

// buildDescriptor turns tool arguments into a query through the builder, so
// conditions are parsed the same way as on the command line. Fields renamed
// for colliding with a reserved name go out under their catalog names.
func (h *QueryHandler) buildDescriptor(ctx context.Context, args QueryArgument) (query.Descriptor, error) {
	b, err := h.service.Builder(ctx, args.Database)
	if err != nil {
		return query.Descriptor{}, err
	}
	if _, err := b.Where(args.Where...); err != nil {
		return query.Descriptor{}, err
	}

	terms := make([]query.Term, 0, len(args.Groups))
	for _, g := range args.Groups {
		if g = strings.TrimSpace(g); g != "" {
			terms = append(terms, b.Term(g))
		}
	}
	b.Groups(terms...)

	if len(args.CountType) > 0 {
		b.CountTypes(args.CountType...)
	}
	return b.WireDescriptor(), nil
}

func (h *QueryHandler) rowLimit(requested int) int {
	ceiling := h.service.GetSettings().MaxRows
	if requested > 0 && (ceiling <= 0 || requested < ceiling) {
		return requested
	}
	return ceiling
}

func (h *QueryHandler) formatResults(frame *results.Frame, format string, limit int) (*mcp.CallToolResult, any, error) {
	total := frame.Len()
	shown := frame
	if limit > 0 {
		shown = frame.Head(limit)
	}

	var body string
	switch format {
	case FormatCSV:
		csv, err := shown.CSV()
		if err != nil {
			return errorResult("Failed to render CSV: %s", err), nil, nil
		}
		body = csv
	case FormatJSON:
		data, err := shown.JSON()
		if err != nil {
			return errorResult("Failed to render JSON: %s", err), nil, nil
		}
		body = string(data)
	default:
		if total == 0 {
			return textResult("The query returned no rows."), nil, nil
		}
		body = shown.Markdown()
	}

	var sb strings.Builder
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	if shown.Len() < total {
		sb.WriteString(fmt.Sprintf("\n... showing %d of %d rows\n", shown.Len(), total))
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *QueryHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "run_query",
		Description: "Count texts and words in a Bookworm database, grouped by metadata fields and filtered by conditions",
	}
}

// RegisterQueryTool registers the query tool with an MCP server.
func RegisterQueryTool(server *mcp.Server, service *Service) {
	handler := NewQueryHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
		IsError: true,
	}
}
