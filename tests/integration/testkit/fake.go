package testkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
)

// DefaultDatabase is the database served by FakeBookworm.
const DefaultDatabase = "federalist"

// PropEndpoint is the property under which FakeBookworm publishes its URL.
const PropEndpoint = "bookworm.endpoint"

// Field is a catalog record served by FakeBookworm.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// DefaultFields is the catalog FakeBookworm serves unless told otherwise.
var DefaultFields = []Field{
	{Name: "date_year", Type: "integer", Description: "Year of publication"},
	{Name: "publication_country", Type: "character", Description: "Country of publication"},
	{Name: "author", Type: "character", Description: "Author of the paper"},
}

// FakeBookworm is an in-process counting service. Responses are looked up
// by the comma-joined groups of the query; unknown group lists get an empty
// object. Canned leaves hold [TextCount, WordCount] and are reduced to the
// count types the query asks for.
type FakeBookworm struct {
	Fields    []Field
	Responses map[string]string

	server  *httptest.Server
	mu      sync.Mutex
	queries []map[string]any
}

// NewFakeBookworm creates a fake serving DefaultFields and a small canned
// corpus of papers by year, country and author.
func NewFakeBookworm() *FakeBookworm {
	return &FakeBookworm{
		Fields: DefaultFields,
		Responses: map[string]string{
			"":                    `[85,190000]`,
			"date_year":           `{"1787":[77,170000],"1788":[8,20000]}`,
			"author":              `{"Hamilton":[51,115000],"Madison":[29,60000],"Jay":[5,15000]}`,
			"publication_country": `{"USA":[85,190000],"Unknown":[0,0]}`,
			"date_year,author":    `{"1787":{"Hamilton":[45,100000],"Madison":[29,60000],"Jay":[3,10000]},"1788":{"Hamilton":[6,15000],"Jay":[2,5000]}}`,
		},
	}
}

// Start starts the HTTP server and publishes its endpoint.
func (f *FakeBookworm) Start() (map[string]any, error) {
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return map[string]any{PropEndpoint: f.Endpoint()}, nil
}

// Stop shuts the server down.
func (f *FakeBookworm) Stop() error {
	if f.server != nil {
		f.server.Close()
	}
	return nil
}

// GetName returns the service name.
func (f *FakeBookworm) GetName() string {
	return "fake-bookworm"
}

// Endpoint returns the service URL, empty before Start.
func (f *FakeBookworm) Endpoint() string {
	if f.server == nil {
		return ""
	}
	return f.server.URL + "/cgi-bin/dbbindings.py"
}

// Queries returns the decoded queries received so far.
func (f *FakeBookworm) Queries() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any{}, f.queries...)
}

// LastQuery returns the most recent query, nil when none was received.
func (f *FakeBookworm) LastQuery() map[string]any {
	q := f.Queries()
	if len(q) == 0 {
		return nil
	}
	return q[len(q)-1]
}

func (f *FakeBookworm) handle(w http.ResponseWriter, r *http.Request) {
	var q map[string]any
	if err := json.Unmarshal([]byte(r.URL.Query().Get("queryTerms")), &q); err != nil {
		http.Error(w, "bad queryTerms", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if q["method"] == "returnPossibleFields" {
		_ = json.NewEncoder(w).Encode(f.Fields)
		return
	}
	if resp, ok := f.Responses[groupsKey(q)]; ok {
		_, _ = w.Write([]byte(projectCounts(resp, q)))
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func groupsKey(q map[string]any) string {
	gs, _ := q["groups"].([]any)
	names := make([]string, 0, len(gs))
	for _, g := range gs {
		if s, ok := g.(string); ok {
			names = append(names, s)
		}
	}
	return strings.Join(names, ",")
}

var leafPattern = regexp.MustCompile(`\[(\d+),(\d+)\]`)

func projectCounts(resp string, q map[string]any) string {
	cts, ok := q["counttype"].([]any)
	if !ok || len(cts) == 0 {
		return resp
	}
	return leafPattern.ReplaceAllStringFunc(resp, func(leaf string) string {
		m := leafPattern.FindStringSubmatch(leaf)
		counts := make([]string, 0, len(cts))
		for _, ct := range cts {
			switch ct {
			case "TextCount":
				counts = append(counts, m[1])
			case "WordCount":
				counts = append(counts, m[2])
			default:
				counts = append(counts, "0")
			}
		}
		return "[" + strings.Join(counts, ",") + "]"
	})
}
