package bookworm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

var testFields = []map[string]any{
	{"name": "date_year", "type": "integer", "description": "Year of publication", "dbname": "date_year"},
	{"name": "publication_country", "type": "character", "description": "Country of publication", "tablename": "countryLookup"},
	{"name": "genre", "type": "character", "description": "Literary genre"},
}

// fakeBookworm is an in-process counting service with canned responses.
type fakeBookworm struct {
	server  *httptest.Server
	mu      sync.Mutex
	queries []map[string]any
	status  int
	fields  []map[string]any
}

func newFakeBookworm(t *testing.T) *fakeBookworm {
	t.Helper()
	f := &fakeBookworm{status: http.StatusOK, fields: testFields}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBookworm) URL() string {
	return f.server.URL + "/cgi-bin"
}

func (f *fakeBookworm) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeBookworm) setFields(fields ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = append(append([]map[string]any{}, testFields...), fields...)
}

func (f *fakeBookworm) recorded() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any{}, f.queries...)
}

func (f *fakeBookworm) count(method string) int {
	n := 0
	for _, q := range f.recorded() {
		if q["method"] == method {
			n++
		}
	}
	return n
}

func (f *fakeBookworm) handle(w http.ResponseWriter, r *http.Request) {
	var q map[string]any
	if err := json.Unmarshal([]byte(r.URL.Query().Get("queryTerms")), &q); err != nil {
		http.Error(w, "bad queryTerms", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.queries = append(f.queries, q)
	status := f.status
	fields := f.fields
	f.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "service unavailable", status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if q["method"] == "returnPossibleFields" {
		_ = json.NewEncoder(w).Encode(fields)
		return
	}
	_, _ = w.Write([]byte(cannedResponse(q)))
}

func cannedResponse(q map[string]any) string {
	var groups []string
	if gs, ok := q["groups"].([]any); ok {
		for _, g := range gs {
			groups = append(groups, g.(string))
		}
	}

	switch strings.Join(groups, ",") {
	case "":
		return `[100,5000]`
	case "publication_country":
		return `{"France":[10,100],"USA":[30,300],"Unknown":[0,0]}`
	case "date_year":
		return `{"1900":[5,50],"1901":[7,70]}`
	case "genre,publication_country":
		return `{"poetry":{"France":[2,20],"USA":[1,10]},"fiction":{"USA":[9,90]}}`
	case "date_year,publication_country":
		return `{"1900":{"France":[3,30],"USA":[2,20]},"1901":{"USA":[7,70]}}`
	default:
		return `{}`
	}
}
