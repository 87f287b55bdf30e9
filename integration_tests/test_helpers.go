package integration_tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/cardsdata/formquery/pkg/api"
	"github.com/cardsdata/formquery/pkg/metrics"
	"github.com/cardsdata/formquery/pkg/query"
	"github.com/cardsdata/formquery/pkg/repository"
	"github.com/prometheus/client_golang/prometheus"
)

// FixtureNodes is the number of nodes in testdata/forms.yaml.
const FixtureNodes = 14

// Stack is a repository loaded with the test fixture and served over HTTP
// the same way `formquery serve` wires it.
type Stack struct {
	Repo    *repository.Repository
	Engine  *query.Engine
	Server  *api.Server
	Metrics *metrics.Metrics
	HTTP    *httptest.Server
}

// NewStack builds a Stack in a temporary directory with default settings.
func NewStack(t *testing.T) *Stack {
	t.Helper()

	repo, err := repository.Open(filepath.Join(t.TempDir(), "repository.db"))
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Logf("Warning: failed to close repository: %v", err)
		}
	})

	f, err := os.Open(filepath.Join("testdata", "forms.yaml"))
	if err != nil {
		t.Fatalf("Failed to open fixture: %v", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := repo.Import(f); err != nil {
		t.Fatalf("Failed to import fixture: %v", err)
	}

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	engine := query.NewEngine(repo, query.DefaultSettings(), m)
	server := api.NewServer(engine, repo, m)
	handler, err := server.Handler(true)
	if err != nil {
		t.Fatalf("Failed to build handler: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return &Stack{Repo: repo, Engine: engine, Server: server, Metrics: m, HTTP: ts}
}

// QueryResult is the decoded body of a /query call.
type QueryResult struct {
	Status       int              `json:"-"`
	Req          string           `json:"req"`
	ReturnedRows int64            `json:"returnedrows"`
	TotalRows    int64            `json:"totalrows"`
	Rows         []map[string]any `json:"rows"`
	Error        string           `json:"error"`
	Message      string           `json:"message"`
}

// Paths returns the @path of every row.
func (r *QueryResult) Paths() []string {
	paths := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		p, _ := row["@path"].(string)
		paths = append(paths, p)
	}
	return paths
}

// Query calls GET /query with params. Query text values are percent-encoded
// once more, as browser clients do.
func (s *Stack) Query(t *testing.T, params map[string]string) *QueryResult {
	t.Helper()

	values := url.Values{}
	for k, v := range params {
		switch k {
		case "query", "lucene", "fulltext", "quick":
			values.Set(k, url.QueryEscape(v))
		default:
			values.Set(k, v)
		}
	}

	resp, err := http.Get(s.HTTP.URL + "/query?" + values.Encode())
	if err != nil {
		t.Fatalf("GET /query failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	result := &QueryResult{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return result
}
