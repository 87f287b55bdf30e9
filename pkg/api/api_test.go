package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cardsdata/formquery/pkg/metrics"
	"github.com/cardsdata/formquery/pkg/query"
	"github.com/cardsdata/formquery/pkg/repository"
)

const fixture = `
nodes:
  - name: Questionnaires
    type: Folder
    children:
      - name: q
        type: Questionnaire
        fields: {title: Intake}
        children:
          - name: symptoms
            type: Question
            fields: {text: Main symptoms}
  - name: Forms
    type: Folder
    children:
      - name: f1
        type: Form
        fields: {status: complete}
        children:
          - name: a1
            type: Answer
            fields: {question: "ref:/Questionnaires/q/symptoms", value: Acute chest pain}
      - name: f2
        type: Form
        fields: {status: draft}
        children:
          - name: a1
            type: Answer
            fields: {question: "ref:/Questionnaires/q/symptoms", value: Chest tightness}
`

func setupTestServer(t *testing.T, compress bool) (*Server, *httptest.Server) {
	t.Helper()

	repo, err := repository.Open(filepath.Join(t.TempDir(), "repository.db"))
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	if _, err := repo.Import(strings.NewReader(fixture)); err != nil {
		t.Fatalf("Failed to import fixture: %v", err)
	}

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	engine := query.NewEngine(repo, query.DefaultSettings(), m)
	server := NewServer(engine, repo, m)

	handler, err := server.Handler(compress)
	if err != nil {
		t.Fatalf("Failed to build handler: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return server, ts
}

func getJSON(t *testing.T, rawURL string, into any) int {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp.StatusCode
}

func TestQueryEndpoint(t *testing.T) {
	_, ts := setupTestServer(t, false)

	tests := []struct {
		name      string
		query     string
		wantTotal float64
		wantRows  int
		wantReq   string
	}{
		{"quick search", "quick=chest&req=12", 2, 2, "12"},
		{"quick search page", "quick=chest&limit=1&offset=1", 2, 1, ""},
		{"structured", "query=" + url.QueryEscape("SELECT * FROM [Form] AS n WHERE n.status = 'draft'"), 1, 1, ""},
		{"fulltext", "fulltext=tightness", 1, 1, ""},
		{"relevance", "lucene=intake", 1, 1, ""},
		{"no mode", "limit=5", 0, 0, ""},
		{"bad limit falls back", "quick=chest&limit=lots", 2, 2, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			status := getJSON(t, ts.URL+"/query?"+tt.query, &body)
			if status != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %v", status, body)
			}
			if body["totalrows"] != tt.wantTotal {
				t.Errorf("totalrows = %v, want %v", body["totalrows"], tt.wantTotal)
			}
			rows, ok := body["rows"].([]any)
			if !ok || len(rows) != tt.wantRows {
				t.Errorf("rows = %v, want %d rows", body["rows"], tt.wantRows)
			}
			if body["req"] != tt.wantReq {
				t.Errorf("req = %v, want %q", body["req"], tt.wantReq)
			}
		})
	}
}

func TestQueryEndpointMatchMetadata(t *testing.T) {
	_, ts := setupTestServer(t, false)

	var body struct {
		Rows []map[string]any `json:"rows"`
	}
	getJSON(t, ts.URL+"/query?quick=chest", &body)
	if len(body.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(body.Rows))
	}

	row := body.Rows[0]
	if row["@path"] != "/Forms/f1" || row["status"] != "complete" {
		t.Errorf("Expected the form fields, got %v", row)
	}
	match, ok := row[query.MatchKey].(map[string]any)
	if !ok {
		t.Fatalf("Expected %s in row, got %v", query.MatchKey, row)
	}
	want := map[string]any{"question": "Main symptoms", "before": "Acute ", "text": "chest", "after": " pain", "isNotes": false}
	for k, v := range want {
		if match[k] != v {
			t.Errorf("match[%s] = %v, want %v", k, match[k], v)
		}
	}
}

func TestQueryEndpointErrors(t *testing.T) {
	_, ts := setupTestServer(t, false)

	for name, q := range map[string]string{
		"syntax error":   "query=" + url.QueryEscape("SELEC * FROM"),
		"bad escape":     "quick=%25ZZ",
		"unescaped text": "fulltext=" + url.QueryEscape("it's") + "&doNotEscapeQuery=true",
	} {
		t.Run(name, func(t *testing.T) {
			var body ErrorResponse
			status := getJSON(t, ts.URL+"/query?"+q, &body)
			if status != http.StatusInternalServerError {
				t.Errorf("Expected status 500, got %d", status)
			}
			if body.Error != UnknownError || body.Message == "" {
				t.Errorf("Unexpected error response: %+v", body)
			}
		})
	}
}

func TestGzip(t *testing.T) {
	_, ts := setupTestServer(t, true)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/query?limit=50&query="+url.QueryEscape("SELECT * FROM [Node] AS n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", resp.Header.Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("Failed to open gzip stream: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["totalrows"] != float64(8) {
		t.Errorf("Expected 8 nodes, got %v", body["totalrows"])
	}
}

func TestHealthAndStats(t *testing.T) {
	_, ts := setupTestServer(t, true)

	var health HealthResponse
	if status := getJSON(t, ts.URL+"/health", &health); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if health.Status != "ok" || health.Version == "" {
		t.Errorf("Unexpected health response: %+v", health)
	}

	var stats StatsResponse
	if status := getJSON(t, ts.URL+"/api/stats", &stats); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if stats.Repository.Total != 8 || stats.Repository.ByType["Form"] != 2 {
		t.Errorf("Unexpected stats: %+v", stats.Repository)
	}
	if stats.Settings.AggregateType != "Form" || stats.Settings.ContextWindow != 8 {
		t.Errorf("Unexpected settings: %+v", stats.Settings)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := setupTestServer(t, false)

	var discard map[string]any
	getJSON(t, ts.URL+"/query?quick=chest", &discard)
	getJSON(t, ts.URL+"/query?quick=%25ZZ", &discard)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`formquery_queries_total{mode="quick",outcome="ok"} 1`,
		`formquery_queries_total{mode="none",outcome="bad_request"} 1`,
		`formquery_http_requests_total{code="200",route="/query"} 1`,
		`formquery_http_requests_total{code="500",route="/query"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Metrics output lacks %q", want)
		}
	}
}

func TestCorsPreflight(t *testing.T) {
	_, ts := setupTestServer(t, false)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/query", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Missing CORS header")
	}
}

func wsDial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/query/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func wsRoundTrip(t *testing.T, conn *websocket.Conn, msg string) map[string]any {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write ws: %v", err)
	}
	return wsRead(t, conn)
}

func wsRead(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var reply map[string]any
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read ws: %v", err)
	}
	return reply
}

func TestQueryWebSocket(t *testing.T) {
	server, ts := setupTestServer(t, true)
	conn := wsDial(t, ts)

	reply := wsRoundTrip(t, conn, `{"quick": "chest", "limit": 1, "req": "a"}`)
	if reply["totalrows"] != float64(2) || reply["returnedrows"] != float64(1) || reply["req"] != "a" {
		t.Errorf("Unexpected reply: %v", reply)
	}

	reply = wsRoundTrip(t, conn, `{"query": "SELEC"}`)
	if reply["error"] != UnknownError {
		t.Errorf("Expected an error reply, got %v", reply)
	}

	reply = wsRoundTrip(t, conn, `not json`)
	if reply["error"] != UnknownError {
		t.Errorf("Expected an error reply, got %v", reply)
	}

	settings := query.DefaultSettings()
	settings.ContextWindow = 3
	server.NotifySettings(settings)

	event := wsRead(t, conn)
	if event["type"] != "settings" {
		t.Fatalf("Expected a settings event, got %v", event)
	}
	data, _ := event["data"].(map[string]any)
	if data["contextWindow"] != float64(3) {
		t.Errorf("Unexpected event data: %v", event["data"])
	}

	// The session keeps serving after an event.
	reply = wsRoundTrip(t, conn, `{"fulltext": "tightness"}`)
	if reply["totalrows"] != float64(1) {
		t.Errorf("Unexpected reply: %v", reply)
	}
}

func TestDecodeParams(t *testing.T) {
	values, err := decodeParams([]byte(`{"quick": "x", "limit": 5, "doNotEscapeQuery": true, "offset": null}`))
	if err != nil {
		t.Fatal(err)
	}
	if values.Get("quick") != "x" || values.Get("limit") != "5" || values.Get("doNotEscapeQuery") != "true" || values.Has("offset") {
		t.Errorf("Unexpected values: %v", values)
	}

	if _, err := decodeParams([]byte(`{"quick": ["a"]}`)); err == nil {
		t.Error("Expected an error for a list value")
	}
}
