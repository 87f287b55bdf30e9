package query

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRouteTemplates(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "structured verbatim",
			req:  Request{Mode: ModeStructured, Text: "SELECT * FROM [Form] AS n WHERE n.x = 'a+b'", Escape: true},
			want: "SELECT * FROM [Form] AS n WHERE n.x = 'a+b'",
		},
		{
			name: "relevance",
			req:  Request{Mode: ModeRelevance, Text: "chest-pain", Escape: true},
			want: `SELECT n.* FROM [Node] AS n WHERE NATIVE('lucene', 'chest\-pain') AND n.'sling:resourceSuperType' = 'Resource'`,
		},
		{
			name: "fulltext",
			req:  Request{Mode: ModeFullText, Text: "O'Brien", Escape: true},
			want: `SELECT n.* FROM [Node] AS n WHERE CONTAINS(*, 'O''Brien')`,
		},
		{
			name: "fulltext unescaped",
			req:  Request{Mode: ModeFullText, Text: "a OR b", Escape: false},
			want: `SELECT n.* FROM [Node] AS n WHERE CONTAINS(*, 'a OR b')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &memExec{}
			e := NewEngine(exec, DefaultSettings(), nil)
			if _, err := e.Route(tt.req); err != nil {
				t.Fatal(err)
			}
			if len(exec.structured) != 1 || exec.structured[0] != tt.want {
				t.Errorf("got %q, want %q", exec.structured, tt.want)
			}
			if len(exec.ancestorPath) != 0 {
				t.Errorf("quick search ran for a %s request", tt.req.Mode)
			}
		})
	}
}

func TestRouteNone(t *testing.T) {
	exec := &memExec{}
	seq, err := NewEngine(exec, DefaultSettings(), nil).Route(Request{})
	if err != nil {
		t.Fatal(err)
	}
	if len(collect(seq)) != 0 || len(exec.structured)+len(exec.ancestorPath) != 0 {
		t.Fatal("a request without a mode must not query")
	}
}

func TestSearchQuick(t *testing.T) {
	_, answers := formTree("chest pain", "no", "CHEST", "chest", "chest x")
	obs := &recordingObserver{}
	e := NewEngine(&memExec{nodes: answers}, DefaultSettings(), obs)

	resp, err := e.Search(Request{Mode: ModeQuick, Text: "chest", Escape: true, Offset: 1, Limit: 2, Echo: "42"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.TotalRows != 4 || resp.ReturnedRows != 2 || len(resp.Rows) != 2 {
		t.Fatalf("unexpected window: %+v", resp)
	}
	if resp.Req != "42" || resp.Offset != 1 || resp.Limit != 2 {
		t.Errorf("summary not echoed: %+v", resp)
	}
	if resp.Rows[0].Node().Path() != "/Forms/f2" {
		t.Errorf("expected /Forms/f2 first, got %s", resp.Rows[0].Node().Path())
	}
	if len(obs.skipped) != 1 || obs.skipped[0] != SkipNoMatch {
		t.Errorf("expected one no_match skip, got %v", obs.skipped)
	}
	if len(obs.served) != 1 || obs.served[0].Total != 4 {
		t.Errorf("observer not told about the query: %+v", obs.served)
	}
}

func TestSearchResponseJSON(t *testing.T) {
	_, answers := formTree("the quick brown fox")
	e := NewEngine(&memExec{nodes: answers}, DefaultSettings(), nil)

	resp, err := e.Search(Request{Mode: ModeQuick, Text: "quick", Escape: true, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Req          string           `json:"req"`
		ReturnedRows int64            `json:"returnedrows"`
		TotalRows    int64            `json:"totalrows"`
		Rows         []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ReturnedRows != 1 || decoded.TotalRows != 1 || len(decoded.Rows) != 1 {
		t.Fatalf("unexpected body: %s", data)
	}
	row := decoded.Rows[0]
	if row["@path"] != "/Forms/f0" || row["subject"] != "s" {
		t.Errorf("row does not carry the form fields: %v", row)
	}
	match, ok := row[MatchKey].(map[string]any)
	if !ok {
		t.Fatalf("row has no %s: %v", MatchKey, row)
	}
	if match["question"] != "Diagnosis" || match["before"] != "the " || match["text"] != "quick" ||
		match["after"] != " brown f..." || match["isNotes"] != false {
		t.Errorf("unexpected match metadata: %v", match)
	}
}

func TestSearchEmptyRowsArray(t *testing.T) {
	e := NewEngine(&memExec{}, DefaultSettings(), nil)
	resp, err := e.Search(Request{Mode: ModeFullText, Text: "x", Escape: true, Offset: 100, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(resp)
	want := `{"req":"","offset":100,"limit":10,"returnedrows":0,"totalrows":0,"rows":[]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestSearchExecutionError(t *testing.T) {
	obs := &recordingObserver{}
	e := NewEngine(&memExec{err: errBroken}, DefaultSettings(), obs)

	for _, mode := range []Mode{ModeStructured, ModeRelevance, ModeFullText, ModeQuick} {
		resp, err := e.Search(Request{Mode: mode, Text: "x"})
		if resp != nil || !errors.Is(err, ErrExecution) {
			t.Errorf("%s: expected execution error, got %v %v", mode, resp, err)
		}
	}
	if len(obs.errs) != 4 || obs.errs[0] == nil {
		t.Errorf("observer did not see the failures: %v", obs.errs)
	}
}

func TestSetSettings(t *testing.T) {
	exec := &memExec{}
	e := NewEngine(exec, Settings{}, nil)
	if e.Settings() != DefaultSettings() {
		t.Fatalf("zero settings should take defaults, got %+v", e.Settings())
	}

	e.SetSettings(Settings{ResourceSuperType: "Patient"})
	if _, err := e.Route(Request{Mode: ModeRelevance, Text: "x", Escape: true}); err != nil {
		t.Fatal(err)
	}
	want := `SELECT n.* FROM [Node] AS n WHERE NATIVE('lucene', 'x') AND n.'sling:resourceSuperType' = 'Patient'`
	if exec.structured[0] != want {
		t.Errorf("got %q", exec.structured[0])
	}
}
