package query

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestQuickQuery(t *testing.T) {
	a := NewAggregator(&memExec{}, DefaultSettings(), nil)

	got := a.QuickQuery("Héart 100%", true)
	want := `/jcr:root/Forms//*[jcr:like(fn:lower-case(@value), '%héart 100\%%') or jcr:like(fn:lower-case(@note), '%héart 100\%%')]`
	if got != want {
		t.Errorf("QuickQuery:\n got %s\nwant %s", got, want)
	}

	a = NewAggregator(&memExec{}, Settings{FormsRoot: "/Clinic/Forms/"}, nil)
	if got := a.QuickQuery("x", false); !strings.HasPrefix(got, "/jcr:root/Clinic/Forms//*[") {
		t.Errorf("unexpected root: %s", got)
	}
}

func TestAggregateValueMatch(t *testing.T) {
	forms, answers := formTree("Acute CHEST pain", "nothing here")
	exec := &memExec{nodes: answers[:1]}

	seq, err := NewAggregator(exec, DefaultSettings(), nil).Aggregate("chest", true)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	recs := collect(seq)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Node() != forms[0] {
		t.Errorf("expected the owning form, got %s", recs[0].Node().Path())
	}
	want := MatchMetadata{Question: "Diagnosis", Before: "Acute ", Text: "CHEST", After: " pain"}
	if *recs[0].Match != want {
		t.Errorf("match: got %+v, want %+v", *recs[0].Match, want)
	}
	if len(exec.ancestorPath) != 1 || !strings.Contains(exec.ancestorPath[0], "'%chest%'") {
		t.Errorf("unexpected ancestor-path queries: %v", exec.ancestorPath)
	}
}

func TestAggregatePicksFirstMatchingValue(t *testing.T) {
	_, answers := formTree("")
	answers[0].(*memNode).fields["value"] = []string{"alpha", "Beta blocker", "beta again"}

	seq, err := NewAggregator(&memExec{nodes: answers}, DefaultSettings(), nil).Aggregate("BETA", true)
	if err != nil {
		t.Fatal(err)
	}
	recs := collect(seq)
	if len(recs) != 1 || recs[0].Match.Text != "Beta" || recs[0].Match.After != " blocker" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestAggregateNoteMatch(t *testing.T) {
	_, answers := formTree("no match here")
	answers[0].(*memNode).fields["note"] = "contains target"

	seq, err := NewAggregator(&memExec{nodes: answers}, DefaultSettings(), nil).Aggregate("target", true)
	if err != nil {
		t.Fatal(err)
	}
	recs := collect(seq)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if !recs[0].Match.IsNotes || recs[0].Match.Text != "target" || recs[0].Match.Before != "...ontains " {
		t.Errorf("unexpected match: %+v", *recs[0].Match)
	}
}

func TestAggregateNumericValues(t *testing.T) {
	tests := []struct {
		name  string
		value any
		query string
		want  MatchMetadata
	}{
		{"integral number", float64(42), "42", MatchMetadata{Question: "Diagnosis", Text: "42"}},
		{"decimal number", 37.5, "7.5", MatchMetadata{Question: "Diagnosis", Before: "3", Text: "7.5"}},
		{"mixed array", []any{float64(120), "mmHg"}, "120", MatchMetadata{Question: "Diagnosis", Text: "120"}},
		{"boolean", true, "TRUE", MatchMetadata{Question: "Diagnosis", Text: "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, answers := formTree("")
			answers[0].(*memNode).fields["value"] = tt.value

			seq, err := NewAggregator(&memExec{nodes: answers}, DefaultSettings(), nil).Aggregate(tt.query, true)
			if err != nil {
				t.Fatal(err)
			}
			recs := collect(seq)
			if len(recs) != 1 {
				t.Fatalf("expected 1 record, got %d", len(recs))
			}
			if *recs[0].Match != tt.want {
				t.Errorf("match: got %+v, want %+v", *recs[0].Match, tt.want)
			}
		})
	}
}

func TestAggregateEmptyQuestionText(t *testing.T) {
	_, answers := formTree("target")
	answers[0].(*memNode).refs = map[string]*memNode{
		"question": {path: "/q", typ: "Question", fields: map[string]any{"text": ""}},
	}
	obs := &recordingObserver{}

	seq, err := NewAggregator(&memExec{nodes: answers}, DefaultSettings(), obs).Aggregate("target", true)
	if err != nil {
		t.Fatal(err)
	}
	recs := collect(seq)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d (skipped %v)", len(recs), obs.skipped)
	}
	if recs[0].Match.Question != "" || recs[0].Match.Text != "target" {
		t.Errorf("unexpected match: %+v", *recs[0].Match)
	}
}

func TestStringsOf(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"string", "a", []string{"a"}},
		{"strings", []string{"a", "b"}, []string{"a", "b"}},
		{"integral float", float64(42), []string{"42"}},
		{"large float", 1e21, []string{"1000000000000000000000"}},
		{"int", 7, []string{"7"}},
		{"int64", int64(-3), []string{"-3"}},
		{"bool", false, []string{"false"}},
		{"mixed array", []any{"x", 2.5, nil, map[string]any{"k": "v"}, true}, []string{"x", "2.5", "true"}},
		{"nil", nil, nil},
		{"object", map[string]any{"k": "v"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringsOf(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("StringsOf(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAggregateSkips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *memNode)
		reason SkipReason
	}{
		{"no question reference", func(n *memNode) { n.refs = nil }, SkipNoQuestion},
		{"broken question reference", func(n *memNode) { n.refErr = errBroken }, SkipQuestionError},
		{"question without text", func(n *memNode) {
			n.refs = map[string]*memNode{"question": {path: "/q", typ: "Question"}}
		}, SkipNoQuestion},
		{"no form ancestor", func(n *memNode) { n.parent = &memNode{path: "/Forms", typ: "Folder"} }, SkipNoAncestor},
		{"unreadable parent", func(n *memNode) { n.parentErr = errBroken }, SkipAncestorError},
		{"neither field matches", func(n *memNode) { n.fields = map[string]any{"value": "other"} }, SkipNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, answers := formTree("target", "target")
			tt.mutate(answers[0].(*memNode))
			obs := &recordingObserver{}

			seq, err := NewAggregator(&memExec{nodes: answers}, DefaultSettings(), obs).Aggregate("target", true)
			if err != nil {
				t.Fatal(err)
			}
			recs := collect(seq)
			if len(recs) != 1 || recs[0].Node().Path() != "/Forms/f1" {
				t.Fatalf("expected only the second form, got %d records", len(recs))
			}
			if len(obs.skipped) != 1 || obs.skipped[0] != tt.reason {
				t.Errorf("expected skip %q, got %v", tt.reason, obs.skipped)
			}
		})
	}
}

func TestAggregateKeepsDuplicatesPerForm(t *testing.T) {
	forms, answers := formTree("fever", "")
	second := *answers[0].(*memNode)
	second.path = forms[0].path + "/b"
	second.fields = map[string]any{"value": "high Fever"}
	nodes := []Node{answers[0], &second}

	seq, err := NewAggregator(&memExec{nodes: nodes}, DefaultSettings(), nil).Aggregate("fever", true)
	if err != nil {
		t.Fatal(err)
	}
	recs := collect(seq)
	if len(recs) != 2 {
		t.Fatalf("expected one record per matching answer, got %d", len(recs))
	}
	if recs[0].Node() != recs[1].Node() {
		t.Errorf("expected both records on the same form")
	}
	if recs[1].Match.Text != "Fever" {
		t.Errorf("second record match: %+v", *recs[1].Match)
	}
}

func TestAggregateEmptyQuery(t *testing.T) {
	exec := &memExec{}
	seq, err := NewAggregator(exec, DefaultSettings(), nil).Aggregate("   ", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(collect(seq)) != 0 {
		t.Error("expected no records")
	}
	if len(exec.ancestorPath) != 0 {
		t.Error("blank query must not reach the executor")
	}
}

func TestAggregateExecutionError(t *testing.T) {
	_, err := NewAggregator(&memExec{err: errBroken}, DefaultSettings(), nil).Aggregate("x", true)
	if !errors.Is(err, ErrExecution) || !errors.Is(err, errBroken) {
		t.Fatalf("expected wrapped execution error, got %v", err)
	}
}

func TestAggregateCustomType(t *testing.T) {
	_, answers := formTree("target")
	subject := &memNode{path: "/Subjects/s1", typ: "Subject"}
	answers[0].(*memNode).parent.parent = subject

	settings := DefaultSettings()
	settings.AggregateType = "Subject"
	seq, err := NewAggregator(&memExec{nodes: answers}, settings, nil).Aggregate("target", true)
	if err != nil {
		t.Fatal(err)
	}
	recs := collect(seq)
	if len(recs) != 1 || recs[0].Node() != subject {
		t.Fatalf("expected the subject, got %+v", recs)
	}
}

func TestFindAncestorOfType(t *testing.T) {
	forms, answers := formTree("x")

	got, err := FindAncestorOfType(answers[0], "Form")
	if err != nil || got != forms[0] {
		t.Fatalf("expected form, got %v (%v)", got, err)
	}
	if got, _ := FindAncestorOfType(forms[0], "Form"); got != forms[0] {
		t.Errorf("a node of the type is its own ancestor")
	}
	if got, err := FindAncestorOfType(answers[0], "Questionnaire"); got != nil || err != nil {
		t.Errorf("expected nothing, got %v (%v)", got, err)
	}
}
