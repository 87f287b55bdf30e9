package integration_tests

import (
	"slices"
	"testing"

	"github.com/cardsdata/formquery/pkg/query"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestQuickSearchIsolation checks that quick search only looks under the
// configured forms root and reports matches at the configured aggregate level.
func TestQuickSearchIsolation(t *testing.T) {
	tests := []struct {
		name     string
		settings query.Settings
		paths    []string
	}{
		{
			name:     "default forms root",
			settings: query.DefaultSettings(),
			paths:    []string{"/Forms/f1", "/Forms/f1"},
		},
		{
			name:     "archive root",
			settings: query.Settings{FormsRoot: "/Archive"},
			paths:    []string{"/Archive/f9"},
		},
		{
			name:     "root without forms",
			settings: query.Settings{FormsRoot: "/Questionnaires"},
			paths:    []string{},
		},
		{
			name:     "aggregate to folders",
			settings: query.Settings{AggregateType: "Folder"},
			paths:    []string{"/Forms", "/Forms"},
		},
		{
			name:     "aggregate type nobody has",
			settings: query.Settings{AggregateType: "Subject"},
			paths:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := NewStack(t)
			stack.Engine.SetSettings(tt.settings)

			res := stack.Query(t, map[string]string{"quick": "allergy"})
			if res.Status != 200 {
				t.Fatalf("expected 200, got %d: %s", res.Status, res.Message)
			}
			if got := res.Paths(); !slices.Equal(got, tt.paths) {
				t.Errorf("expected %v, got %v", tt.paths, got)
			}
			if res.TotalRows != int64(len(tt.paths)) {
				t.Errorf("expected %d total rows, got %d", len(tt.paths), res.TotalRows)
			}
		})
	}
}

func TestQuickSearchSkipsUnlabelledAnswers(t *testing.T) {
	stack := NewStack(t)

	res := stack.Query(t, map[string]string{"quick": "seasonal"})
	if res.TotalRows != 0 {
		t.Errorf("answer without a question must be skipped, got %v", res.Paths())
	}

	skipped := stack.Metrics.SkippedNodesTotal.WithLabelValues(string(query.SkipNoQuestion))
	if v := testutil.ToFloat64(skipped); v != 1 {
		t.Errorf("expected 1 no_question skip, got %v", v)
	}

	// The same answer is still reachable through the other modes.
	res = stack.Query(t, map[string]string{"fulltext": "seasonal"})
	if got := res.Paths(); !slices.Equal(got, []string{"/Forms/f2/a2"}) {
		t.Errorf("fulltext: got %v", got)
	}
}

func TestQuickSearchSettingsSwapDoesNotLeak(t *testing.T) {
	stack := NewStack(t)

	stack.Engine.SetSettings(query.Settings{FormsRoot: "/Archive", ContextWindow: 2})
	res := stack.Query(t, map[string]string{"quick": "allergy"})
	if got := res.Paths(); !slices.Equal(got, []string{"/Archive/f9"}) {
		t.Fatalf("archive: got %v", got)
	}
	match := res.Rows[0][query.MatchKey].(map[string]any)
	if match["before"] != "...x " {
		t.Errorf("context window not applied: %v", match)
	}

	stack.Engine.SetSettings(query.DefaultSettings())
	res = stack.Query(t, map[string]string{"quick": "allergy"})
	if got := res.Paths(); !slices.Equal(got, []string{"/Forms/f1", "/Forms/f1"}) {
		t.Errorf("after reset: got %v", got)
	}
}
