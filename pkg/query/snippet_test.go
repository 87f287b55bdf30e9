package query

import "testing"

func TestBuildContext(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		query  string
		window int
		want   MatchMetadata
	}{
		{
			name: "quick brown fox", value: "the quick brown fox", query: "quick", window: 8,
			want: MatchMetadata{Before: "the ", Text: "quick", After: " brown f..."},
		},
		{
			name: "case preserved", value: "Patient reports CHEST pain", query: "chest", window: 8,
			want: MatchMetadata{Before: "...reports ", Text: "CHEST", After: " pain"},
		},
		{
			name: "exact window not truncated", value: "12345678match87654321", query: "MATCH", window: 8,
			want: MatchMetadata{Before: "12345678", Text: "match", After: "87654321"},
		},
		{
			name: "whole value", value: "Target", query: "target", window: 8,
			want: MatchMetadata{Text: "Target"},
		},
		{
			name: "first occurrence", value: "ab ab ab", query: "AB", window: 8,
			want: MatchMetadata{Text: "ab", After: " ab ab"},
		},
		{
			name: "runes not bytes", value: "ééééééééé fièvre ààààààààà", query: "FIÈVRE", window: 3,
			want: MatchMetadata{Before: "...éé ", Text: "fièvre", After: " àà..."},
		},
		{
			name: "zero window", value: "abc target xyz", query: "target", window: 0,
			want: MatchMetadata{Before: "...", Text: "target", After: "..."},
		},
		{
			name: "invalid utf-8 inside window", value: "x\xffy target \xfez", query: "target", window: 8,
			want: MatchMetadata{Before: "x\xffy ", Text: "target", After: " \xfez"},
		},
		{
			name: "invalid utf-8 cut at window", value: "\xff\xfe\xfd\xfc target \xfb\xfa\xf9", query: "target", window: 2,
			want: MatchMetadata{Before: "...\xfc ", Text: "target", After: " \xfb..."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BuildContext(tt.value, tt.query, tt.window)
			if !ok {
				t.Fatalf("expected a match")
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildContextNoMatch(t *testing.T) {
	for _, tt := range []struct{ value, query string }{
		{"anything", ""},
		{"", ""},
		{"short", "longer than value"},
		{"the quick brown fox", "wolf"},
	} {
		if m, ok := BuildContext(tt.value, tt.query, 8); ok {
			t.Errorf("BuildContext(%q, %q) matched: %+v", tt.value, tt.query, m)
		}
	}
}
