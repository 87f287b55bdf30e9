package query

import "testing"

func TestEscape(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		dialect Dialect
		enabled bool
		want    string
	}{
		{"empty", "", DialectFullText, true, ""},
		{"plain", "quick brown fox", DialectFullText, true, "quick brown fox"},
		{"operators", "a+b-c", DialectRelevance, true, `a\+b\-c`},
		{"all reserved", `+-&|!(){}[]^"~*?:\/%`, DialectFullText, true, `\+\-\&\|\!\(\)\{\}\[\]\^\"\~\*\?\:\\\/\%`},
		{"quote doubled", "O'Brien", DialectFullText, true, "O''Brien"},
		{"quote and reserved", "it's 100%", DialectAncestorPath, true, `it''s 100\%`},
		{"underscore kept", "snake_case", DialectAncestorPath, true, "snake_case"},
		{"disabled", "a+b'c", DialectFullText, false, "a+b'c"},
		{"structured untouched", "select * from [x] where a = 'b'", DialectStructured, true, "select * from [x] where a = 'b'"},
		{"unicode", "café+crème", DialectRelevance, true, `café\+crème`},
		{"invalid utf-8 kept", "a\xffb'\xfe+", DialectFullText, true, "a\xffb''\xfe\\+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escape(tt.input, tt.dialect, tt.enabled); got != tt.want {
				t.Errorf("Escape(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEscapeStableOnSafeText(t *testing.T) {
	for _, s := range []string{"", "fox", "two words", "naïve"} {
		once := Escape(s, DialectFullText, true)
		if twice := Escape(once, DialectFullText, true); twice != once {
			t.Errorf("escaping %q twice changed it: %q -> %q", s, once, twice)
		}
		if Escape(once, DialectFullText, false) != once {
			t.Errorf("disabled escape altered %q", once)
		}
	}
}
