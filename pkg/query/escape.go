package query

import "strings"

type Dialect int

const (
	DialectStructured Dialect = iota
	DialectRelevance
	DialectFullText
	DialectAncestorPath
)

// reserved characters of the relevance, full-text and ancestor-path syntaxes.
const reserved = `+-&|!(){}[]^"~*?:\/%`

// Escape makes input safe to embed in a quoted literal of the given dialect.
// Reserved characters get a backslash and single quotes are doubled.
// Structured text is never rewritten; callers own that syntax.
func Escape(input string, d Dialect, enabled bool) string {
	if !enabled || d == DialectStructured || input == "" {
		return input
	}

	var b strings.Builder
	b.Grow(len(input) + 8)
	// Every character rewritten is ASCII, so bytes outside it pass through.
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c == '\'':
			b.WriteString("''")
			continue
		case strings.IndexByte(reserved, c) >= 0:
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
