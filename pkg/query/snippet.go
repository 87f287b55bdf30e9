package query

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultWindow = 8
	Ellipsis      = "..."
)

// BuildContext locates the first case-insensitive occurrence of q in value
// and returns the text around it, cut to window runes on each side. The
// matched text keeps the case stored in value. ok is false when q is empty
// or does not occur.
func BuildContext(value, q string, window int) (m MatchMetadata, ok bool) {
	if q == "" {
		return m, false
	}
	if window < 0 {
		window = 0
	}

	start, end, found := indexFold(value, q)
	if !found {
		return m, false
	}

	m.Before = value[:start]
	if n := utf8.RuneCountInString(m.Before); n > window {
		m.Before = Ellipsis + m.Before[runeOffset(m.Before, n-window):]
	}
	m.Text = value[start:end]
	m.After = value[end:]
	if utf8.RuneCountInString(m.After) > window {
		m.After = m.After[:runeOffset(m.After, window)] + Ellipsis
	}
	return m, true
}

// runeOffset returns the byte offset just past the first n runes of s.
// An invalid byte counts as one rune, as it does for utf8.RuneCountInString.
func runeOffset(s string, n int) int {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

// containsFold reports whether q occurs in s, ignoring case.
func containsFold(s, q string) bool {
	_, _, ok := indexFold(s, q)
	return ok
}

// indexFold returns the byte range of the first match of q in s under
// simple case folding. The match spans as many runes as q has.
func indexFold(s, q string) (start, end int, ok bool) {
	width := utf8.RuneCountInString(q)
	for start = 0; start <= len(s); {
		end = start
		for i := 0; i < width && end < len(s); i++ {
			_, size := utf8.DecodeRuneInString(s[end:])
			end += size
		}
		if utf8.RuneCountInString(s[start:end]) < width {
			return 0, 0, false
		}
		if strings.EqualFold(s[start:end], q) {
			return start, end, true
		}
		if start == len(s) {
			break
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		start += size
	}
	return 0, 0, false
}
