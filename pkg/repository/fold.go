package repository

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lowerCaser = cases.Lower(language.Und)

// fold lower-cases s the same way quick-search needles are lower-cased.
func fold(s string) string {
	return lowerCaser.String(s)
}

// foldValue returns a copy of v with every string lower-cased.
func foldValue(v any) any {
	switch t := v.(type) {
	case string:
		return fold(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = fold(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = foldValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = foldValue(e)
		}
		return out
	default:
		return v
	}
}

// searchText joins the string values of fields, in key order, one per line.
func searchText(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if t != "" {
				lines = append(lines, t)
			}
		case []string:
			for _, s := range t {
				walk(s)
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	for _, k := range keys {
		walk(fields[k])
	}
	return strings.Join(lines, "\n")
}
