package repository

import (
	"strings"
	"unicode"
)

// term is one word or quoted phrase of a full-text expression.
type term struct {
	text   string
	neg    bool
	prefix bool // ended with an unescaped '*'
}

// clause is a disjunction of terms; a full-text expression is the
// conjunction of its clauses.
type clause []term

// parseFullText splits a containment expression into clauses. Words are
// AND-ed, OR joins its neighbours, a leading '-' excludes a term and double
// quotes group a phrase. A backslash makes the next character literal, so
// text escaped for embedding comes back to its original form.
func parseFullText(s string) []clause {
	var (
		clauses []clause
		joinOr  bool
	)

	rs := []rune(s)
	for i := 0; i < len(rs); {
		if unicode.IsSpace(rs[i]) {
			i++
			continue
		}

		var t term
		if rs[i] == '-' {
			t.neg = true
			i++
		}

		var b strings.Builder
		escaped, quoted := false, false
		if i < len(rs) && rs[i] == '"' {
			quoted = true
			i++
		}
		for ; i < len(rs); i++ {
			r := rs[i]
			if r == '\\' && i+1 < len(rs) {
				i++
				b.WriteRune(rs[i])
				escaped = true
				continue
			}
			if quoted && r == '"' {
				i++
				break
			}
			if !quoted && unicode.IsSpace(r) {
				break
			}
			b.WriteRune(r)
			escaped = false
		}

		t.text = b.String()
		if !quoted && !t.neg {
			switch t.text {
			case "OR":
				joinOr = len(clauses) > 0
				continue
			case "AND":
				continue
			}
		}
		if !quoted && !escaped && strings.HasSuffix(t.text, "*") {
			t.text = strings.TrimRight(t.text, "*")
			t.prefix = true
		}
		if t.text == "" {
			joinOr = false
			continue
		}

		last := len(clauses) - 1
		if joinOr && !t.neg && last >= 0 && !clauses[last][0].neg {
			clauses[last] = append(clauses[last], t)
		} else {
			clauses = append(clauses, clause{t})
		}
		joinOr = false
	}
	return clauses
}

// ftsMatch renders clauses as an FTS5 MATCH expression. Every term becomes a
// quoted phrase so user text never reaches the FTS5 operator grammar. It
// returns "" when nothing positive is left to match.
func ftsMatch(clauses []clause) string {
	var pos, neg []string
	for _, c := range clauses {
		if c[0].neg {
			if hasToken(c[0].text) {
				neg = append(neg, ftsPhrase(c[0]))
			}
			continue
		}
		var alts []string
		for _, t := range c {
			if hasToken(t.text) {
				alts = append(alts, ftsPhrase(t))
			}
		}
		if len(alts) == 0 {
			continue
		}
		if len(alts) == 1 {
			pos = append(pos, alts[0])
		} else {
			pos = append(pos, "("+strings.Join(alts, " OR ")+")")
		}
	}
	if len(pos) == 0 {
		return ""
	}

	q := strings.Join(pos, " AND ")
	if len(neg) > 0 {
		q = "(" + q + ")"
		for _, n := range neg {
			q += " NOT " + n
		}
	}
	return q
}

func ftsPhrase(t term) string {
	p := `"` + strings.ReplaceAll(t.text, `"`, `""`) + `"`
	if t.prefix {
		p += " *"
	}
	return p
}

// hasToken reports whether s holds anything the index tokenizer keeps.
// Punctuation-only terms would become empty phrases.
func hasToken(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
