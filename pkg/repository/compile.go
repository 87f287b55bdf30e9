package repository

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const nodeColumns = "n.id, n.uuid, n.path, n.parent_path, n.name, n.node_type, n.super_type, n.fields, n.created_at"

// pseudoColumns maps property names that live in columns rather than in the
// JSON fields.
var pseudoColumns = map[string]string{
	"jcr:path":                "path",
	"path":                    "path",
	"jcr:name":                "name",
	"name":                    "name",
	"jcr:primaryType":         "node_type",
	"sling:resourceType":      "node_type",
	"type":                    "node_type",
	"jcr:uuid":                "uuid",
	"uuid":                    "uuid",
	"sling:resourceSuperType": "super_type",
	"superType":               "super_type",
	"jcr:created":             "created_at",
}

var sqlOps = map[string]string{
	"=":  "=",
	"<>": "<>",
	"!=": "<>",
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
}

// compiler turns a selection into one read-only statement. Every literal
// is bound as a parameter.
type compiler struct {
	// rank is the MATCH expression of the first relevance predicate, used
	// for bm25 ordering.
	rank string
}

func compile(sel *selection) (string, []any, error) {
	c := &compiler{}

	var (
		conds []string
		args  []any
	)
	if sel.nodeType != "" {
		conds = append(conds, "(n.node_type = ? OR n.super_type = ?)")
		args = append(args, sel.nodeType, sel.nodeType)
	}
	if sel.where != nil {
		cond, whereArgs, err := c.expr(sel.where)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		args = append(args, whereArgs...)
	}

	var b strings.Builder
	b.WriteString("SELECT " + nodeColumns + " FROM nodes n")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	var order []string
	for _, o := range sel.order {
		term, orderArgs, err := c.value(o.prop)
		if err != nil {
			return "", nil, err
		}
		if o.desc {
			term += " DESC"
		}
		order = append(order, term)
		args = append(args, orderArgs...)
	}
	if len(order) == 0 && c.rank != "" {
		order = append(order, "(SELECT bm25(nodes_fts) FROM nodes_fts WHERE nodes_fts MATCH ? AND rowid = n.id)")
		args = append(args, c.rank)
	}
	order = append(order, "n.id")
	b.WriteString(" ORDER BY " + strings.Join(order, ", "))

	return b.String(), args, nil
}

func (c *compiler) expr(e expr) (string, []any, error) {
	switch e := e.(type) {
	case andExpr:
		return c.binary("AND", e.left, e.right)
	case orExpr:
		return c.binary("OR", e.left, e.right)
	case notExpr:
		cond, args, err := c.expr(e.x)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + cond + ")", args, nil
	case compareExpr:
		op, ok := sqlOps[e.op]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, e.op)
		}
		return c.match(e.prop, op+" ?", e.value)
	case likeExpr:
		return c.match(e.prop, "GLOB ?", likeToGlob(e.pattern))
	case nullExpr:
		return c.null(e)
	case containsExpr:
		return c.contains(e)
	case nativeExpr:
		q := ftsMatch(parseFullText(e.text))
		if q == "" {
			return "0", nil, nil
		}
		if c.rank == "" {
			c.rank = q
		}
		return "n.id IN (SELECT rowid FROM nodes_fts WHERE nodes_fts MATCH ?)", []any{q}, nil
	case pathExpr:
		return pathCondition(e)
	default:
		return "", nil, fmt.Errorf("%w: unsupported expression %T", ErrSyntax, e)
	}
}

func (c *compiler) binary(op string, left, right expr) (string, []any, error) {
	l, largs, err := c.expr(left)
	if err != nil {
		return "", nil, err
	}
	r, rargs, err := c.expr(right)
	if err != nil {
		return "", nil, err
	}
	return "(" + l + " " + op + " " + r + ")", append(largs, rargs...), nil
}

// match applies a condition to a column, or to any value of a JSON field.
// Multi-valued fields match when one of their values does.
func (c *compiler) match(prop property, cond string, arg any) (string, []any, error) {
	if col, ok := pseudoColumns[prop.name]; ok {
		target := "n." + col
		if prop.lowered {
			target = "lower(" + target + ")"
		}
		return target + " " + cond, []any{arg}, nil
	}

	path, err := jsonPath(prop.name)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(n.%s, ?) j WHERE j.value %s)", fieldsColumn(prop), cond),
		[]any{path, arg}, nil
}

// value returns an expression usable in ORDER BY.
func (c *compiler) value(prop property) (string, []any, error) {
	if col, ok := pseudoColumns[prop.name]; ok {
		if prop.lowered {
			return "lower(n." + col + ")", nil, nil
		}
		return "n." + col, nil, nil
	}
	path, err := jsonPath(prop.name)
	if err != nil {
		return "", nil, err
	}
	return "json_extract(n." + fieldsColumn(prop) + ", ?)", []any{path}, nil
}

func (c *compiler) null(e nullExpr) (string, []any, error) {
	var (
		cond string
		args []any
	)
	if col, ok := pseudoColumns[e.prop.name]; ok {
		cond = fmt.Sprintf("(n.%s IS NULL OR n.%s = '')", col, col)
	} else {
		path, err := jsonPath(e.prop.name)
		if err != nil {
			return "", nil, err
		}
		cond = "json_type(n.fields, ?) IS NULL"
		args = []any{path}
	}
	if e.not {
		cond = "NOT " + cond
	}
	return cond, args, nil
}

// contains matches every clause as a substring of the lower-cased text.
func (c *compiler) contains(e containsExpr) (string, []any, error) {
	clauses := parseFullText(e.text)
	if len(clauses) == 0 {
		return "0", nil, nil
	}

	var (
		conds []string
		args  []any
	)
	for _, cl := range clauses {
		var alts []string
		for _, t := range cl {
			pattern := "%" + escapeLikePattern(fold(t.text)) + "%"
			var (
				cond     string
				condArgs []any
				err      error
			)
			if e.prop == nil {
				cond, condArgs = `n.search_text LIKE ? ESCAPE '\'`, []any{pattern}
			} else {
				prop := *e.prop
				prop.lowered = true
				cond, condArgs, err = c.match(prop, `LIKE ? ESCAPE '\'`, pattern)
				if err != nil {
					return "", nil, err
				}
			}
			alts = append(alts, cond)
			args = append(args, condArgs...)
		}
		cond := strings.Join(alts, " OR ")
		if len(alts) > 1 {
			cond = "(" + cond + ")"
		}
		if cl[0].neg {
			cond = "NOT " + cond
		}
		conds = append(conds, cond)
	}
	return "(" + strings.Join(conds, " AND ") + ")", args, nil
}

func pathCondition(e pathExpr) (string, []any, error) {
	path := e.path
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	switch e.kind {
	case pathSame:
		return "n.path = ?", []any{path}, nil
	case pathChild:
		if path == "/" {
			return "n.parent_path IS NULL", nil, nil
		}
		return "n.parent_path = ?", []any{path}, nil
	default:
		if path == "/" {
			return "1", nil, nil
		}
		prefix := path + "/"
		return "substr(n.path, 1, ?) = ?", []any{utf8.RuneCountInString(prefix), prefix}, nil
	}
}

func fieldsColumn(prop property) string {
	if prop.lowered {
		return "folded"
	}
	return "fields"
}

func jsonPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "\"\\") {
		return "", fmt.Errorf("%w: invalid property name %q", ErrSyntax, name)
	}
	return `$."` + name + `"`, nil
}

// likeToGlob converts a LIKE pattern with backslash escapes into a GLOB
// pattern, which SQLite matches case-sensitively.
func likeToGlob(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 4)

	literal := func(ch byte) {
		switch ch {
		case '*', '?', '[':
			b.WriteByte('[')
			b.WriteByte(ch)
			b.WriteByte(']')
		default:
			b.WriteByte(ch)
		}
	}

	for i := 0; i < len(pattern); i++ {
		switch ch := pattern[i]; ch {
		case '\\':
			if i+1 < len(pattern) {
				i++
				literal(pattern[i])
			} else {
				literal(ch)
			}
		case '%':
			b.WriteByte('*')
		case '_':
			b.WriteByte('?')
		default:
			literal(ch)
		}
	}
	return b.String()
}

// escapeLikePattern escapes special characters for LIKE pattern matching.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
