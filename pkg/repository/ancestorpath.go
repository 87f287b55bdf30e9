package repository

import (
	"strings"
)

// parseAncestorPath parses the XPath subset used for tree-scoped searches:
//
//	/jcr:root/Forms//*[jcr:like(fn:lower-case(@value), '%x%')]
//	/Forms/*[@status = 'done']
//	//element(*, Form)[jcr:contains(., 'fever')]
func parseAncestorPath(text string) (*selection, error) {
	text = strings.TrimSpace(text)

	pathPart, predicates := text, ""
	if i := strings.IndexByte(text, '['); i >= 0 {
		pathPart, predicates = text[:i], text[i:]
	}

	root, kind, nodeType, err := parseLocation(strings.TrimSpace(pathPart))
	if err != nil {
		return nil, err
	}

	sel := &selection{nodeType: nodeType}
	if root != "/" || kind != pathDescendant {
		sel.where = pathExpr{kind: kind, path: root}
	}

	if predicates == "" {
		return sel, nil
	}

	toks, err := tokenize(predicates, false)
	if err != nil {
		return nil, err
	}
	for i := range toks {
		toks[i].pos += len(pathPart)
	}
	p := &ancestorPathParser{parser{toks: toks}}

	for p.curr().typ == tokLBracket {
		p.advance()
		pred, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		if sel.where == nil {
			sel.where = pred
		} else {
			sel.where = andExpr{sel.where, pred}
		}
	}
	if p.curr().typ != tokEOF {
		return nil, p.errorf("unexpected %s", p.describe())
	}
	return sel, nil
}

// parseLocation splits "/jcr:root/a/b//element(*, T)" into the base path,
// the axis of the last step and the type the step selects.
func parseLocation(loc string) (root string, kind pathKind, nodeType string, err error) {
	if !strings.HasPrefix(loc, "/") {
		return "", 0, "", syntaxErrorf(0, "path %q is not absolute", loc)
	}
	if rest, ok := strings.CutPrefix(loc, "/jcr:root"); ok && (rest == "" || rest[0] == '/') {
		loc = rest
	}
	if loc == "" {
		return "", 0, "", syntaxErrorf(0, "missing location step")
	}

	i := strings.LastIndexByte(loc, '/')
	base, step := loc[:i], strings.TrimSpace(loc[i+1:])

	kind = pathChild
	if strings.HasSuffix(base, "/") {
		kind = pathDescendant
		base = strings.TrimSuffix(base, "/")
	}
	if base == "" {
		base = "/"
	}
	if strings.Contains(base, "//") || strings.ContainsAny(base, "*()") {
		return "", 0, "", syntaxErrorf(0, "unsupported location %q", loc)
	}

	switch {
	case step == "*":
	case strings.HasPrefix(step, "element(") && strings.HasSuffix(step, ")"):
		args := strings.Split(strings.TrimSuffix(strings.TrimPrefix(step, "element("), ")"), ",")
		if strings.TrimSpace(args[0]) != "*" && strings.TrimSpace(args[0]) != "" {
			return "", 0, "", syntaxErrorf(i+1, "named element steps are not supported")
		}
		if len(args) > 1 {
			nodeType = normalizeType(strings.TrimSpace(args[1]))
		}
	default:
		return "", 0, "", syntaxErrorf(i+1, "unsupported step %q", step)
	}
	return base, kind, nodeType, nil
}

type ancestorPathParser struct {
	parser
}

func (p *ancestorPathParser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orExpr{left, right}
	}
	return left, nil
}

func (p *ancestorPathParser) parseAnd() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andExpr{left, right}
	}
	return left, nil
}

func (p *ancestorPathParser) parseUnary() (expr, error) {
	t := p.curr()
	switch {
	case (t.is("not") || t.is("fn:not")) && p.peek().typ == tokLParen:
		p.advance()
		x, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		return notExpr{x}, nil
	case t.typ == tokLParen:
		return p.parseGroup()
	case t.is("jcr:like"):
		return p.parseLike()
	case t.is("jcr:contains"):
		return p.parseContains()
	}

	prop, err := p.parseValueRef()
	if err != nil {
		return nil, err
	}
	if p.curr().typ != tokOp {
		// [@field] tests for presence.
		return nullExpr{prop: prop, not: true}, nil
	}
	op := p.advance()
	value, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return compareExpr{prop: prop, op: op.value, value: value}, nil
}

func (p *ancestorPathParser) parseGroup() (expr, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return x, nil
}

// parseValueRef reads @name or fn:lower-case(@name).
func (p *ancestorPathParser) parseValueRef() (property, error) {
	if p.curr().is("fn:lower-case") {
		p.advance()
		if _, err := p.expect(tokLParen); err != nil {
			return property{}, err
		}
		prop, err := p.parseValueRef()
		if err != nil {
			return property{}, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return property{}, err
		}
		prop.lowered = true
		return prop, nil
	}

	if _, err := p.expect(tokAt); err != nil {
		return property{}, err
	}
	switch t := p.curr(); t.typ {
	case tokIdent, tokString:
		p.advance()
		return property{name: t.value}, nil
	default:
		return property{}, p.errorf("expected attribute name, got %s", p.describe())
	}
}

func (p *ancestorPathParser) parseLike() (expr, error) {
	p.advance()
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	prop, err := p.parseValueRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma); err != nil {
		return nil, err
	}
	pattern, err := p.expect(tokString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return likeExpr{prop: prop, pattern: pattern.value}, nil
}

func (p *ancestorPathParser) parseContains() (expr, error) {
	p.advance()
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}

	var scope *property
	if t := p.curr(); t.typ == tokDot || t.typ == tokStar {
		p.advance()
	} else {
		prop, err := p.parseValueRef()
		if err != nil {
			return nil, err
		}
		scope = &prop
	}

	if _, err := p.expect(tokComma); err != nil {
		return nil, err
	}
	text, err := p.expect(tokString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return containsExpr{prop: scope, text: text.value}, nil
}
