package repository

import (
	"strconv"
	"strings"
)

// parseStructured parses the SQL2 subset:
//
//	SELECT * FROM [Type] AS n WHERE <expr> ORDER BY n.prop DESC
func parseStructured(text string) (*selection, error) {
	toks, err := tokenize(text, true)
	if err != nil {
		return nil, err
	}
	p := &structuredParser{parser: parser{toks: toks}}
	return p.parseSelect()
}

type structuredParser struct {
	parser
	alias string
}

var clauseKeywords = []string{"where", "order"}

func (p *structuredParser) parseSelect() (*selection, error) {
	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}
	// Column lists are accepted and ignored; rows are always whole nodes.
	for !p.curr().is("from") {
		if p.curr().typ == tokEOF {
			return nil, p.errorf("expected FROM")
		}
		p.advance()
	}
	p.advance()

	var sel selection
	switch t := p.curr(); t.typ {
	case tokName, tokIdent:
		sel.nodeType = normalizeType(t.value)
		p.advance()
	default:
		return nil, p.errorf("expected node type, got %s", p.describe())
	}

	if p.accept("as") {
		t, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		p.alias = t.value
	} else if t := p.curr(); t.typ == tokIdent && !isAnyKeyword(t, clauseKeywords) {
		p.alias = p.advance().value
	}

	if p.accept("where") {
		where, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		sel.where = where
	}

	if p.accept("order") {
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		for {
			prop, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			o := ordering{prop: prop}
			if p.accept("desc") {
				o.desc = true
			} else {
				p.accept("asc")
			}
			sel.order = append(sel.order, o)
			if p.curr().typ != tokComma {
				break
			}
			p.advance()
		}
	}

	if p.curr().typ != tokEOF {
		return nil, p.errorf("unexpected %s", p.describe())
	}
	return &sel, nil
}

func (p *structuredParser) parseOr() (expr, error) {
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

func (p *structuredParser) parseAnd() (expr, error) {
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

func (p *structuredParser) parseUnary() (expr, error) {
	if p.accept("not") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{x}, nil
	}
	if p.curr().typ == tokLParen {
		p.advance()
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil
	}
	return p.parsePredicate()
}

func (p *structuredParser) parsePredicate() (expr, error) {
	if t := p.curr(); t.typ == tokIdent && p.peek().typ == tokLParen {
		switch strings.ToLower(t.value) {
		case "contains":
			return p.parseContains()
		case "native":
			return p.parseNative()
		case "isdescendantnode":
			return p.parsePathCall(pathDescendant)
		case "ischildnode":
			return p.parsePathCall(pathChild)
		case "issamenode":
			return p.parsePathCall(pathSame)
		}
	}

	prop, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch {
	case p.accept("is"):
		not := p.accept("not")
		if err := p.expectKeyword("null"); err != nil {
			return nil, err
		}
		return nullExpr{prop: prop, not: not}, nil
	case p.accept("like"):
		pattern, err := p.expect(tokString)
		if err != nil {
			return nil, err
		}
		return likeExpr{prop: prop, pattern: pattern.value}, nil
	case p.accept("not"):
		if err := p.expectKeyword("like"); err != nil {
			return nil, err
		}
		pattern, err := p.expect(tokString)
		if err != nil {
			return nil, err
		}
		return notExpr{likeExpr{prop: prop, pattern: pattern.value}}, nil
	}

	op, err := p.expect(tokOp)
	if err != nil {
		return nil, err
	}
	value, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return compareExpr{prop: prop, op: op.value, value: value}, nil
}

// parseOperand reads a property reference, optionally wrapped in LOWER().
func (p *structuredParser) parseOperand() (property, error) {
	if p.curr().is("lower") && p.peek().typ == tokLParen {
		p.advance()
		p.advance()
		prop, err := p.parseProperty()
		if err != nil {
			return property{}, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return property{}, err
		}
		prop.lowered = true
		return prop, nil
	}
	return p.parseProperty()
}

// parseProperty reads n.name, n.'quoted:name', n.[bracketed] or a bare name.
func (p *structuredParser) parseProperty() (property, error) {
	t := p.curr()
	switch t.typ {
	case tokName:
		p.advance()
		return property{name: t.value}, nil
	case tokIdent:
	default:
		return property{}, p.errorf("expected property, got %s", p.describe())
	}

	p.advance()
	if p.curr().typ != tokDot {
		return property{name: t.value}, nil
	}
	if p.alias != "" && !strings.EqualFold(p.alias, t.value) {
		return property{}, syntaxErrorf(t.pos, "unknown selector %q", t.value)
	}
	p.advance()

	switch name := p.curr(); name.typ {
	case tokIdent, tokString, tokName:
		p.advance()
		return property{name: name.value}, nil
	default:
		return property{}, p.errorf("expected property name, got %s", p.describe())
	}
}

// skipSelector consumes an optional leading "selector," argument.
func (p *structuredParser) skipSelector() {
	if p.curr().typ == tokIdent && p.peek().typ == tokComma {
		p.advance()
		p.advance()
	}
}

func (p *structuredParser) parseContains() (expr, error) {
	p.advance()
	p.advance()

	var scope *property
	switch {
	case p.curr().typ == tokStar:
		p.advance()
	case p.curr().typ == tokIdent && p.peek().typ == tokDot && p.toks[p.pos+2].typ == tokStar:
		p.advance()
		p.advance()
		p.advance()
	default:
		prop, err := p.parseProperty()
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

func (p *structuredParser) parseNative() (expr, error) {
	p.advance()
	p.advance()
	p.skipSelector()

	lang, err := p.expect(tokString)
	if err != nil {
		return nil, err
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
	if !strings.EqualFold(lang.value, "lucene") {
		return nil, syntaxErrorf(lang.pos, "unsupported native language %q", lang.value)
	}
	return nativeExpr{lang: lang.value, text: text.value}, nil
}

func (p *structuredParser) parsePathCall(kind pathKind) (expr, error) {
	p.advance()
	p.advance()
	p.skipSelector()

	var path string
	switch t := p.curr(); t.typ {
	case tokString, tokName:
		path = t.value
		p.advance()
	default:
		return nil, p.errorf("expected path, got %s", p.describe())
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(path, "/") {
		return nil, p.errorf("path %q is not absolute", path)
	}
	return pathExpr{kind: kind, path: path}, nil
}

func (p *parser) parseLiteral() (any, error) {
	t := p.curr()
	switch t.typ {
	case tokString:
		p.advance()
		return t.value, nil
	case tokNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, syntaxErrorf(t.pos, "bad number %q", t.value)
		}
		return f, nil
	default:
		return nil, p.errorf("expected literal, got %s", p.describe())
	}
}

func isAnyKeyword(t token, kws []string) bool {
	for _, kw := range kws {
		if t.is(kw) {
			return true
		}
	}
	return false
}

// normalizeType maps a selector type to a stored node type. The catch-all
// types select everything; namespace prefixes are dropped.
func normalizeType(name string) string {
	switch strings.ToLower(name) {
	case "node", "nt:base", "":
		return ""
	}
	if i := strings.LastIndexAny(name, ":/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
