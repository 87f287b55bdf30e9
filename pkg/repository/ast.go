package repository

// Both dialects parse into the same small expression tree, which compile.go
// turns into SQL over the nodes table.

type expr interface{ isExpr() }

type andExpr struct{ left, right expr }
type orExpr struct{ left, right expr }
type notExpr struct{ x expr }

// property addresses a pseudo property (a column) or a JSON field. lowered
// reads the lower-cased copy of the value.
type property struct {
	name    string
	lowered bool
}

type compareExpr struct {
	prop  property
	op    string
	value any // string or float64
}

type likeExpr struct {
	prop    property
	pattern string
}

type nullExpr struct {
	prop property
	not  bool
}

// containsExpr is full-text containment; a nil prop means every field.
type containsExpr struct {
	prop *property
	text string
}

// nativeExpr is a query handed to the relevance index.
type nativeExpr struct {
	lang string
	text string
}

type pathKind int

const (
	pathDescendant pathKind = iota
	pathChild
	pathSame
)

type pathExpr struct {
	kind pathKind
	path string
}

func (andExpr) isExpr()      {}
func (orExpr) isExpr()       {}
func (notExpr) isExpr()      {}
func (compareExpr) isExpr()  {}
func (likeExpr) isExpr()     {}
func (nullExpr) isExpr()     {}
func (containsExpr) isExpr() {}
func (nativeExpr) isExpr()   {}
func (pathExpr) isExpr()     {}

type ordering struct {
	prop property
	desc bool
}

// selection is a parsed query of either dialect.
type selection struct {
	// nodeType restricts results to a node or super type; empty means any.
	nodeType string
	where    expr
	order    []ordering
}

// parser is the token cursor shared by both dialects.
type parser struct {
	toks []token
	pos  int
}

func (p *parser) curr() token { return p.toks[p.pos] }

func (p *parser) peek() token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) accept(kw string) bool {
	if p.curr().is(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(t tokenType) (token, error) {
	if p.curr().typ != t {
		return token{}, p.errorf("expected %s, got %s", t, p.describe())
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(kw string) error {
	if !p.accept(kw) {
		return p.errorf("expected %s, got %s", kw, p.describe())
	}
	return nil
}

func (p *parser) describe() string {
	t := p.curr()
	if t.typ == tokEOF {
		return t.typ.String()
	}
	return "'" + t.value + "'"
}

func (p *parser) errorf(format string, args ...any) error {
	return syntaxErrorf(p.curr().pos, format, args...)
}
