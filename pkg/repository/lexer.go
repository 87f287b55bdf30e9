package repository

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenType int

const (
	tokEOF     tokenType = iota
	tokIdent             // names, keywords, prefixed names like jcr:like
	tokString            // '...' with '' as an embedded quote
	tokNumber            // 12, -3, 4.5
	tokName              // [bracketed name], structured dialect only
	tokLParen            // (
	tokRParen            // )
	tokLBracket          // [
	tokRBracket          // ]
	tokComma             // ,
	tokDot               // .
	tokStar              // *
	tokAt                // @
	tokOp                // = <> != < <= > >=
	tokError
)

func (t tokenType) String() string {
	switch t {
	case tokEOF:
		return "end of query"
	case tokIdent:
		return "name"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokName:
		return "[name]"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokComma:
		return "','"
	case tokDot:
		return "'.'"
	case tokStar:
		return "'*'"
	case tokAt:
		return "'@'"
	case tokOp:
		return "operator"
	default:
		return "invalid input"
	}
}

type token struct {
	typ   tokenType
	value string
	pos   int
}

// is reports whether the token is the keyword kw, ignoring case.
func (t token) is(kw string) bool {
	return t.typ == tokIdent && strings.EqualFold(t.value, kw)
}

type lexer struct {
	input string
	pos   int
	// brackets makes '[' start a bracketed name instead of a predicate.
	brackets bool
}

func newLexer(input string, brackets bool) *lexer {
	return &lexer{input: input, brackets: brackets}
}

func (l *lexer) next() token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return token{typ: tokEOF, pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	single := func(t tokenType) token {
		l.pos++
		return token{typ: t, value: string(ch), pos: start}
	}

	switch ch {
	case '(':
		return single(tokLParen)
	case ')':
		return single(tokRParen)
	case ']':
		return single(tokRBracket)
	case ',':
		return single(tokComma)
	case '.':
		return single(tokDot)
	case '*':
		return single(tokStar)
	case '@':
		return single(tokAt)
	case '[':
		if l.brackets {
			return l.scanBracketed()
		}
		return single(tokLBracket)
	case '\'':
		return l.scanString()
	case '=':
		return single(tokOp)
	case '<', '>', '!':
		l.pos++
		if l.pos < len(l.input) {
			two := l.input[start : l.pos+1]
			if two == "<>" || two == "<=" || two == ">=" || two == "!=" {
				l.pos++
				return token{typ: tokOp, value: two, pos: start}
			}
		}
		if ch == '!' {
			return token{typ: tokError, value: "!", pos: start}
		}
		return token{typ: tokOp, value: string(ch), pos: start}
	}

	if isDigit(ch) || (ch == '-' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])) {
		return l.scanNumber()
	}
	if isIdentStart(ch) {
		for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
			l.pos++
		}
		return token{typ: tokIdent, value: l.input[start:l.pos], pos: start}
	}

	l.pos++
	return token{typ: tokError, value: string(ch), pos: start}
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *lexer) scanString() token {
	start := l.pos
	l.pos++ // opening quote

	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\'' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
				b.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return token{typ: tokString, value: b.String(), pos: start}
		}
		b.WriteByte(ch)
		l.pos++
	}
	return token{typ: tokError, value: "unterminated string", pos: start}
}

func (l *lexer) scanBracketed() token {
	start := l.pos
	end := strings.IndexByte(l.input[l.pos:], ']')
	if end < 0 {
		l.pos = len(l.input)
		return token{typ: tokError, value: "unterminated [name]", pos: start}
	}
	value := l.input[l.pos+1 : l.pos+end]
	l.pos += end + 1
	return token{typ: tokName, value: value, pos: start}
}

func (l *lexer) scanNumber() token {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
		l.pos++
	}
	return token{typ: tokNumber, value: l.input[start:l.pos], pos: start}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		ch == '_' ||
		ch >= 0x80
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == ':' || ch == '-'
}

// tokens drains the lexer; the parsers work on the full slice.
func tokenize(input string, brackets bool) ([]token, error) {
	l := newLexer(input, brackets)
	var toks []token
	for {
		t := l.next()
		if t.typ == tokError {
			return nil, fmt.Errorf("%w: %s at position %d", ErrSyntax, t.value, t.pos)
		}
		toks = append(toks, t)
		if t.typ == tokEOF {
			return toks, nil
		}
	}
}
