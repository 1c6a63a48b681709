package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src []rune
	pos int
}

func lex(src string) ([]token, error) {
	l := &lexer{src: []rune(src)}
	var out []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.src[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ch == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case ch == '"' || ch == '\'':
		return l.quoted(ch)
	case isDigit(ch):
		return l.number(), nil
	case unicode.IsLetter(ch) || ch == '_' || ch == '$':
		for l.pos < len(l.src) && isPathRune(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos]), pos: start}, nil
	}

	if l.pos+1 < len(l.src) {
		switch two := string(l.src[l.pos : l.pos+2]); two {
		case "==", "!=", ">=", "<=", "&&", "||":
			l.pos += 2
			// tolerate JavaScript-style strict operators
			if (two == "==" || two == "!=") && l.pos < len(l.src) && l.src[l.pos] == '=' {
				l.pos++
			}
			return token{kind: tokOp, text: two, pos: start}, nil
		}
	}
	switch ch {
	case '>', '<', '!':
		l.pos++
		return token{kind: tokOp, text: string(ch), pos: start}, nil
	case '-':
		if l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
			l.pos++
			t := l.number()
			t.text = "-" + t.text
			t.pos = start
			return t, nil
		}
	}
	return token{}, fmt.Errorf("unexpected character %q at position %d", ch, start)
}

func (l *lexer) quoted(quote rune) (token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if ch == '\\' && l.pos+1 < len(l.src) {
			sb.WriteRune(l.src[l.pos+1])
			l.pos += 2
			continue
		}
		if ch == quote {
			l.pos++
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		}
		sb.WriteRune(ch)
		l.pos++
	}
	return token{}, fmt.Errorf("unterminated string at position %d", start)
}

func (l *lexer) number() token {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	return token{kind: tokNumber, text: string(l.src[start:l.pos]), pos: start}
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isPathRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$' || ch == '.' || ch == '-'
}
