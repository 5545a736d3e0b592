// Package sqlcheck classifies SQL text for the transformation write path.
//
// It does not parse SQL grammar. A small lexer splits input into top-level
// statements and exposes enough structure to tell a SELECT from a CREATE
// FUNCTION and to pull the declared function name out of a definition.
package sqlcheck

import (
	"strings"
	"unicode"
)

type tokenType int

const (
	tokEOF     tokenType = iota
	tokIllegal           // unterminated literal or stray byte
	tokIdent
	tokQuotedIdent
	tokKeyword
	tokNumber
	tokString
	tokBlock // {...} function body, kept opaque
	tokSemicolon
	tokLParen
	tokRParen
	tokDot
	tokOther
)

// keywords are the only words the checker needs to recognize.
var keywords = map[string]bool{
	"create":    true,
	"delete":    true,
	"exists":    true,
	"function":  true,
	"if":        true,
	"insert":    true,
	"language":  true,
	"merge":     true,
	"not":       true,
	"or":        true,
	"python":    true,
	"replace":   true,
	"select":    true,
	"temp":      true,
	"temporary": true,
	"update":    true,
	"with":      true,
}

type token struct {
	typ tokenType
	lit string // raw source text; upper-cased for keywords
}

func (t token) is(keyword string) bool {
	return t.typ == tokKeyword && t.lit == keyword
}

type lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *lexer) eof() bool { return l.pos >= len(l.input) }

func (l *lexer) next() token {
	l.skipWhitespaceAndComments()
	if l.eof() {
		return token{typ: tokEOF}
	}

	start := l.pos
	switch {
	case l.ch == ';':
		l.readChar()
		return token{typ: tokSemicolon, lit: ";"}
	case l.ch == '(':
		l.readChar()
		return token{typ: tokLParen, lit: "("}
	case l.ch == ')':
		l.readChar()
		return token{typ: tokRParen, lit: ")"}
	case l.ch == '.':
		l.readChar()
		return token{typ: tokDot, lit: "."}
	case l.ch == '{':
		ok := l.skipBlock()
		return l.emit(start, tokBlock, ok)
	case l.ch == '\'':
		ok := l.skipQuoted('\'')
		return l.emit(start, tokString, ok)
	case l.ch == '"':
		ok := l.skipQuoted('"')
		return l.emit(start, tokQuotedIdent, ok)
	case l.ch == '$' && l.peekChar() == '$':
		ok := l.skipDollarQuoted()
		return l.emit(start, tokString, ok)
	case isLetter(l.ch) || l.ch == '_':
		for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
		word := l.input[start:l.pos]
		if keywords[strings.ToLower(word)] {
			return token{typ: tokKeyword, lit: strings.ToUpper(word)}
		}
		return token{typ: tokIdent, lit: word}
	case isDigit(l.ch):
		for isDigit(l.ch) || l.ch == '.' || l.ch == 'e' || l.ch == 'E' {
			l.readChar()
		}
		return token{typ: tokNumber, lit: l.input[start:l.pos]}
	default:
		l.readChar()
		return token{typ: tokOther, lit: l.input[start:l.pos]}
	}
}

func (l *lexer) emit(start int, typ tokenType, ok bool) token {
	if !ok {
		return token{typ: tokIllegal, lit: l.input[start:l.pos]}
	}
	return token{typ: typ, lit: l.input[start:l.pos]}
}

func (l *lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && !l.eof() {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for !l.eof() {
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				l.readChar()
			}
			continue
		}
		return
	}
}

// skipQuoted consumes a literal delimited by quote, where a doubled quote
// is an escaped one. Reports false if the input ends first.
func (l *lexer) skipQuoted(quote byte) bool {
	l.readChar()
	for !l.eof() {
		if l.ch == quote {
			if l.peekChar() == quote {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return true
		}
		l.readChar()
	}
	return false
}

func (l *lexer) skipDollarQuoted() bool {
	l.readChar()
	l.readChar()
	for !l.eof() {
		if l.ch == '$' && l.peekChar() == '$' {
			l.readChar()
			l.readChar()
			return true
		}
		l.readChar()
	}
	return false
}

// skipBlock consumes a brace-delimited body. The body is Python, so braces
// inside its string literals and # comments do not count toward nesting.
func (l *lexer) skipBlock() bool {
	depth := 0
	for !l.eof() {
		switch l.ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				l.readChar()
				return true
			}
		case '\'', '"':
			if !l.skipPythonString(l.ch) {
				return false
			}
			continue
		case '#':
			for !l.eof() && l.ch != '\n' {
				l.readChar()
			}
			continue
		}
		l.readChar()
	}
	return false
}

// skipPythonString consumes a quoted literal starting at the opening quote,
// honoring backslash escapes. A triple-quoted literal reads as an empty
// literal followed by one whose content holds no bare quote, which is enough
// for brace counting.
func (l *lexer) skipPythonString(quote byte) bool {
	l.readChar()
	for !l.eof() {
		switch l.ch {
		case '\\':
			l.readChar()
		case quote:
			l.readChar()
			return true
		}
		l.readChar()
	}
	return false
}

func isLetter(ch byte) bool {
	return ch >= 0x80 || unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
