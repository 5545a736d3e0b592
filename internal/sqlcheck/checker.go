package sqlcheck

import "transform-registry/internal/domain"

// Compile-time check.
var _ domain.SQLValidator = Checker{}

// Checker implements domain.SQLValidator.
type Checker struct{}

// New returns a Checker.
func New() Checker { return Checker{} }

// CheckSelect reports whether text is a single SELECT statement, optionally
// introduced by a WITH clause or wrapped in parentheses.
func (Checker) CheckSelect(text string) bool {
	stmt, ok := single(text)
	if !ok {
		return false
	}
	i := 0
	for i < len(stmt) && stmt[i].typ == tokLParen {
		i++
	}
	if i >= len(stmt) {
		return false
	}
	switch {
	case stmt[i].is("SELECT"):
		return i+1 < len(stmt)
	case stmt[i].is("WITH"):
		return mainVerb(stmt[i+1:]) == "SELECT"
	default:
		return false
	}
}

// CheckFunction reports whether text is a single CREATE statement carrying
// the FUNCTION, LANGUAGE and PYTHON keywords outside its body.
func (Checker) CheckFunction(text string) bool {
	stmt, ok := single(text)
	if !ok || !stmt[0].is("CREATE") {
		return false
	}
	var function, language, python bool
	for _, tok := range stmt {
		switch {
		case tok.is("FUNCTION"):
			function = true
		case tok.is("LANGUAGE"):
			language = true
		case tok.is("PYTHON"):
			python = true
		}
	}
	return function && language && python
}

// ExtractFunctionName returns the name declared by a
// CREATE [OR REPLACE] [TEMP] FUNCTION [IF NOT EXISTS] <name> prefix. Only the
// prefix is inspected, so a definition with a malformed body still yields its
// name. Qualified and quoted names are returned as written.
func (Checker) ExtractFunctionName(text string) (string, bool) {
	l := newLexer(text)
	tok := l.next()
	if !tok.is("CREATE") {
		return "", false
	}
	tok = l.next()
	if tok.is("OR") {
		if tok = l.next(); !tok.is("REPLACE") {
			return "", false
		}
		tok = l.next()
	}
	if tok.is("TEMP") || tok.is("TEMPORARY") {
		tok = l.next()
	}
	if !tok.is("FUNCTION") {
		return "", false
	}
	tok = l.next()
	if tok.is("IF") {
		if !l.next().is("NOT") || !l.next().is("EXISTS") {
			return "", false
		}
		tok = l.next()
	}

	name := ""
	for {
		if tok.typ != tokIdent && tok.typ != tokQuotedIdent {
			return "", false
		}
		name += tok.lit
		tok = l.next()
		if tok.typ != tokDot {
			break
		}
		name += "."
		tok = l.next()
	}
	return name, true
}

// single lexes text and returns its tokens when it holds exactly one
// statement with no illegal tokens. Trailing semicolons are allowed.
func single(text string) ([]token, bool) {
	stmts, ok := split(text)
	if !ok || len(stmts) != 1 {
		return nil, false
	}
	return stmts[0], true
}

// split breaks text into top-level statements on semicolons outside
// parentheses. Empty statements are dropped.
func split(text string) ([][]token, bool) {
	l := newLexer(text)
	var (
		stmts [][]token
		cur   []token
		depth int
	)
	for {
		tok := l.next()
		switch tok.typ {
		case tokEOF:
			if len(cur) > 0 {
				stmts = append(stmts, cur)
			}
			return stmts, depth == 0
		case tokIllegal:
			return nil, false
		case tokSemicolon:
			if depth == 0 {
				if len(cur) > 0 {
					stmts = append(stmts, cur)
				}
				cur = nil
				continue
			}
		case tokLParen:
			depth++
		case tokRParen:
			depth--
			if depth < 0 {
				return nil, false
			}
		}
		cur = append(cur, tok)
	}
}

// mainVerb returns the first DML keyword found outside parentheses, which
// for a WITH statement is the verb following its common table expressions.
func mainVerb(tokens []token) string {
	depth := 0
	for _, tok := range tokens {
		switch tok.typ {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		case tokKeyword:
			if depth != 0 {
				continue
			}
			switch tok.lit {
			case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
				return tok.lit
			}
		}
	}
	return ""
}
