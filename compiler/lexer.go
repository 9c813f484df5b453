// lexer creates tokens from a sql string. The tokens are fed into the parser.
package compiler

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

type token struct {
	tokenType tokenType
	value     string
}

const (
	// tkKeyword is a reserved word. For example SELECT, FROM, or WHERE.
	tkKeyword tokenType = iota + 1
	// tkIdentifier is a word that is not a keyword like a table or column name.
	tkIdentifier
	// tkWhitespace is a space, tab, or newline.
	tkWhitespace
	// tkEOF (End of file) is the end of input.
	tkEOF
	// tkSeparator is punctuation such as "(", ",", ";", ".".
	tkSeparator
	// tkOperator is a symbol that operates on arguments.
	tkOperator
	// tkLiteral is a quoted text value like 'foo'.
	tkLiteral
	// tkNumeric is a numeric value like 1 or 1.2.
	tkNumeric
	// tkParam is a positional placeholder "?".
	tkParam
	// tkIllegal is a character the lexer does not understand. The parser
	// rejects it.
	tkIllegal
)

const (
	kwSelect = "SELECT"
	kwFrom   = "FROM"
	kwWhere  = "WHERE"
	kwAnd    = "AND"
	kwOr     = "OR"
	kwInsert = "INSERT"
	kwInto   = "INTO"
	kwValues = "VALUES"
	kwUpdate = "UPDATE"
	kwSet    = "SET"
	kwDelete = "DELETE"
	kwOrder  = "ORDER"
	kwBy     = "BY"
	kwAsc    = "ASC"
	kwDesc   = "DESC"
	kwLimit  = "LIMIT"
	kwOffset = "OFFSET"
	kwAs     = "AS"
	kwIn     = "IN"
	kwNull   = "NULL"
	kwTrue   = "TRUE"
	kwFalse  = "FALSE"
)

var keywords = []string{
	kwSelect,
	kwFrom,
	kwWhere,
	kwAnd,
	kwOr,
	kwInsert,
	kwInto,
	kwValues,
	kwUpdate,
	kwSet,
	kwDelete,
	kwOrder,
	kwBy,
	kwAsc,
	kwDesc,
	kwLimit,
	kwOffset,
	kwAs,
	kwIn,
	kwNull,
	kwTrue,
	kwFalse,
}

// Statement is the tokens of a single statement including its terminating
// semicolon when there is one.
type Statement []token

func (*lexer) isKeyword(w string) bool {
	uw := strings.ToUpper(w)
	return slices.Contains(keywords, uw)
}

type lexer struct {
	src   string
	start int
	end   int
}

func NewLexer(src string) *lexer {
	ts := strings.Trim(src, " \t\r\n")
	return &lexer{src: ts}
}

func (l *lexer) Lex() []token {
	ret := []token{}
	for {
		t := l.getToken()
		if t.tokenType == tkEOF {
			return ret
		}
		ret = append(ret, t)
	}
}

// ToStatements splits the source into statements separated by semicolons.
// Statements consisting only of whitespace are dropped.
func (l *lexer) ToStatements() []Statement {
	ret := []Statement{}
	current := Statement{}
	for _, t := range l.Lex() {
		current = append(current, t)
		if t.tokenType == tkSeparator && t.value == ";" {
			ret = appendStatement(ret, current)
			current = Statement{}
		}
	}
	return appendStatement(ret, current)
}

func appendStatement(statements []Statement, s Statement) []Statement {
	for _, t := range s {
		if t.tokenType != tkWhitespace {
			return append(statements, s)
		}
	}
	return statements
}

// IsTerminated is true when the last statement ends with a semicolon.
func IsTerminated(statements []Statement) bool {
	if len(statements) == 0 {
		return false
	}
	last := statements[len(statements)-1]
	for i := len(last) - 1; i >= 0; i-- {
		if last[i].tokenType == tkWhitespace {
			continue
		}
		return last[i].tokenType == tkSeparator && last[i].value == ";"
	}
	return false
}

func (l *lexer) getToken() token {
	l.start = l.end
	if l.atEnd() {
		return token{tkEOF, ""}
	}
	r := l.peek(l.start)
	switch {
	case l.isWhiteSpace(r):
		return l.scanWhiteSpace()
	case l.isLetter(r) || l.isUnderscore(r):
		return l.scanWord()
	case l.isDigit(r):
		return l.scanDigit()
	case l.isQuotedIdentifier(r):
		return l.scanQuotedIdentifier(r)
	case l.isSeparator(r):
		return l.scanSeparator()
	case l.isOperator(r):
		return l.scanOperator()
	case l.isSingleQuote(r):
		return l.scanLiteral()
	case r == '?':
		l.next()
		return token{tkParam, "?"}
	}
	l.next()
	return token{tkIllegal, l.src[l.start:l.end]}
}

func (l *lexer) atEnd() bool {
	return l.end >= len(l.src)
}

func (l *lexer) peek(pos int) rune {
	if len(l.src) <= pos {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[pos:])
	return r
}

func (l *lexer) next() rune {
	_, size := utf8.DecodeRuneInString(l.src[l.end:])
	l.end = l.end + size
	return l.peek(l.end)
}

func (l *lexer) scanWhiteSpace() token {
	l.next()
	for l.isWhiteSpace(l.peek(l.end)) {
		l.next()
	}
	return token{tokenType: tkWhitespace, value: " "}
}

func (l *lexer) scanWord() token {
	l.next()
	for r := l.peek(l.end); l.isLetter(r) || l.isUnderscore(r) || l.isDigit(r); r = l.peek(l.end) {
		l.next()
	}
	value := l.src[l.start:l.end]
	if l.isKeyword(value) {
		return token{tokenType: tkKeyword, value: strings.ToUpper(value)}
	}
	return token{tokenType: tkIdentifier, value: value}
}

func (l *lexer) scanDigit() token {
	l.next()
	seenDot := false
	for {
		r := l.peek(l.end)
		if r == '.' && !seenDot && l.isDigit(l.peek(l.end+1)) {
			seenDot = true
			l.next()
			continue
		}
		if !l.isDigit(r) {
			break
		}
		l.next()
	}
	return token{tokenType: tkNumeric, value: l.src[l.start:l.end]}
}

// scanQuotedIdentifier scans identifiers quoted with double quotes or
// backticks. The quotes are not part of the token value.
func (l *lexer) scanQuotedIdentifier(quote rune) token {
	l.next()
	for !l.atEnd() && l.peek(l.end) != quote {
		l.next()
	}
	value := l.src[l.start+1 : l.end]
	if l.peek(l.end) == quote {
		l.next()
	}
	return token{tokenType: tkIdentifier, value: value}
}

func (l *lexer) scanSeparator() token {
	l.next()
	return token{tokenType: tkSeparator, value: l.src[l.start:l.end]}
}

func (l *lexer) scanOperator() token {
	r := l.peek(l.start)
	l.next()
	n := l.peek(l.end)
	if (r == '<' && (n == '=' || n == '>')) || ((r == '>' || r == '!') && n == '=') {
		l.next()
	}
	return token{tokenType: tkOperator, value: l.src[l.start:l.end]}
}

// scanLiteral scans a single quoted string. Two consecutive quotes inside the
// string are an escaped quote. An unterminated literal runs to the end of the
// source.
func (l *lexer) scanLiteral() token {
	l.next()
	for {
		if l.atEnd() {
			break
		}
		r := l.peek(l.end)
		l.next()
		if r == '\'' {
			if l.peek(l.end) == '\'' {
				l.next()
				continue
			}
			break
		}
	}
	return token{tokenType: tkLiteral, value: l.src[l.start:l.end]}
}

func (*lexer) isWhiteSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func (*lexer) isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func (*lexer) isUnderscore(r rune) bool {
	return r == '_'
}

func (*lexer) isDigit(r rune) bool {
	return unicode.IsDigit(r)
}

func (*lexer) isSeparator(r rune) bool {
	return r == ',' || r == '(' || r == ')' || r == ';' || r == '.'
}

func (*lexer) isOperator(r rune) bool {
	return r == '*' || r == '=' || r == '<' || r == '>' || r == '!' || r == '+' || r == '-' || r == '/'
}

func (*lexer) isSingleQuote(r rune) bool {
	return r == '\''
}

func (*lexer) isQuotedIdentifier(r rune) bool {
	return r == '"' || r == '`'
}
