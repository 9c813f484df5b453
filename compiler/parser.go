package compiler

// parser takes tokens from the lexer and produces an AST (Abstract Syntax
// Tree). The AST is consumed by the transformer to make a REST request.

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	tokenErr   = "unexpected token %s"
	identErr   = "expected identifier but got %s"
	literalErr = "expected literal but got %s"
	emptyErr   = "empty statement"
	groupErr   = "unbalanced parenthesis near %s"
)

type parser struct {
	tokens []token
	end    int
}

func NewParser(tokens []token) *parser {
	return &parser{tokens: tokens}
}

func (p *parser) Parse() (Stmt, error) {
	return p.parseStmt()
}

func (p *parser) parseStmt() (Stmt, error) {
	p.end = -1
	t := p.nextNonSpace()
	switch t.value {
	case kwSelect:
		return p.parseSelect()
	case kwInsert:
		return p.parseInsert()
	case kwUpdate:
		return p.parseUpdate()
	case kwDelete:
		return p.parseDelete()
	case "":
		return nil, fmt.Errorf(emptyErr)
	}
	return nil, fmt.Errorf(tokenErr, t.value)
}

func (p *parser) parseSelect() (*SelectStmt, error) {
	stmt := &SelectStmt{}
	for {
		rc, err := p.parseResultColumn()
		if err != nil {
			return nil, err
		}
		stmt.ResultColumns = append(stmt.ResultColumns, *rc)
		sep := p.current()
		if sep.value == "," {
			continue
		}
		if sep.tokenType == tkEOF || sep.value == ";" {
			return stmt, nil
		}
		if sep.value != kwFrom {
			return nil, fmt.Errorf(tokenErr, sep.value)
		}
		break
	}
	from, next, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.From = from
	if next.value == kwWhere {
		where, end, err := p.parseWhere()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
		next = end
	}
	if next.value == kwOrder {
		if v := p.nextNonSpace().value; v != kwBy {
			return nil, fmt.Errorf(tokenErr, v)
		}
		terms, end, err := p.parseOrderBy()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = terms
		next = end
	}
	if next.value == kwLimit {
		limit, end, err := p.parseLimit()
		if err != nil {
			return nil, err
		}
		stmt.Limit = limit
		next = end
	}
	if err := p.expectEnd(next); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseResultColumn parses one entry of the select list and leaves the parser
// on the token following the entry.
func (p *parser) parseResultColumn() (*ResultColumn, error) {
	t := p.nextNonSpace()
	if t.value == "*" {
		p.nextNonSpace()
		return &ResultColumn{All: true}, nil
	}
	if t.tokenType != tkIdentifier {
		return nil, fmt.Errorf(identErr, t.value)
	}
	rc := &ResultColumn{Column: t.value}
	n := p.nextNonSpace()
	if n.value == "." {
		c := p.nextNonSpace()
		switch {
		case c.value == "*":
			rc = &ResultColumn{All: true, Table: t.value}
		case c.tokenType == tkIdentifier:
			rc.Table = t.value
			rc.Column = c.value
		default:
			return nil, fmt.Errorf(identErr, c.value)
		}
		n = p.nextNonSpace()
	}
	if n.value == kwAs {
		n = p.nextNonSpace()
		if n.tokenType != tkIdentifier {
			return nil, fmt.Errorf(identErr, n.value)
		}
	}
	if n.tokenType == tkIdentifier {
		if rc.All {
			return nil, fmt.Errorf(tokenErr, n.value)
		}
		rc.Alias = n.value
		p.nextNonSpace()
	}
	return rc, nil
}

// parseTableRef parses a table name with an optional alias. It returns the
// first token after the reference.
func (p *parser) parseTableRef() (*TableRef, token, error) {
	tn := p.nextNonSpace()
	if tn.tokenType != tkIdentifier {
		return nil, tn, fmt.Errorf(identErr, tn.value)
	}
	ref := &TableRef{Name: tn.value}
	n := p.nextNonSpace()
	if n.value == kwAs {
		n = p.nextNonSpace()
		if n.tokenType != tkIdentifier {
			return nil, n, fmt.Errorf(identErr, n.value)
		}
	}
	if n.tokenType == tkIdentifier {
		ref.Alias = n.value
		n = p.nextNonSpace()
	}
	return ref, n, nil
}

func (p *parser) parseWhere() (WhereNode, token, error) {
	nodes, end, err := p.parseFilter(false)
	if err != nil {
		return nil, end, err
	}
	if len(nodes) == 0 {
		return nil, end, fmt.Errorf(tokenErr, end.value)
	}
	return &Expression{Join: JoinNone, Children: nodes}, end, nil
}

// parseFilter collects filter fragments until the end of the clause. When
// nested is true the filter is inside parentheses and ends at "," or ")".
// Comparisons become a single *Leaf with the whitespace removed, AND and OR
// become a *Leaf of their own and parentheses become a grouping *Leaf.
func (p *parser) parseFilter(nested bool) ([]WhereNode, token, error) {
	nodes := []WhereNode{}
	text := strings.Builder{}
	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, &Leaf{Text: text.String()})
			text.Reset()
		}
	}
	for {
		t := p.nextNonSpace()
		switch {
		case t.tokenType == tkEOF || t.value == ";" || t.is(kwOrder) || t.is(kwLimit):
			if nested {
				return nil, t, fmt.Errorf(groupErr, t.value)
			}
			flush()
			return nodes, t, nil
		case t.tokenType == tkSeparator && (t.value == ")" || t.value == ","):
			if !nested {
				return nil, t, fmt.Errorf(groupErr, t.value)
			}
			flush()
			return nodes, t, nil
		case t.is(kwAnd) || t.is(kwOr):
			flush()
			nodes = append(nodes, &Leaf{Text: t.value})
		case t.is(kwIn):
			if v := p.nextNonSpace().value; v != "(" {
				return nil, t, fmt.Errorf(tokenErr, v)
			}
			text.WriteString("=in")
			items, err := p.parseGroupItems()
			if err != nil {
				return nil, t, err
			}
			nodes = append(nodes, &Leaf{Text: text.String(), Children: items})
			text.Reset()
		case t.tokenType == tkSeparator && t.value == "(":
			if text.Len() > 0 {
				items, err := p.parseGroupItems()
				if err != nil {
					return nil, t, err
				}
				nodes = append(nodes, &Leaf{Text: text.String(), Children: items})
				text.Reset()
				continue
			}
			inner, end, err := p.parseFilter(true)
			if err != nil {
				return nil, t, err
			}
			if end.value != ")" {
				return nil, end, fmt.Errorf(groupErr, end.value)
			}
			nodes = append(nodes, &Leaf{Children: []WhereNode{
				&Expression{Join: JoinNone, Children: inner},
			}})
		default:
			s, err := filterText(t)
			if err != nil {
				return nil, t, err
			}
			text.WriteString(s)
		}
	}
}

// parseGroupItems parses comma separated items up to and including the
// closing parenthesis.
func (p *parser) parseGroupItems() ([]WhereNode, error) {
	items := []WhereNode{}
	for {
		seq, end, err := p.parseFilter(true)
		if err != nil {
			return nil, err
		}
		items = append(items, &Expression{Join: JoinNone, Children: seq})
		if end.value == ")" {
			return items, nil
		}
	}
}

// filterText renders a token in the REST filter syntax. String literals are
// unquoted and escaped so they survive as a single query value. Identifiers
// are escaped too since quoted names may hold any character.
func filterText(t token) (string, error) {
	switch t.tokenType {
	case tkIdentifier:
		return escapeFilterText(t.value), nil
	case tkNumeric, tkParam:
		return t.value, nil
	case tkSeparator:
		if t.value == "." {
			return t.value, nil
		}
	case tkOperator:
		if t.value == "<>" {
			return "!=", nil
		}
		return t.value, nil
	case tkLiteral:
		return escapeFilterText(unquote(t.value)), nil
	case tkKeyword:
		switch t.value {
		case kwNull, kwTrue, kwFalse:
			return strings.ToLower(t.value), nil
		}
	}
	return "", fmt.Errorf(tokenErr, t.value)
}

// escapeFilterText query escapes s. Dots are escaped as well so text can never
// be taken for a qualified field reference.
func escapeFilterText(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), ".", "%2E")
}

func (p *parser) parseOrderBy() ([]OrderTerm, token, error) {
	terms := []OrderTerm{}
	for {
		t := p.nextNonSpace()
		if t.tokenType != tkIdentifier {
			return nil, t, fmt.Errorf(identErr, t.value)
		}
		term := OrderTerm{Expr: t.value}
		n := p.nextNonSpace()
		if n.value == "." {
			c := p.nextNonSpace()
			if c.tokenType != tkIdentifier {
				return nil, c, fmt.Errorf(identErr, c.value)
			}
			term.Expr = t.value + "." + c.value
			n = p.nextNonSpace()
		}
		if n.value == kwAsc || n.value == kwDesc {
			term.Desc = n.value == kwDesc
			n = p.nextNonSpace()
		}
		terms = append(terms, term)
		if n.value != "," {
			return terms, n, nil
		}
	}
}

// parseLimit handles LIMIT count, LIMIT offset, count and
// LIMIT count OFFSET offset.
func (p *parser) parseLimit() (*Limit, token, error) {
	first := p.nextNonSpace()
	if first.tokenType != tkNumeric && first.tokenType != tkParam {
		return nil, first, fmt.Errorf(literalErr, first.value)
	}
	limit := &Limit{RowCount: first.value}
	n := p.nextNonSpace()
	if n.value == "," || n.value == kwOffset {
		second := p.nextNonSpace()
		if second.tokenType != tkNumeric && second.tokenType != tkParam {
			return nil, second, fmt.Errorf(literalErr, second.value)
		}
		if n.value == "," {
			limit.Offset = first.value
			limit.RowCount = second.value
		} else {
			limit.Offset = second.value
			limit.OffsetLast = true
		}
		n = p.nextNonSpace()
	}
	return limit, n, nil
}

func (p *parser) parseInsert() (*InsertStmt, error) {
	stmt := &InsertStmt{}
	if v := p.nextNonSpace().value; v != kwInto {
		return nil, fmt.Errorf(tokenErr, v)
	}
	tn := p.nextNonSpace()
	if tn.tokenType != tkIdentifier {
		return nil, fmt.Errorf(identErr, tn.value)
	}
	stmt.Table = &TableRef{Name: tn.value}
	n := p.nextNonSpace()
	if n.value == "(" {
		stmt.ColNames = []string{}
		for {
			i := p.nextNonSpace()
			if i.tokenType != tkIdentifier {
				return nil, fmt.Errorf(identErr, i.value)
			}
			stmt.ColNames = append(stmt.ColNames, i.value)
			sep := p.nextNonSpace()
			if sep.value == ")" {
				break
			}
			if sep.value != "," {
				return nil, fmt.Errorf(tokenErr, sep.value)
			}
		}
		n = p.nextNonSpace()
	}
	if n.value != kwValues {
		return nil, fmt.Errorf(tokenErr, n.value)
	}
	if v := p.nextNonSpace().value; v != "(" {
		return nil, fmt.Errorf(tokenErr, v)
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		stmt.ColValues = append(stmt.ColValues, v)
		sep := p.nextNonSpace()
		if sep.value == ")" {
			break
		}
		if sep.value != "," {
			return nil, fmt.Errorf(tokenErr, sep.value)
		}
	}
	if err := p.expectEnd(p.nextNonSpace()); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseValue parses a single insert value.
func (p *parser) parseValue() (Value, error) {
	v := p.nextNonSpace()
	switch v.tokenType {
	case tkParam:
		return Placeholder{}, nil
	case tkLiteral:
		return unquote(v.value), nil
	case tkNumeric:
		return parseNumber(v.value)
	case tkOperator:
		if v.value == "-" {
			n := p.nextNonSpace()
			if n.tokenType == tkNumeric {
				return parseNumber("-" + n.value)
			}
			v = n
		}
	case tkKeyword:
		switch v.value {
		case kwNull:
			return nil, nil
		case kwTrue:
			return true, nil
		case kwFalse:
			return false, nil
		}
	}
	return nil, fmt.Errorf(literalErr, v.value)
}

func (p *parser) parseUpdate() (*UpdateStmt, error) {
	stmt := &UpdateStmt{}
	table, n, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.Table = table
	if n.value != kwSet {
		return nil, fmt.Errorf(tokenErr, n.value)
	}
	set := &Expression{Join: JoinAnd}
	for {
		col := p.nextNonSpace()
		if col.tokenType != tkIdentifier {
			return nil, fmt.Errorf(identErr, col.value)
		}
		name := col.value
		eq := p.nextNonSpace()
		if eq.value == "." {
			c := p.nextNonSpace()
			if c.tokenType != tkIdentifier {
				return nil, fmt.Errorf(identErr, c.value)
			}
			name = name + "." + c.value
			eq = p.nextNonSpace()
		}
		if eq.value != "=" {
			return nil, fmt.Errorf(tokenErr, eq.value)
		}
		v := p.nextNonSpace()
		if v.tokenType == tkOperator && v.value == "-" {
			n := p.nextNonSpace()
			if n.tokenType != tkNumeric {
				return nil, fmt.Errorf(literalErr, n.value)
			}
			v = token{tkNumeric, "-" + n.value}
		}
		if v.tokenType == tkIdentifier || v.tokenType == tkSeparator || v.tokenType == tkOperator {
			return nil, fmt.Errorf(literalErr, v.value)
		}
		text, err := filterText(v)
		if err != nil {
			return nil, err
		}
		set.Children = append(set.Children, &Leaf{Text: name + "=" + text})
		n = p.nextNonSpace()
		if n.value != "," {
			break
		}
	}
	stmt.SetList = set
	if n.value == kwWhere {
		where, end, err := p.parseWhere()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
		n = end
	}
	if err := p.expectEnd(n); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseDelete() (*DeleteStmt, error) {
	stmt := &DeleteStmt{}
	if v := p.nextNonSpace().value; v != kwFrom {
		return nil, fmt.Errorf(tokenErr, v)
	}
	from, n, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.From = from
	if n.value == kwWhere {
		where, end, err := p.parseWhere()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
		n = end
	}
	if err := p.expectEnd(n); err != nil {
		return nil, err
	}
	return stmt, nil
}

// expectEnd asserts t ends the statement. Only whitespace may follow a
// terminating semicolon.
func (p *parser) expectEnd(t token) error {
	if t.tokenType == tkEOF {
		return nil
	}
	if t.value != ";" {
		return fmt.Errorf(tokenErr, t.value)
	}
	if n := p.nextNonSpace(); n.tokenType != tkEOF {
		return fmt.Errorf(tokenErr, n.value)
	}
	return nil
}

func (t token) is(keyword string) bool {
	return t.tokenType == tkKeyword && t.value == keyword
}

func (p *parser) current() token {
	if p.end < 0 || p.end > len(p.tokens)-1 {
		return token{tkEOF, ""}
	}
	return p.tokens[p.end]
}

func (p *parser) nextNonSpace() token {
	p.end = p.end + 1
	if p.end > len(p.tokens)-1 {
		return token{tkEOF, ""}
	}
	for p.tokens[p.end].tokenType == tkWhitespace {
		p.end = p.end + 1
		if p.end > len(p.tokens)-1 {
			return token{tkEOF, ""}
		}
	}
	return p.tokens[p.end]
}

// unquote strips the surrounding single quotes of a literal and collapses
// escaped quotes.
func unquote(literal string) string {
	s := literal
	if len(s) > 0 && s[0] == '\'' {
		s = s[1:]
	}
	if len(s) > 0 && s[len(s)-1] == '\'' {
		s = s[:len(s)-1]
	}
	return strings.ReplaceAll(s, "''", "'")
}

func parseNumber(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf(literalErr, s)
	}
	return f, nil
}
