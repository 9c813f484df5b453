// compiler is composed of a lexer and parser. These modules work in order to
// generate an AST (abstract syntax tree) from a SQL string. This AST is then
// passed to the transformer which turns it into a REST request.
package compiler

import "errors"

var errMultipleStatements = errors.New("only one statement is supported at a time")

// Parse lexes and parses a single SQL statement.
func Parse(sql string) (Stmt, error) {
	statements := NewLexer(sql).ToStatements()
	if len(statements) != 1 {
		return nil, errMultipleStatements
	}
	return NewParser(statements[0]).Parse()
}
