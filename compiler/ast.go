package compiler

// ast (Abstract Syntax Tree) defines a data structure representing a SQL
// statement. This data structure is generated from the parser and is
// transformed into a REST request by the transformer.

// Stmt is one of *SelectStmt, *InsertStmt, *UpdateStmt or *DeleteStmt.
type Stmt interface {
	// Operation is the leading keyword of the statement for example SELECT.
	Operation() string
}

// TableRef names the resource a statement operates on.
type TableRef struct {
	Name string
	// Alias is the alias in FROM users u. It is empty when no alias was given.
	Alias string
}

type SelectStmt struct {
	From          *TableRef
	ResultColumns []ResultColumn
	// Where is nil when there is no where clause.
	Where   WhereNode
	OrderBy []OrderTerm
	Limit   *Limit
}

func (*SelectStmt) Operation() string { return kwSelect }

// ResultColumn is the column definitions in a select statement.
type ResultColumn struct {
	// All is * in a select statement for example SELECT * FROM foo
	All bool
	// Table is the qualifier in SELECT u.name FROM users u.
	Table  string
	Column string
	// Alias is the alias for a column for example SELECT name AS n
	Alias string
}

type InsertStmt struct {
	Table *TableRef
	// ColNames is nil when the statement has no column list.
	ColNames []string
	// ColValues holds either Placeholder or a literal (string, int64,
	// float64, bool or nil) for each value in the VALUES list.
	ColValues []Value
}

func (*InsertStmt) Operation() string { return kwInsert }

type UpdateStmt struct {
	Table *TableRef
	// SetList is an *Expression with one *Leaf per assignment for example
	// "name=?".
	SetList WhereNode
	// Where is the where clause. It may be nil when there is no where.
	Where WhereNode
}

func (*UpdateStmt) Operation() string { return kwUpdate }

type DeleteStmt struct {
	From  *TableRef
	Where WhereNode
}

func (*DeleteStmt) Operation() string { return kwDelete }

// Value is an insert value.
type Value any

// Placeholder is the positional parameter "?".
type Placeholder struct{}

// OrderTerm is a single ORDER BY entry.
type OrderTerm struct {
	// Expr is the ordering expression as written, for example u.name.
	Expr string
	Desc bool
}

// Limit holds the LIMIT clause. Each part is either a numeric literal, "?" or
// empty when absent.
type Limit struct {
	Offset   string
	RowCount string
	// OffsetLast is true for LIMIT count OFFSET offset where the offset is
	// written after the row count.
	OffsetLast bool
}

// WhereNode is either an *Expression or a *Leaf.
type WhereNode interface {
	whereNode()
}

// Joiner is the separator an Expression writes after each of its children.
type Joiner int

const (
	// JoinAnd writes "&" after every child. It is the default.
	JoinAnd Joiner = iota
	// JoinNone concatenates the children.
	JoinNone
)

func (j Joiner) Separator() string {
	if j == JoinNone {
		return ""
	}
	return "&"
}

// Expression combines its children in order.
type Expression struct {
	Children []WhereNode
	Join     Joiner
}

func (*Expression) whereNode() {}

// Leaf is a raw filter fragment like "age>?" or a bare "AND". When Children is
// non-empty the leaf is a grouping. Children are rendered in parentheses
// after Text separated by commas, for example the argument list of an IN.
type Leaf struct {
	Text     string
	Children []WhereNode
}

func (*Leaf) whereNode() {}
