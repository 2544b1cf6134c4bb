// Package ast defines the typed syntax tree consumed by the IR code generator.
//
// Nodes in this package are produced by an external semantic analyzer: every
// expression already carries its ResolvedType (when one applies), and every
// node carries a Location for diagnostics. The lexer, parser and type checker
// that build this tree are outside the scope of this module.
package ast

// Location pinpoints the source position an AST node was built from.
type Location struct {
	File     string
	Line     int
	Column   int
	Position int
}

// ResolvedType is the semantic analyzer's classification of an expression's
// source-level type, attached to expression nodes that produce a value.
type ResolvedType struct {
	Name       string
	IsUnsigned bool
	IsFloat    bool
}

// Node is implemented by every AST node.
type Node interface {
	Loc() Location
}

// Expr is implemented by expression nodes. Every expression optionally
// carries a ResolvedType; Type returns the zero value when none was
// attached (e.g. statements lowered for side effect only).
type Expr interface {
	Node
	Type() *ResolvedType
	exprNode()
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// base is embedded by concrete node types to satisfy Node without repeating
// the Loc accessor everywhere.
type base struct {
	Location Location
}

func (b base) Loc() Location { return b.Location }

// exprBase is embedded by expression nodes.
type exprBase struct {
	base
	Resolved *ResolvedType
}

func (e exprBase) Type() *ResolvedType { return e.Resolved }
func (exprBase) exprNode()             {}

// stmtBase is embedded by statement nodes.
type stmtBase struct {
	base
}

func (stmtBase) stmtNode() {}
