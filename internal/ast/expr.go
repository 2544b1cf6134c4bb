package ast

// LiteralKind classifies the token that produced a Literal expression.
type LiteralKind int

const (
	IntegerLiteral LiteralKind = iota
	DecimalLiteral
	BoolLiteral
	StringLiteral
)

// SourceLang distinguishes which of the two front-end languages produced a
// node, needed only where the two disagree on defaulting rules (unsuffixed
// numeric literals).
type SourceLang int

const (
	LangRF SourceLang = iota
	LangSF
)

// Literal is an integer, decimal, boolean or string constant.
//
// Suffix carries the explicit type suffix written in source (e.g. "s32",
// "u8", "f64"); it is empty for an unsuffixed numeric literal, in which case
// Lang decides the default type.
type Literal struct {
	exprBase
	Kind   LiteralKind
	Value  string
	Suffix string
	Lang   SourceLang
}

// Identifier references a bound name: a local, parameter, or global.
type Identifier struct {
	exprBase
	Name string
}

// Binary is a two-operand expression resolved to a primitive operator
// (arithmetic, bitwise or relational).
type Binary struct {
	exprBase
	Op          string
	Left, Right Expr
}

// Unary is a single-operand expression ("-x", "~x").
type Unary struct {
	exprBase
	Op      string
	Operand Expr
}

// Call is a plain, non-generic function call.
type Call struct {
	exprBase
	Callee Expr
	Args   []Expr
}

// GenericMethodCall is a call that may resolve to a danger-zone function, a
// compiler-service intrinsic, a user-defined generic function, a generic
// record/entity constructor, an external generic type constructor, or an
// instance/static method — resolution order is the ExpressionLowerer's job.
type GenericMethodCall struct {
	exprBase
	Receiver   Expr // nil for a free function call
	MethodName string
	TypeArgs   []string
	Args       []Expr
	IsStatic   bool // callee is a TypeExpression: no implicit self argument
}

// Member is a non-generic field access ("obj.field").
type Member struct {
	exprBase
	Object    Expr
	FieldName string
}

// GenericMember accesses a field through a generic instantiation, e.g. the
// field of a monomorphized record.
type GenericMember struct {
	exprBase
	Object    Expr
	FieldName string
	TypeArgs  []string
}

// TypeConversion is an explicit "as" cast.
type TypeConversion struct {
	exprBase
	Operand    Expr
	TargetType string
}

// Param is a lambda or function parameter.
type Param struct {
	Name     string
	TypeName string
}

// Lambda is an anonymous function literal. It is lowered into its own
// pending definition and yields a function pointer at the use site.
type Lambda struct {
	exprBase
	Params []Param
	Body   Stmt
}

// IntrinsicCall invokes a `@intrinsic.*` pseudo-operation. Name is the
// dotted intrinsic name without the "@intrinsic." prefix (e.g.
// "add", "add.saturating", "icmp.slt", "sqrt", "atomic.cmpxchg", "sizeof").
type IntrinsicCall struct {
	exprBase
	Name     string
	TypeArgs []string
	Args     []Expr
}

// MemoryOperation is a direct memory access primitive
// (load/store/volatile_load/volatile_store/bitcast/invalidate).
type MemoryOperation struct {
	exprBase
	Op       string
	TypeArgs []string
	Args     []Expr
}

// NativeCall invokes an external (C-ABI) function by name.
type NativeCall struct {
	exprBase
	Name string
	Args []Expr
}

// TypeExpression denotes a type used in value position: the callee of a
// static method call, or the type argument of sizeof/alignof.
type TypeExpression struct {
	exprBase
	Name string
}
