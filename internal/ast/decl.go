package ast

// FieldDecl is one field of a record or entity.
type FieldDecl struct {
	Name     string
	TypeName string
}

// FunctionDecl is a top-level or member function. TypeParams is empty for a
// non-generic function; when non-empty the function is instantiated on
// demand per the set of type arguments observed at call sites.
type FunctionDecl struct {
	base
	Name       string
	TypeParams []string
	Params     []Param
	ReturnType string
	Body       *Block
	IsExternal bool // declared via a native binding, has no Body
}

// RecordDecl is a value-type aggregate ("record-wrapped primitives" are
// single-field instances of this with TypeParams empty).
type RecordDecl struct {
	base
	Name       string
	TypeParams []string
	Fields     []FieldDecl
}

// EntityDecl is a reference-type aggregate with methods.
type EntityDecl struct {
	base
	Name       string
	TypeParams []string
	Fields     []FieldDecl
	Methods    []*FunctionDecl
}

// Decl is implemented by top-level declarations.
type Decl interface {
	Node
	declNode()
}

func (*FunctionDecl) declNode() {}
func (*RecordDecl) declNode()   {}
func (*EntityDecl) declNode()   {}

// Module is the full set of declarations lowered into a single IR module.
type Module struct {
	Name  string
	Decls []Decl
}
