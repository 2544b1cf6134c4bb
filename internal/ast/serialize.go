package ast

import (
	"encoding/json"
	"fmt"
)

// DecodeModule parses the wire-format JSON AST the driver reads from its
// input file into the node types the lowerer consumes. The wire format
// mirrors the node kinds declared in this package directly: every node is a
// JSON object carrying a "kind" discriminator plus that kind's own fields,
// with nested expressions and statements deferred as json.RawMessage so
// each dispatches to its own decoder recursively. This is the semantic
// analyzer's half of the contract described in the package doc comment —
// an external producer emits this shape, this package only consumes it.
func DecodeModule(data []byte) (*Module, error) {
	var wire moduleWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding module: %w", err)
	}
	mod := &Module{Name: wire.Name}
	for i, raw := range wire.Decls {
		d, err := decodeDecl(raw)
		if err != nil {
			return nil, fmt.Errorf("decl %d: %w", i, err)
		}
		mod.Decls = append(mod.Decls, d)
	}
	return mod, nil
}

type moduleWire struct {
	Name  string            `json:"name"`
	Decls []json.RawMessage `json:"decls"`
}

type locWire struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Position int    `json:"position"`
}

func (l locWire) toLocation() Location {
	return Location{File: l.File, Line: l.Line, Column: l.Column, Position: l.Position}
}

type typeWire struct {
	Name       string `json:"name"`
	IsUnsigned bool   `json:"is_unsigned"`
	IsFloat    bool   `json:"is_float"`
}

func (t *typeWire) toResolvedType() *ResolvedType {
	if t == nil {
		return nil
	}
	return &ResolvedType{Name: t.Name, IsUnsigned: t.IsUnsigned, IsFloat: t.IsFloat}
}

type paramWire struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
}

func (p paramWire) toParam() Param {
	return Param{Name: p.Name, TypeName: p.TypeName}
}

type fieldWire struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
}

func (f fieldWire) toFieldDecl() FieldDecl {
	return FieldDecl{Name: f.Name, TypeName: f.TypeName}
}

// kindWire peeks at a node's discriminator before dispatching to its full
// decode, the same two-pass approach used for any self-describing JSON
// union.
type kindWire struct {
	Kind string `json:"kind"`
}

func peekKind(raw json.RawMessage) (string, error) {
	var k kindWire
	if err := json.Unmarshal(raw, &k); err != nil {
		return "", err
	}
	if k.Kind == "" {
		return "", fmt.Errorf("node missing \"kind\" discriminator: %s", raw)
	}
	return k.Kind, nil
}

func decodeDecl(raw json.RawMessage) (Decl, error) {
	kind, err := peekKind(raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "FunctionDecl":
		var w functionDeclWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		fn := &FunctionDecl{
			base:       base{w.Loc.toLocation()},
			Name:       w.Name,
			TypeParams: w.TypeParams,
			ReturnType: w.ReturnType,
			IsExternal: w.IsExternal,
		}
		for _, p := range w.Params {
			fn.Params = append(fn.Params, p.toParam())
		}
		if len(w.Body) > 0 {
			body, err := decodeStmt(w.Body)
			if err != nil {
				return nil, fmt.Errorf("function %s body: %w", w.Name, err)
			}
			block, ok := body.(*Block)
			if !ok {
				return nil, fmt.Errorf("function %s body must be a block", w.Name)
			}
			fn.Body = block
		}
		return fn, nil

	case "RecordDecl":
		var w aggregateDeclWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		rec := &RecordDecl{base: base{w.Loc.toLocation()}, Name: w.Name, TypeParams: w.TypeParams}
		for _, f := range w.Fields {
			rec.Fields = append(rec.Fields, f.toFieldDecl())
		}
		return rec, nil

	case "EntityDecl":
		var w aggregateDeclWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		ent := &EntityDecl{base: base{w.Loc.toLocation()}, Name: w.Name, TypeParams: w.TypeParams}
		for _, f := range w.Fields {
			ent.Fields = append(ent.Fields, f.toFieldDecl())
		}
		for _, m := range w.Methods {
			decl, err := decodeDecl(m)
			if err != nil {
				return nil, fmt.Errorf("entity %s method: %w", w.Name, err)
			}
			fn, ok := decl.(*FunctionDecl)
			if !ok {
				return nil, fmt.Errorf("entity %s method is not a FunctionDecl", w.Name)
			}
			ent.Methods = append(ent.Methods, fn)
		}
		return ent, nil

	default:
		return nil, fmt.Errorf("unknown declaration kind %q", kind)
	}
}

type functionDeclWire struct {
	Kind       string            `json:"kind"`
	Loc        locWire           `json:"loc"`
	Name       string            `json:"name"`
	TypeParams []string          `json:"type_params"`
	Params     []paramWire       `json:"params"`
	ReturnType string            `json:"return_type"`
	Body       json.RawMessage   `json:"body"`
	IsExternal bool              `json:"is_external"`
}

type aggregateDeclWire struct {
	Kind       string            `json:"kind"`
	Loc        locWire           `json:"loc"`
	Name       string            `json:"name"`
	TypeParams []string          `json:"type_params"`
	Fields     []fieldWire       `json:"fields"`
	Methods    []json.RawMessage `json:"methods"`
}

// exprWire is the union of every field any expression kind needs. Only the
// fields relevant to Kind are populated by the producer; the rest are left
// at their zero value and ignored.
type exprWire struct {
	Kind string    `json:"kind"`
	Loc  locWire   `json:"loc"`
	Type *typeWire `json:"type"`

	LiteralKind string `json:"literal_kind"`
	Value       string `json:"value"`
	Suffix      string `json:"suffix"`
	Lang        string `json:"lang"`

	Name       string   `json:"name"`
	FieldName  string   `json:"field_name"`
	MethodName string   `json:"method_name"`
	Op         string   `json:"op"`
	TargetType string   `json:"target_type"`
	TypeArgs   []string `json:"type_args"`
	IsStatic   bool     `json:"is_static"`

	Left     json.RawMessage   `json:"left"`
	Right    json.RawMessage   `json:"right"`
	Operand  json.RawMessage   `json:"operand"`
	Object   json.RawMessage   `json:"object"`
	Receiver json.RawMessage   `json:"receiver"`
	Callee   json.RawMessage   `json:"callee"`
	Args     []json.RawMessage `json:"args"`
	Params   []paramWire       `json:"params"`
	Body     json.RawMessage   `json:"body"`
}

func decodeExpr(raw json.RawMessage) (Expr, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var w exprWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	eb := exprBase{base: base{w.Loc.toLocation()}, Resolved: w.Type.toResolvedType()}

	switch w.Kind {
	case "Literal":
		kind, err := decodeLiteralKind(w.LiteralKind)
		if err != nil {
			return nil, err
		}
		lang, err := decodeSourceLang(w.Lang)
		if err != nil {
			return nil, err
		}
		return &Literal{exprBase: eb, Kind: kind, Value: w.Value, Suffix: w.Suffix, Lang: lang}, nil

	case "Identifier":
		return &Identifier{exprBase: eb, Name: w.Name}, nil

	case "Binary":
		left, err := decodeExpr(w.Left)
		if err != nil {
			return nil, fmt.Errorf("binary left: %w", err)
		}
		right, err := decodeExpr(w.Right)
		if err != nil {
			return nil, fmt.Errorf("binary right: %w", err)
		}
		return &Binary{exprBase: eb, Op: w.Op, Left: left, Right: right}, nil

	case "Unary":
		operand, err := decodeExpr(w.Operand)
		if err != nil {
			return nil, fmt.Errorf("unary operand: %w", err)
		}
		return &Unary{exprBase: eb, Op: w.Op, Operand: operand}, nil

	case "Call":
		callee, err := decodeExpr(w.Callee)
		if err != nil {
			return nil, fmt.Errorf("call callee: %w", err)
		}
		args, err := decodeExprList(w.Args)
		if err != nil {
			return nil, fmt.Errorf("call args: %w", err)
		}
		return &Call{exprBase: eb, Callee: callee, Args: args}, nil

	case "GenericMethodCall":
		receiver, err := decodeExpr(w.Receiver)
		if err != nil {
			return nil, fmt.Errorf("generic call receiver: %w", err)
		}
		args, err := decodeExprList(w.Args)
		if err != nil {
			return nil, fmt.Errorf("generic call args: %w", err)
		}
		return &GenericMethodCall{
			exprBase: eb, Receiver: receiver, MethodName: w.MethodName,
			TypeArgs: w.TypeArgs, Args: args, IsStatic: w.IsStatic,
		}, nil

	case "Member":
		object, err := decodeExpr(w.Object)
		if err != nil {
			return nil, fmt.Errorf("member object: %w", err)
		}
		return &Member{exprBase: eb, Object: object, FieldName: w.FieldName}, nil

	case "GenericMember":
		object, err := decodeExpr(w.Object)
		if err != nil {
			return nil, fmt.Errorf("generic member object: %w", err)
		}
		return &GenericMember{exprBase: eb, Object: object, FieldName: w.FieldName, TypeArgs: w.TypeArgs}, nil

	case "TypeConversion":
		operand, err := decodeExpr(w.Operand)
		if err != nil {
			return nil, fmt.Errorf("conversion operand: %w", err)
		}
		return &TypeConversion{exprBase: eb, Operand: operand, TargetType: w.TargetType}, nil

	case "Lambda":
		body, err := decodeStmt(w.Body)
		if err != nil {
			return nil, fmt.Errorf("lambda body: %w", err)
		}
		params := make([]Param, len(w.Params))
		for i, p := range w.Params {
			params[i] = p.toParam()
		}
		return &Lambda{exprBase: eb, Params: params, Body: body}, nil

	case "IntrinsicCall":
		args, err := decodeExprList(w.Args)
		if err != nil {
			return nil, fmt.Errorf("intrinsic args: %w", err)
		}
		return &IntrinsicCall{exprBase: eb, Name: w.Name, TypeArgs: w.TypeArgs, Args: args}, nil

	case "MemoryOperation":
		args, err := decodeExprList(w.Args)
		if err != nil {
			return nil, fmt.Errorf("memory op args: %w", err)
		}
		return &MemoryOperation{exprBase: eb, Op: w.Op, TypeArgs: w.TypeArgs, Args: args}, nil

	case "NativeCall":
		args, err := decodeExprList(w.Args)
		if err != nil {
			return nil, fmt.Errorf("native call args: %w", err)
		}
		return &NativeCall{exprBase: eb, Name: w.Name, Args: args}, nil

	case "TypeExpression":
		return &TypeExpression{exprBase: eb, Name: w.Name}, nil

	default:
		return nil, fmt.Errorf("unknown expression kind %q", w.Kind)
	}
}

func decodeExprList(raws []json.RawMessage) ([]Expr, error) {
	out := make([]Expr, 0, len(raws))
	for i, raw := range raws {
		e, err := decodeExpr(raw)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeLiteralKind(s string) (LiteralKind, error) {
	switch s {
	case "integer":
		return IntegerLiteral, nil
	case "decimal":
		return DecimalLiteral, nil
	case "bool":
		return BoolLiteral, nil
	case "string":
		return StringLiteral, nil
	default:
		return 0, fmt.Errorf("unknown literal kind %q", s)
	}
}

func decodeSourceLang(s string) (SourceLang, error) {
	switch s {
	case "", "rf":
		return LangRF, nil
	case "sf":
		return LangSF, nil
	default:
		return 0, fmt.Errorf("unknown source language %q", s)
	}
}

// stmtWire is the union of every field any statement kind needs.
type stmtWire struct {
	Kind string  `json:"kind"`
	Loc  locWire `json:"loc"`

	Stmts []json.RawMessage `json:"stmts"`
	Tail  json.RawMessage   `json:"tail"`

	Cond json.RawMessage `json:"cond"`
	Then json.RawMessage `json:"then"`
	Else json.RawMessage `json:"else"`

	Init json.RawMessage `json:"init"`
	Post json.RawMessage `json:"post"`
	Body json.RawMessage `json:"body"`

	Value json.RawMessage `json:"value"`

	Names    []string        `json:"names"`
	TypeName string          `json:"type_name"`

	Target lvalueWire `json:"target"`

	ScopedKind string          `json:"scoped_kind"`
	Source     json.RawMessage `json:"source"`
	Handle     string          `json:"handle"`
}

type lvalueWire struct {
	Name   string          `json:"name"`
	Object json.RawMessage `json:"object"`
	Field  string          `json:"field"`
}

func decodeStmt(raw json.RawMessage) (Stmt, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var w stmtWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	sb := stmtBase{base: base{w.Loc.toLocation()}}

	switch w.Kind {
	case "Block":
		stmts, err := decodeStmtList(w.Stmts)
		if err != nil {
			return nil, fmt.Errorf("block stmts: %w", err)
		}
		tail, err := decodeExpr(w.Tail)
		if err != nil {
			return nil, fmt.Errorf("block tail: %w", err)
		}
		return &Block{stmtBase: sb, Stmts: stmts, Tail: tail}, nil

	case "If":
		cond, err := decodeExpr(w.Cond)
		if err != nil {
			return nil, fmt.Errorf("if cond: %w", err)
		}
		then, err := decodeBlock(w.Then)
		if err != nil {
			return nil, fmt.Errorf("if then: %w", err)
		}
		elseBlock, err := decodeBlock(w.Else)
		if err != nil {
			return nil, fmt.Errorf("if else: %w", err)
		}
		return &If{stmtBase: sb, Cond: cond, Then: then, Else: elseBlock}, nil

	case "While":
		cond, err := decodeExpr(w.Cond)
		if err != nil {
			return nil, fmt.Errorf("while cond: %w", err)
		}
		body, err := decodeBlock(w.Body)
		if err != nil {
			return nil, fmt.Errorf("while body: %w", err)
		}
		return &While{stmtBase: sb, Cond: cond, Body: body}, nil

	case "For":
		init, err := decodeStmt(w.Init)
		if err != nil {
			return nil, fmt.Errorf("for init: %w", err)
		}
		cond, err := decodeExpr(w.Cond)
		if err != nil {
			return nil, fmt.Errorf("for cond: %w", err)
		}
		post, err := decodeStmt(w.Post)
		if err != nil {
			return nil, fmt.Errorf("for post: %w", err)
		}
		body, err := decodeBlock(w.Body)
		if err != nil {
			return nil, fmt.Errorf("for body: %w", err)
		}
		return &For{stmtBase: sb, Init: init, Cond: cond, Post: post, Body: body}, nil

	case "Return":
		value, err := decodeExpr(w.Value)
		if err != nil {
			return nil, fmt.Errorf("return value: %w", err)
		}
		return &Return{stmtBase: sb, Value: value}, nil

	case "Break":
		return &Break{stmtBase: sb}, nil

	case "Continue":
		return &Continue{stmtBase: sb}, nil

	case "Declaration":
		init, err := decodeExpr(w.Value)
		if err != nil {
			return nil, fmt.Errorf("declaration init: %w", err)
		}
		return &Declaration{stmtBase: sb, Names: w.Names, TypeName: w.TypeName, Init: init}, nil

	case "Assignment":
		value, err := decodeExpr(w.Value)
		if err != nil {
			return nil, fmt.Errorf("assignment value: %w", err)
		}
		object, err := decodeExpr(w.Target.Object)
		if err != nil {
			return nil, fmt.Errorf("assignment target object: %w", err)
		}
		return &Assignment{
			stmtBase: sb,
			Target:   LValue{Name: w.Target.Name, Object: object, Field: w.Target.Field},
			Value:    value,
		}, nil

	case "ExpressionStatement":
		value, err := decodeExpr(w.Value)
		if err != nil {
			return nil, fmt.Errorf("expression statement: %w", err)
		}
		return &ExpressionStatement{stmtBase: sb, Value: value}, nil

	case "TupleDestructuring":
		value, err := decodeExpr(w.Value)
		if err != nil {
			return nil, fmt.Errorf("tuple destructuring value: %w", err)
		}
		return &TupleDestructuring{stmtBase: sb, Names: w.Names, Value: value}, nil

	case "ScopedAccess":
		kind, err := decodeScopedAccessKind(w.ScopedKind)
		if err != nil {
			return nil, err
		}
		source, err := decodeExpr(w.Source)
		if err != nil {
			return nil, fmt.Errorf("scoped access source: %w", err)
		}
		body, err := decodeBlock(w.Body)
		if err != nil {
			return nil, fmt.Errorf("scoped access body: %w", err)
		}
		return &ScopedAccess{stmtBase: sb, Kind: kind, Source: source, Handle: w.Handle, Body: body}, nil

	case "Danger":
		body, err := decodeBlock(w.Body)
		if err != nil {
			return nil, fmt.Errorf("danger body: %w", err)
		}
		return &Danger{stmtBase: sb, Body: body}, nil

	default:
		return nil, fmt.Errorf("unknown statement kind %q", w.Kind)
	}
}

func decodeStmtList(raws []json.RawMessage) ([]Stmt, error) {
	out := make([]Stmt, 0, len(raws))
	for i, raw := range raws {
		s, err := decodeStmt(raw)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeBlock(raw json.RawMessage) (*Block, error) {
	s, err := decodeStmt(raw)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	block, ok := s.(*Block)
	if !ok {
		return nil, fmt.Errorf("expected a block, got %T", s)
	}
	return block, nil
}

func decodeScopedAccessKind(s string) (ScopedAccessKind, error) {
	switch s {
	case "viewing":
		return Viewing, nil
	case "hijacking":
		return Hijacking, nil
	case "inspecting":
		return Inspecting, nil
	case "seizing":
		return Seizing, nil
	default:
		return 0, fmt.Errorf("unknown scoped access kind %q", s)
	}
}
