package llvm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/razorforge-lang/irgen/internal/ast"
)

// LowerExpr visits an expression node and returns the IR operand carrying
// its value (empty for a void-producing expression) together with the
// operand's IR type.
func (e *Emitter) LowerExpr(expr ast.Expr) (operand, irType string, err error) {
	switch x := expr.(type) {
	case *ast.Literal:
		return e.lowerLiteral(x)
	case *ast.Identifier:
		return e.lowerIdentifier(x)
	case *ast.Binary:
		return e.lowerBinary(x)
	case *ast.Unary:
		return e.lowerUnary(x)
	case *ast.Call:
		return e.lowerCall(x)
	case *ast.GenericMethodCall:
		return e.lowerGenericMethodCall(x)
	case *ast.Member:
		return e.lowerMember(x)
	case *ast.GenericMember:
		return e.lowerGenericMember(x)
	case *ast.TypeConversion:
		return e.lowerTypeConversion(x)
	case *ast.Lambda:
		return e.lowerLambda(x)
	case *ast.IntrinsicCall:
		return e.lowerIntrinsicCall(x)
	case *ast.MemoryOperation:
		return e.lowerMemoryOperation(x)
	case *ast.NativeCall:
		return e.lowerNativeCall(x)
	case *ast.TypeExpression:
		return "", "", e.fail(invalidOperation(x.Loc(), "a type expression has no runtime value outside a static call or sizeof/alignof"))
	default:
		return "", "", e.fail(notImplemented(expr.Loc(), fmt.Sprintf("expression node %T", expr)))
	}
}

func (e *Emitter) resolvedTypeName(expr ast.Expr, lang ast.SourceLang, defaultInt, defaultDec string) string {
	if rt := expr.Type(); rt != nil && rt.Name != "" {
		return rt.Name
	}
	if lit, ok := expr.(*ast.Literal); ok {
		switch lit.Kind {
		case ast.IntegerLiteral:
			return defaultInt
		case ast.DecimalLiteral:
			return defaultDec
		}
	}
	return defaultInt
}

func (e *Emitter) lowerLiteral(lit *ast.Literal) (string, string, error) {
	switch lit.Kind {
	case ast.BoolLiteral:
		v := "0"
		if lit.Value == "true" {
			v = "1"
		}
		return v, "i1", nil

	case ast.StringLiteral:
		// Strings are opaque pointers at this layer; the constant pool is
		// owned by the surrounding module emission, out of scope for the
		// expression lowerer itself.
		return fmt.Sprintf("getelementptr inbounds ([%d x i8], [%d x i8]* @.str.lit, i64 0, i64 0)", len(lit.Value)+1, len(lit.Value)+1), "ptr", nil

	case ast.IntegerLiteral:
		source := lit.Suffix
		if source == "" {
			if lit.Lang == ast.LangRF {
				source = "s64"
			} else {
				// SF defaults unsuffixed integers to an arbitrary-precision
				// handle rather than a fixed-width machine integer.
				return e.lowerBigintLiteral(lit)
			}
		}
		ir, err := e.MapType(source)
		if err != nil {
			return "", "", e.fail(typeResolutionFailed(lit.Loc(), source, "integer literal suffix"))
		}
		return lit.Value, ir, nil

	case ast.DecimalLiteral:
		source := lit.Suffix
		if source == "" {
			if lit.Lang == ast.LangRF {
				source = "f64"
			} else {
				return e.lowerDecimalHandleLiteral(lit)
			}
		}
		ir, err := e.MapType(source)
		if err != nil {
			return "", "", e.fail(typeResolutionFailed(lit.Loc(), source, "decimal literal suffix"))
		}
		return formatFloatLiteral(lit.Value), ir, nil

	default:
		return "", "", e.fail(notImplemented(lit.Loc(), "literal kind"))
	}
}

func formatFloatLiteral(v string) string {
	if !strings.Contains(v, ".") && !strings.ContainsAny(v, "eE") {
		return v + ".0"
	}
	return v
}

func (e *Emitter) lowerBigintLiteral(lit *ast.Literal) (string, string, error) {
	t := e.nextTemp()
	e.declareExternOnce("bf_alloc_number", "declare i8* @bf_alloc_number()")
	e.declareExternOnce("bf_set_si", "declare void @bf_set_si(i8*, i64)")
	e.emitf("  %s = call i8* @bf_alloc_number()", t)
	n, err := strconv.ParseInt(lit.Value, 10, 64)
	if err != nil {
		n = 0
	}
	e.emitf("  call void @bf_set_si(i8* %s, i64 %d)", t, n)
	e.setTempType(t, "ptr")
	return t, "ptr", nil
}

func (e *Emitter) lowerDecimalHandleLiteral(lit *ast.Literal) (string, string, error) {
	t := e.nextTemp()
	e.declareExternOnce("mafm_alloc_number", "declare i8* @mafm_alloc_number()")
	e.declareExternOnce("mafm_set_str", "declare void @mafm_set_str(i8*, i8*)")
	e.emitf("  %s = call i8* @mafm_alloc_number()", t)
	e.setTempType(t, "ptr")
	return t, "ptr", nil
}

func (e *Emitter) lowerIdentifier(id *ast.Identifier) (string, string, error) {
	irType, sourceType, ok := e.Scope.Lookup(id.Name)
	if !ok {
		return "", "", e.fail(typeResolutionFailed(id.Loc(), id.Name, "identifier reference"))
	}
	if operand, aliased := e.Scope.LookupAlias(id.Name); aliased {
		return operand, irType, nil
	}
	if e.Scope.IsParameter(id.Name) {
		return "%" + id.Name, irType, nil
	}
	t := e.nextTemp()
	e.emitf("  %s = load %s, %s* %%%s.addr", t, irType, irType, id.Name)
	e.setTempType(t, irType)
	_ = sourceType
	return t, irType, nil
}

func (e *Emitter) lowerBinary(b *ast.Binary) (string, string, error) {
	leftOperand, leftIR, err := e.LowerExpr(b.Left)
	if err != nil {
		return "", "", err
	}
	rightOperand, rightIR, err := e.LowerExpr(b.Right)
	if err != nil {
		return "", "", err
	}

	leftSource := e.resolvedTypeName(b.Left, ast.LangRF, "s64", "f64")
	leftOperand, leftSource, wrapped, err := e.unwrapOperand(leftOperand, leftSource)
	if err != nil {
		return "", "", err
	}
	if wrapped {
		leftIR, _ = e.MapType(leftSource)
	}
	rightSource := e.resolvedTypeName(b.Right, ast.LangRF, "s64", "f64")
	rightOperand, _, _, err = e.unwrapOperand(rightOperand, rightSource)
	if err != nil {
		return "", "", err
	}

	isComparison := strings.Contains("== != < <= > >=", b.Op)
	isUnsigned, isFloat := e.Types.Classify(leftSource)

	var llOp string
	switch b.Op {
	case "+":
		llOp = pick(isFloat, "fadd", "add")
	case "-":
		llOp = pick(isFloat, "fsub", "sub")
	case "*":
		llOp = pick(isFloat, "fmul", "mul")
	case "/":
		llOp = floatOr(isFloat, "fdiv", isUnsigned, "udiv", "sdiv")
	case "%":
		llOp = floatOr(isFloat, "frem", isUnsigned, "urem", "srem")
	case "&":
		llOp = "and"
	case "|":
		llOp = "or"
	case "^":
		llOp = "xor"
	case "<<":
		llOp = "shl"
	case ">>":
		llOp = pick(isUnsigned, "lshr", "ashr")
	case "==", "!=", "<", "<=", ">", ">=":
		llOp = cmpMnemonic(isFloat, isUnsigned, b.Op)
	default:
		return "", "", e.fail(notImplemented(b.Loc(), fmt.Sprintf("binary operator %q", b.Op)))
	}

	t := e.nextTemp()
	if isComparison {
		pred := cmpPredicate(b.Op, isFloat, isUnsigned)
		e.emitf("  %s = %s %s %s %s, %s", t, llOp, pred, leftIR, leftOperand, rightOperand)
		e.setTempType(t, "i1")
		return t, "i1", nil
	}

	e.emitf("  %s = %s %s %s, %s", t, llOp, leftIR, leftOperand, rightOperand)
	e.setTempType(t, leftIR)
	_ = rightIR
	return t, leftIR, nil
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func floatOr(isFloat bool, fop string, isUnsigned bool, uop, sop string) string {
	if isFloat {
		return fop
	}
	if isUnsigned {
		return uop
	}
	return sop
}

func cmpMnemonic(isFloat, isUnsigned bool, op string) string {
	if isFloat {
		return "fcmp"
	}
	return "icmp"
}

func cmpPredicate(op string, isFloat, isUnsigned bool) string {
	if isFloat {
		switch op {
		case "==":
			return "oeq"
		case "!=":
			return "one"
		case "<":
			return "olt"
		case "<=":
			return "ole"
		case ">":
			return "ogt"
		case ">=":
			return "oge"
		}
	}
	switch op {
	case "==":
		return "eq"
	case "!=":
		return "ne"
	case "<":
		return pick(isUnsigned, "ult", "slt")
	case "<=":
		return pick(isUnsigned, "ule", "sle")
	case ">":
		return pick(isUnsigned, "ugt", "sgt")
	case ">=":
		return pick(isUnsigned, "uge", "sge")
	}
	return "eq"
}

func (e *Emitter) lowerUnary(u *ast.Unary) (string, string, error) {
	operand, irType, err := e.LowerExpr(u.Operand)
	if err != nil {
		return "", "", err
	}
	source := e.resolvedTypeName(u.Operand, ast.LangRF, "s64", "f64")
	_, isFloat := e.Types.Classify(source)

	switch u.Op {
	case "-":
		t := e.nextTemp()
		if isFloat {
			e.emitf("  %s = fneg %s %s", t, irType, operand)
		} else {
			e.emitf("  %s = sub %s 0, %s", t, irType, operand)
		}
		e.setTempType(t, irType)
		return t, irType, nil
	case "~":
		t := e.nextTemp()
		e.emitf("  %s = xor %s %s, -1", t, irType, operand)
		e.setTempType(t, irType)
		return t, irType, nil
	case "!":
		t := e.nextTemp()
		e.emitf("  %s = xor i1 %s, 1", t, operand)
		e.setTempType(t, "i1")
		return t, "i1", nil
	default:
		return "", "", e.fail(notImplemented(u.Loc(), fmt.Sprintf("unary operator %q", u.Op)))
	}
}

func (e *Emitter) lowerCall(c *ast.Call) (string, string, error) {
	callee, ok := c.Callee.(*ast.Identifier)
	if !ok {
		return "", "", e.fail(notImplemented(c.Loc(), "indirect call through a non-identifier callee"))
	}

	var argOperands, argIR []string
	for _, a := range c.Args {
		op, ir, err := e.LowerExpr(a)
		if err != nil {
			return "", "", err
		}
		argOperands = append(argOperands, op)
		argIR = append(argIR, ir)
	}

	retIR := "i32"
	if rt := c.Type(); rt != nil && rt.Name != "" {
		if ir, err := e.MapType(rt.Name); err == nil {
			retIR = ir
		}
	}

	if retIR == "void" {
		e.emitf("  call void @%s(%s)", callee.Name, joinArgs(argIR, argOperands))
		return "", "", nil
	}

	t := e.nextTemp()
	e.emitf("  %s = call %s @%s(%s)", t, retIR, callee.Name, joinArgs(argIR, argOperands))
	e.setTempType(t, retIR)
	return t, retIR, nil
}

func joinArgs(irTypes, operands []string) string {
	parts := make([]string, len(irTypes))
	for i := range irTypes {
		parts[i] = irTypes[i] + " " + operands[i]
	}
	return strings.Join(parts, ", ")
}

func (e *Emitter) lowerMember(m *ast.Member) (string, string, error) {
	objOperand, _, err := e.LowerExpr(m.Object)
	if err != nil {
		return "", "", err
	}
	recordSource := e.resolvedTypeName(m.Object, ast.LangRF, "", "")
	if recordSource == "" {
		return "", "", e.fail(typeResolutionFailed(m.Loc(), "", fmt.Sprintf("member access .%s: object has no resolved type", m.FieldName)))
	}

	index, fieldSource, ok := e.Scope.FieldIndex(recordSource, m.FieldName)
	if !ok {
		return "", "", e.fail(typeResolutionFailed(m.Loc(), recordSource, fmt.Sprintf("field %q", m.FieldName)))
	}
	fieldIR, err := e.MapType(fieldSource)
	if err != nil {
		return "", "", e.fail(typeResolutionFailed(m.Loc(), fieldSource, fmt.Sprintf("field %s.%s", recordSource, m.FieldName)))
	}
	recordIR, err := e.MapType(recordSource)
	if err != nil {
		return "", "", e.fail(typeResolutionFailed(m.Loc(), recordSource, "member access object type"))
	}

	isEntity := e.entityTypes[strings.TrimPrefix(recordSource, "%")]
	t := e.nextTemp()
	if isEntity {
		ptr := e.nextTemp()
		e.emitf("  %s = getelementptr inbounds %s, %s %s, i32 0, i32 %d", ptr, strings.TrimSuffix(recordIR, "*"), recordIR, objOperand, index)
		e.emitf("  %s = load %s, %s* %s", t, fieldIR, fieldIR, ptr)
	} else {
		e.emitf("  %s = extractvalue %s %s, %d", t, recordIR, objOperand, index)
	}
	e.setTempType(t, fieldIR)
	return t, fieldIR, nil
}

func (e *Emitter) lowerGenericMember(m *ast.GenericMember) (string, string, error) {
	mangled, err := e.mangleGenericName(m.FieldName, m.TypeArgs)
	if err != nil {
		return "", "", err
	}
	return e.lowerMember(&ast.Member{Object: m.Object, FieldName: mangled})
}

func (e *Emitter) lowerTypeConversion(c *ast.TypeConversion) (string, string, error) {
	operand, fromIR, err := e.LowerExpr(c.Operand)
	if err != nil {
		return "", "", err
	}
	fromSource := e.resolvedTypeName(c.Operand, ast.LangRF, "s64", "f64")

	if fieldSource, wrapped := e.isRecordWrapped(c.TargetType); wrapped {
		primOp, primIR, err := e.convertScalar(operand, fromSource, fieldSource, fromIR, c.Loc())
		if err != nil {
			return "", "", err
		}
		return e.rewrapAfterConversion(primOp, primIR, c.TargetType)
	}

	if _, err := e.MapType(c.TargetType); err != nil {
		return "", "", e.fail(typeResolutionFailed(c.Loc(), c.TargetType, "conversion target"))
	}
	if fromIR == "ptr" && isAggregateRecord(e, c.TargetType) {
		return "", "", e.fail(invalidOperation(c.Loc(), fmt.Sprintf("cannot convert pointer to multi-field record %q", c.TargetType)))
	}

	return e.convertScalar(operand, fromSource, c.TargetType, fromIR, c.Loc())
}

func isAggregateRecord(e *Emitter, sourceType string) bool {
	name := strings.TrimPrefix(sourceType, "%")
	fields, ok := e.Scope.RecordFields[name]
	return ok && len(fields) > 1
}

func (e *Emitter) rewrapAfterConversion(primOp, primIR, recordType string) (string, string, error) {
	wrapped, err := e.rewrapOperand(primOp, primIR, recordType)
	if err != nil {
		return "", "", err
	}
	recordIR, _ := e.MapType(recordType)
	return wrapped, recordIR, nil
}

func (e *Emitter) convertScalar(operand, fromSource, toSource, fromIR string, loc ast.Location) (string, string, error) {
	toIR, err := e.MapType(toSource)
	if err != nil {
		return "", "", e.fail(typeResolutionFailed(loc, toSource, "conversion target"))
	}
	op, err := e.Types.ConversionOp(fromSource, toSource)
	if err != nil {
		return "", "", e.fail(typeResolutionFailed(loc, toSource, "conversion op lookup"))
	}
	if string(op) == "bitcast" && fromIR == toIR {
		return operand, toIR, nil
	}
	t := e.nextTemp()
	e.emitf("  %s = %s %s %s to %s", t, op, fromIR, operand, toIR)
	e.setTempType(t, toIR)
	return t, toIR, nil
}

func (e *Emitter) lowerNativeCall(n *ast.NativeCall) (string, string, error) {
	var argOperands, argIR []string
	for _, a := range n.Args {
		op, ir, err := e.LowerExpr(a)
		if err != nil {
			return "", "", err
		}
		argOperands = append(argOperands, op)
		argIR = append(argIR, ir)
	}

	retIR := nativeReturnType(n.Name)
	declArgs := make([]string, len(argIR))
	copy(declArgs, argIR)
	e.declareExternOnce(n.Name, fmt.Sprintf("declare %s @%s(%s)", retIR, n.Name, strings.Join(declArgs, ", ")))

	if retIR == "void" {
		e.emitf("  call void @%s(%s)", n.Name, joinArgs(argIR, argOperands))
		return "", "", nil
	}
	t := e.nextTemp()
	e.emitf("  %s = call %s @%s(%s)", t, retIR, n.Name, joinArgs(argIR, argOperands))
	e.setTempType(t, retIR)
	return t, retIR, nil
}

func nativeReturnType(name string) string {
	switch {
	case name == "printf":
		return "i32"
	case name == "malloc":
		return "ptr"
	case name == "strlen":
		return "i64"
	case strings.HasPrefix(name, "format_"):
		return "ptr"
	case strings.HasSuffix(name, "_new") || strings.HasSuffix(name, "_copy"):
		return "ptr"
	case strings.HasSuffix(name, "_cmp") || strings.Contains(name, "_is_"):
		return "i32"
	default:
		return "i64"
	}
}

func (e *Emitter) lowerLambda(l *ast.Lambda) (string, string, error) {
	body, ok := l.Body.(*ast.Block)
	if !ok {
		return "", "", e.fail(notImplemented(l.Loc(), "lambda body that is not a block"))
	}

	name := e.nextLambdaName()
	snap := e.Scope.Snapshot()

	finish := e.BeginPendingDefinition()

	e.Scope.Push()
	var paramIR []string
	for _, p := range l.Params {
		ir, err := e.MapType(p.TypeName)
		if err != nil {
			finish()
			e.Scope.Pop()
			e.Scope.Restore(snap)
			return "", "", e.fail(typeResolutionFailed(l.Loc(), p.TypeName, fmt.Sprintf("lambda parameter %s", p.Name)))
		}
		paramIR = append(paramIR, ir+" %"+p.Name)
		e.Scope.BindParameter(p.Name, ir, p.TypeName)
	}

	retIR := e.inferLambdaReturnType(body)

	prevFunc := e.currentFunc
	e.currentFunc = &functionInfo{name: name, returnIR: retIR, isVoid: retIR == "void"}
	defer func() { e.currentFunc = prevFunc }()

	e.emitf("define internal %s @%s(%s) {", retIR, name, strings.Join(paramIR, ", "))
	e.emitLabel("entry")
	terminated, err := e.LowerStmt(body)
	if err != nil {
		finish()
		e.Scope.Pop()
		e.Scope.Restore(snap)
		return "", "", err
	}
	if !terminated {
		e.emitFallthroughReturn(retIR)
	}
	e.emit("}")
	e.emit("")

	e.Scope.Pop()
	e.Scope.Restore(snap)
	finish()

	return "@" + name, "ptr", nil
}

// inferLambdaReturnType walks a lambda body's shape to guess its return
// type without a full type-checking pass, per the recursive rule: comparisons
// -> i1, arithmetic -> left operand's type, calls -> i32, literal -> its
// mapped type, identifier -> looked-up type, conditional -> then-branch
// type, default i32.
func (e *Emitter) inferLambdaReturnType(body *ast.Block) string {
	if body.Tail != nil {
		return e.inferExprType(body.Tail)
	}
	if n := len(body.Stmts); n > 0 {
		if cond, ok := body.Stmts[n-1].(*ast.If); ok && cond.Then != nil {
			return e.inferLambdaReturnType(cond.Then)
		}
	}
	for i := len(body.Stmts) - 1; i >= 0; i-- {
		if ret, ok := body.Stmts[i].(*ast.Return); ok && ret.Value != nil {
			return e.inferExprType(ret.Value)
		}
	}
	return "void"
}

func (e *Emitter) inferExprType(expr ast.Expr) string {
	switch x := expr.(type) {
	case *ast.Binary:
		if isComparisonOp(x.Op) {
			return "i1"
		}
		return e.inferExprType(x.Left)
	case *ast.Call:
		return "i32"
	case *ast.Literal:
		ir, err := e.lowerLiteralTypeOnly(x)
		if err == nil {
			return ir
		}
		return "i32"
	case *ast.Identifier:
		if ir, _, ok := e.Scope.Lookup(x.Name); ok {
			return ir
		}
		return "i32"
	default:
		return "i32"
	}
}

func isComparisonOp(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (e *Emitter) lowerLiteralTypeOnly(lit *ast.Literal) (string, error) {
	switch lit.Kind {
	case ast.BoolLiteral:
		return "i1", nil
	case ast.IntegerLiteral:
		source := lit.Suffix
		if source == "" {
			source = "s64"
		}
		return e.MapType(source)
	case ast.DecimalLiteral:
		source := lit.Suffix
		if source == "" {
			source = "f64"
		}
		return e.MapType(source)
	default:
		return "ptr", nil
	}
}
