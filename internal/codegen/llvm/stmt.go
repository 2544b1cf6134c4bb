package llvm

import (
	"fmt"
	"strings"

	"github.com/razorforge-lang/irgen/internal/ast"
)

// emitFunction lowers one top-level or method function declaration into a
// define block: push a scope, bind parameters, lower the body, and emit a
// trailing return if the body fell through without one.
func (e *Emitter) emitFunction(fn *ast.FunctionDecl) error {
	if fn.IsExternal {
		return e.emitExternalFunction(fn)
	}

	retIR := "void"
	if fn.ReturnType != "" {
		var err error
		retIR, err = e.MapType(fn.ReturnType)
		if err != nil {
			return e.fail(typeResolutionFailed(fn.Loc(), fn.ReturnType, fmt.Sprintf("return type of %s", fn.Name)))
		}
	}

	e.Scope.Push()
	defer e.Scope.Pop()

	var paramIR []string
	selfParam := ""
	for _, p := range fn.Params {
		ir, err := e.MapType(p.TypeName)
		if err != nil {
			return e.fail(typeResolutionFailed(fn.Loc(), p.TypeName, fmt.Sprintf("parameter %s of %s", p.Name, fn.Name)))
		}
		paramIR = append(paramIR, ir+" %"+p.Name)
		e.Scope.BindParameter(p.Name, ir, p.TypeName)
		if p.Name == "self" {
			selfParam = p.Name
		}
	}

	prevFunc := e.currentFunc
	e.currentFunc = &functionInfo{
		name:       fn.Name,
		returnType: fn.ReturnType,
		isVoid:     fn.ReturnType == "",
		selfParam:  selfParam,
	}
	defer func() { e.currentFunc = prevFunc }()

	e.emitf("define %s @%s(%s) {", retIR, fn.Name, strings.Join(paramIR, ", "))
	e.emitLabel("entry")

	terminated, err := e.LowerStmt(fn.Body)
	if err != nil {
		return err
	}
	if !terminated {
		e.emitFallthroughReturn(retIR)
	}
	e.emit("}")
	e.emit("")
	return nil
}

// emitFallthroughReturn closes out a function or lambda body that fell off
// its last statement without an explicit return: the enclosing Block's Tail
// value (or an if-expression's phi result) becomes the implicit return
// value when one was produced, per the Block.Tail contract; otherwise a
// zero value, matching a body with no trailing expression.
func (e *Emitter) emitFallthroughReturn(retIR string) {
	if retIR == "void" {
		e.emit("  ret void")
		return
	}
	if e.lastTailValid {
		e.emitf("  ret %s %s", retIR, e.lastTailOperand)
		return
	}
	e.emitf("  ret %s zeroinitializer", retIR)
}

func (e *Emitter) emitExternalFunction(fn *ast.FunctionDecl) error {
	retIR := "void"
	if fn.ReturnType != "" {
		var err error
		retIR, err = e.MapType(fn.ReturnType)
		if err != nil {
			return e.fail(typeResolutionFailed(fn.Loc(), fn.ReturnType, fmt.Sprintf("return type of %s", fn.Name)))
		}
	}
	var paramIR []string
	for _, p := range fn.Params {
		ir, err := e.MapType(p.TypeName)
		if err != nil {
			return e.fail(typeResolutionFailed(fn.Loc(), p.TypeName, fmt.Sprintf("parameter %s of %s", p.Name, fn.Name)))
		}
		paramIR = append(paramIR, ir)
	}
	e.declareExternOnce(fn.Name, fmt.Sprintf("declare %s @%s(%s)", retIR, fn.Name, strings.Join(paramIR, ", ")))
	return nil
}

// LowerStmt lowers one statement and reports whether the emitted IR already
// ends in a terminator (ret/br/unreachable) for this control path, so
// callers (block, if-arm, loop body) know whether to append a fallthrough
// branch of their own.
func (e *Emitter) LowerStmt(s ast.Stmt) (terminated bool, err error) {
	e.lastTailValid = false
	switch st := s.(type) {
	case *ast.Block:
		return e.lowerBlock(st)
	case *ast.If:
		return e.lowerIf(st)
	case *ast.While:
		return e.lowerWhile(st)
	case *ast.For:
		return e.lowerFor(st)
	case *ast.Return:
		return e.lowerReturn(st)
	case *ast.Break:
		return e.lowerBreak(st)
	case *ast.Continue:
		return e.lowerContinue(st)
	case *ast.Declaration:
		return e.lowerDeclaration(st)
	case *ast.Assignment:
		return e.lowerAssignment(st)
	case *ast.ExpressionStatement:
		_, _, err := e.LowerExpr(st.Value)
		return false, err
	case *ast.TupleDestructuring:
		return e.lowerTupleDestructuring(st)
	case *ast.ScopedAccess:
		return e.lowerScopedAccess(st)
	case *ast.Danger:
		return e.lowerDanger(st)
	default:
		return false, e.fail(notImplemented(s.Loc(), fmt.Sprintf("statement node %T", s)))
	}
}

func (e *Emitter) lowerBlock(b *ast.Block) (bool, error) {
	terminated := false
	for _, stmt := range b.Stmts {
		if terminated {
			break
		}
		t, err := e.LowerStmt(stmt)
		if err != nil {
			return false, err
		}
		terminated = t
	}
	if terminated {
		return true, nil
	}
	if b.Tail != nil {
		operand, irType, err := e.LowerExpr(b.Tail)
		if err != nil {
			return false, err
		}
		e.lastTailOperand, e.lastTailType, e.lastTailValid = operand, irType, true
	}
	return false, nil
}

// lowerIf lowers both the plain branch-only form and, when the block has a
// Tail expression in both arms, the expression form via phi. Either way the
// condition/branch/merge skeleton is identical; only what happens inside
// each arm differs.
func (e *Emitter) lowerIf(n *ast.If) (bool, error) {
	condOperand, _, err := e.LowerExpr(n.Cond)
	if err != nil {
		return false, err
	}
	condSource := e.resolvedTypeName(n.Cond, ast.LangRF, "", "")
	condOperand, _, _, err = e.unwrapOperand(condOperand, condSource)
	if err != nil {
		return false, err
	}

	thenLabel := e.nextLabel()
	elseLabel := ""
	if n.Else != nil {
		elseLabel = e.nextLabel()
	}
	mergeLabel := e.nextLabel()

	branchElse := mergeLabel
	if elseLabel != "" {
		branchElse = elseLabel
	}
	e.emitf("  br i1 %s, label %%%s, label %%%s", condOperand, thenLabel, branchElse)

	e.emitLabel(thenLabel)
	thenTerminated, err := e.LowerStmt(n.Then)
	if err != nil {
		return false, err
	}
	thenEndLabel := e.currentLabel()
	thenHasValue, thenOperand, thenType := e.lastTailValid, e.lastTailOperand, e.lastTailType
	if !thenTerminated {
		e.emitf("  br label %%%s", mergeLabel)
	}

	elseTerminated := true
	elseEndLabel := ""
	elseHasValue := false
	var elseOperand string
	if n.Else != nil {
		e.emitLabel(elseLabel)
		elseTerminated, err = e.LowerStmt(n.Else)
		if err != nil {
			return false, err
		}
		elseEndLabel = e.currentLabel()
		elseHasValue, elseOperand = e.lastTailValid, e.lastTailOperand
		if !elseTerminated {
			e.emitf("  br label %%%s", mergeLabel)
		}
	} else {
		elseTerminated = false
	}

	if thenTerminated && elseTerminated {
		// Every path out of the if already terminated; the merge label is
		// unreachable and left undefined rather than emitted as a dead
		// block with no predecessors.
		return true, nil
	}

	e.emitLabel(mergeLabel)

	// An if used in expression position has both arms ending in a Tail
	// value; the phi names each arm's end block by the currentLabel()
	// captured right after that arm was lowered, which is the last label
	// emitted inside the arm when it contains nested control flow.
	if !thenTerminated && !elseTerminated && thenHasValue && elseHasValue {
		t := e.nextTemp()
		e.emitf("  %s = phi %s [ %s, %%%s ], [ %s, %%%s ]", t, thenType, thenOperand, thenEndLabel, elseOperand, elseEndLabel)
		e.setTempType(t, thenType)
		e.lastTailOperand, e.lastTailType, e.lastTailValid = t, thenType, true
	} else {
		e.lastTailValid = false
	}
	return false, nil
}

func (e *Emitter) lowerWhile(n *ast.While) (bool, error) {
	condLabel := e.nextLabel()
	bodyLabel := e.nextLabel()
	exitLabel := e.nextLabel()

	e.emitf("  br label %%%s", condLabel)
	e.emitLabel(condLabel)
	condOperand, _, err := e.LowerExpr(n.Cond)
	if err != nil {
		return false, err
	}
	e.emitf("  br i1 %s, label %%%s, label %%%s", condOperand, bodyLabel, exitLabel)

	e.emitLabel(bodyLabel)
	e.pushLoop(exitLabel, condLabel)
	terminated, err := e.LowerStmt(n.Body)
	e.popLoop()
	if err != nil {
		return false, err
	}
	if !terminated {
		e.emitf("  br label %%%s", condLabel)
	}

	e.emitLabel(exitLabel)
	return false, nil
}

func (e *Emitter) lowerFor(n *ast.For) (bool, error) {
	e.Scope.Push()
	defer e.Scope.Pop()

	if n.Init != nil {
		if _, err := e.LowerStmt(n.Init); err != nil {
			return false, err
		}
	}

	condLabel := e.nextLabel()
	bodyLabel := e.nextLabel()
	postLabel := e.nextLabel()
	exitLabel := e.nextLabel()

	e.emitf("  br label %%%s", condLabel)
	e.emitLabel(condLabel)
	if n.Cond != nil {
		condOperand, _, err := e.LowerExpr(n.Cond)
		if err != nil {
			return false, err
		}
		e.emitf("  br i1 %s, label %%%s, label %%%s", condOperand, bodyLabel, exitLabel)
	} else {
		e.emitf("  br label %%%s", bodyLabel)
	}

	e.emitLabel(bodyLabel)
	e.pushLoop(exitLabel, postLabel)
	terminated, err := e.LowerStmt(n.Body)
	e.popLoop()
	if err != nil {
		return false, err
	}
	if !terminated {
		e.emitf("  br label %%%s", postLabel)
	}

	e.emitLabel(postLabel)
	if n.Post != nil {
		if _, err := e.LowerStmt(n.Post); err != nil {
			return false, err
		}
	}
	e.emitf("  br label %%%s", condLabel)

	e.emitLabel(exitLabel)
	return false, nil
}

// lowerReturn lowers a `return <expr>` statement, converting the operand to
// the enclosing function's declared return type when the two differ and
// dropping a returned value (with a warning) when the function is void.
func (e *Emitter) lowerReturn(n *ast.Return) (bool, error) {
	if n.Value == nil {
		e.emitAllLockReleases()
		e.emit("  ret void")
		return true, nil
	}

	cf := e.currentFunc
	operand, irType, err := e.LowerExpr(n.Value)
	if err != nil {
		return false, err
	}

	if cf == nil || cf.isVoid {
		e.warn(warningAt(n.Loc(), "value returned from a function with no return type; dropping it"))
		e.emitAllLockReleases()
		e.emit("  ret void")
		return true, nil
	}

	funcRetIR := cf.returnIR
	if cf.returnType != "" {
		funcRetIR, err = e.MapType(cf.returnType)
		if err != nil {
			return false, e.fail(typeResolutionFailed(n.Loc(), cf.returnType, "function return type"))
		}

		// Returning the method's self pointer where the declared return type
		// is a record taken by value loads through the pointer instead of
		// converting the pointer value itself.
		if id, ok := n.Value.(*ast.Identifier); ok && cf.selfParam != "" && id.Name == cf.selfParam &&
			strings.HasSuffix(irType, "*") && e.recordTypes[strings.TrimPrefix(cf.returnType, "%")] {
			loaded := e.nextTemp()
			e.emitf("  %s = load %s, %s %s", loaded, funcRetIR, irType, operand)
			e.setTempType(loaded, funcRetIR)
			operand, irType = loaded, funcRetIR
		}

		if irType != funcRetIR {
			fromSource := e.resolvedTypeName(n.Value, ast.LangRF, "s64", "f64")
			operand, irType, err = e.convertScalar(operand, fromSource, cf.returnType, irType, n.Loc())
			if err != nil {
				return false, err
			}
		}
	}

	e.emitAllLockReleases()
	e.emitf("  ret %s %s", funcRetIR, operand)
	return true, nil
}

func (e *Emitter) lowerBreak(n *ast.Break) (bool, error) {
	loop, ok := e.currentLoop()
	if !ok {
		return false, e.fail(invalidOperation(n.Loc(), "break outside a loop"))
	}
	e.emitLoopExitLockReleases()
	e.emitf("  br label %%%s", loop.breakLabel)
	return true, nil
}

func (e *Emitter) lowerContinue(n *ast.Continue) (bool, error) {
	loop, ok := e.currentLoop()
	if !ok {
		return false, e.fail(invalidOperation(n.Loc(), "continue outside a loop"))
	}
	e.emitLoopExitLockReleases()
	e.emitf("  br label %%%s", loop.continueLabel)
	return true, nil
}

func (e *Emitter) lowerDeclaration(n *ast.Declaration) (bool, error) {
	irType, err := e.MapType(n.TypeName)
	if err != nil {
		return false, e.fail(typeResolutionFailed(n.Loc(), n.TypeName, fmt.Sprintf("declaration of %s", strings.Join(n.Names, ", "))))
	}

	var initOperand string
	if n.Init != nil {
		initOperand, _, err = e.LowerExpr(n.Init)
		if err != nil {
			return false, err
		}
	}

	for _, name := range n.Names {
		e.emitf("  %%%s.addr = alloca %s", name, irType)
		if n.Init != nil {
			e.emitf("  store %s %s, %s* %%%s.addr", irType, initOperand, irType, name)
		}
		e.Scope.Bind(name, irType, n.TypeName)
	}
	return false, nil
}

func (e *Emitter) lowerAssignment(n *ast.Assignment) (bool, error) {
	operand, irType, err := e.LowerExpr(n.Value)
	if err != nil {
		return false, err
	}

	if n.Target.Object != nil {
		objOperand, _, err := e.LowerExpr(n.Target.Object)
		if err != nil {
			return false, err
		}
		recordSource := e.resolvedTypeName(n.Target.Object, ast.LangRF, "", "")
		index, fieldSource, ok := e.Scope.FieldIndex(recordSource, n.Target.Field)
		if !ok {
			return false, e.fail(typeResolutionFailed(n.Loc(), recordSource, fmt.Sprintf("field %q", n.Target.Field)))
		}
		recordIR, err := e.MapType(recordSource)
		if err != nil {
			return false, e.fail(typeResolutionFailed(n.Loc(), recordSource, "assignment target object type"))
		}
		fieldIR, err := e.MapType(fieldSource)
		if err != nil {
			return false, e.fail(typeResolutionFailed(n.Loc(), fieldSource, "assignment target field type"))
		}
		ptr := e.nextTemp()
		e.emitf("  %s = getelementptr inbounds %s, %s %s, i32 0, i32 %d", ptr, strings.TrimSuffix(recordIR, "*"), recordIR, objOperand, index)
		e.emitf("  store %s %s, %s* %s", fieldIR, operand, fieldIR, ptr)
		return false, nil
	}

	if e.Scope.IsParameter(n.Target.Name) {
		return false, e.fail(invalidOperation(n.Loc(), fmt.Sprintf("cannot assign to parameter %q", n.Target.Name)))
	}
	e.emitf("  store %s %s, %s* %%%s.addr", irType, operand, irType, n.Target.Name)
	return false, nil
}

func (e *Emitter) lowerTupleDestructuring(n *ast.TupleDestructuring) (bool, error) {
	operand, irType, err := e.LowerExpr(n.Value)
	if err != nil {
		return false, err
	}
	for i, name := range n.Names {
		elemType := e.tupleElementIRType(irType, i)
		t := e.nextTemp()
		e.emitf("  %s = extractvalue %s %s, %d", t, irType, operand, i)
		e.emitf("  %%%s.addr = alloca %s", name, elemType)
		e.emitf("  store %s %s, %s* %%%s.addr", elemType, t, elemType, name)
		e.Scope.Bind(name, elemType, elemType)
	}
	return false, nil
}

// tupleElementIRType has no element-type metadata to consult in this
// single-pass lowerer, so every destructured element is treated as i64
// unless the aggregate's IR type is itself a literal anonymous struct,
// whose field list is read off directly.
func (e *Emitter) tupleElementIRType(aggregateIR string, index int) string {
	if strings.HasPrefix(aggregateIR, "{") {
		inner := strings.TrimSuffix(strings.TrimPrefix(aggregateIR, "{"), "}")
		fields := splitTopLevelComma(inner)
		if index < len(fields) {
			return strings.TrimSpace(fields[index])
		}
	}
	return "i64"
}

func (e *Emitter) lowerDanger(n *ast.Danger) (bool, error) {
	e.emit("  ; danger")
	terminated, err := e.LowerStmt(n.Body)
	if err != nil {
		return false, err
	}
	e.emit("  ; end danger")
	return terminated, nil
}
