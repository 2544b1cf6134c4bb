package llvm

import (
	"fmt"
	"strings"

	"github.com/razorforge-lang/irgen/internal/ast"
)

// mangleTypeName produces the name-mangling fragment for one type argument,
// recursively for nested generics, mirroring the prefix conventions used
// throughout this codebase's own instantiation caches ("Slice_", "Map_",
// "Ptr_", "Opt_").
func mangleTypeName(sourceType string) string {
	sourceType = strings.TrimSpace(sourceType)
	switch {
	case strings.HasPrefix(sourceType, "Slice<") && strings.HasSuffix(sourceType, ">"):
		return "Slice_" + mangleTypeName(sourceType[len("Slice<"):len(sourceType)-1])
	case strings.HasPrefix(sourceType, "Map<") && strings.HasSuffix(sourceType, ">"):
		inner := sourceType[len("Map<") : len(sourceType)-1]
		parts := splitTopLevelComma(inner)
		if len(parts) == 2 {
			return "Map_" + mangleTypeName(parts[0]) + "_" + mangleTypeName(parts[1])
		}
		return "Map_" + sanitizeIdent(inner)
	case strings.HasPrefix(sourceType, "Ptr<") && strings.HasSuffix(sourceType, ">"):
		return "Ptr_" + mangleTypeName(sourceType[len("Ptr<"):len(sourceType)-1])
	case strings.HasPrefix(sourceType, "Opt<") && strings.HasSuffix(sourceType, ">"):
		return "Opt_" + mangleTypeName(sourceType[len("Opt<"):len(sourceType)-1])
	default:
		return sanitizeIdent(sourceType)
	}
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func splitTopLevelComma(s string) []string {
	depth := 0
	start := 0
	var out []string
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

// mangleGenericName builds the mangled symbol for one generic instantiation:
// base name, an underscore, then the underscore-joined list of mangled type
// arguments, e.g. foo_s64 for foo<s64>.
func (e *Emitter) mangleGenericName(base string, typeArgs []string) (string, error) {
	mangledArgs := make([]string, len(typeArgs))
	for i, t := range typeArgs {
		mangledArgs[i] = mangleTypeName(t)
	}
	joined := strings.Join(mangledArgs, "_")
	return base + "_" + joined, nil
}

// lowerGenericMethodCall resolves and, if needed, lazily instantiates a
// generic method/function at a call site, then lowers a direct call to the
// mangled concrete symbol. Instantiations are memoized in the symbol table
// and their bodies queued via BeginPendingDefinition so a recursive
// instantiation chain does not nest inside the caller's instruction stream.
//
// Resolution only covers user-defined generic functions looked up by name in
// Scope.GenericFunctions; the other members of the resolution chain (generic
// record/entity constructors, external generic type constructors, and
// static/instance method dispatch) are not handled here (see DESIGN.md).
func (e *Emitter) lowerGenericMethodCall(g *ast.GenericMethodCall) (string, string, error) {
	mangledArgs := make([]string, len(g.TypeArgs))
	for i, t := range g.TypeArgs {
		mangledArgs[i] = mangleTypeName(t)
	}
	joinedArgs := strings.Join(mangledArgs, "_")

	mangledName, cached := e.Scope.Instantiation(g.MethodName, joinedArgs)
	if !cached {
		tmpl, ok := e.Scope.GenericFunctions[g.MethodName]
		if !ok {
			return "", "", e.fail(notImplemented(g.Loc(), fmt.Sprintf("generic call to undeclared template %q", g.MethodName)))
		}
		name, err := e.mangleGenericName(g.MethodName, g.TypeArgs)
		if err != nil {
			return "", "", err
		}
		e.Scope.CacheInstantiation(g.MethodName, joinedArgs, name)
		if err := e.instantiateGenericFunction(tmpl, g.TypeArgs, name); err != nil {
			return "", "", err
		}
		mangledName = name
	}

	var argOperands, argIR []string
	if g.Receiver != nil && !g.IsStatic {
		op, ir, err := e.LowerExpr(g.Receiver)
		if err != nil {
			return "", "", err
		}
		argOperands = append(argOperands, op)
		argIR = append(argIR, ir)
	}
	for _, a := range g.Args {
		op, ir, err := e.LowerExpr(a)
		if err != nil {
			return "", "", err
		}
		argOperands = append(argOperands, op)
		argIR = append(argIR, ir)
	}

	retIR := "i32"
	if rt := g.Type(); rt != nil && rt.Name != "" {
		if ir, err := e.MapType(rt.Name); err == nil {
			retIR = ir
		}
	}
	if retIR == "void" {
		e.emitf("  call void @%s(%s)", mangledName, joinArgs(argIR, argOperands))
		return "", "", nil
	}
	t := e.nextTemp()
	e.emitf("  %s = call %s @%s(%s)", t, retIR, mangledName, joinArgs(argIR, argOperands))
	e.setTempType(t, retIR)
	return t, retIR, nil
}

// instantiateGenericFunction binds the template's type parameters to
// concrete type arguments by substituting them textually into parameter and
// return type names, then queues the specialized body for emission under
// mangledName.
func (e *Emitter) instantiateGenericFunction(tmpl *ast.FunctionDecl, typeArgs []string, mangledName string) error {
	if len(tmpl.TypeParams) != len(typeArgs) {
		return e.fail(invalidOperation(tmpl.Loc(), fmt.Sprintf("generic function %s expects %d type arguments, got %d", tmpl.Name, len(tmpl.TypeParams), len(typeArgs))))
	}
	subst := make(map[string]string, len(tmpl.TypeParams))
	for i, p := range tmpl.TypeParams {
		subst[p] = typeArgs[i]
	}

	finish := e.BeginPendingDefinition()
	defer finish()

	snap := e.Scope.Snapshot()
	defer e.Scope.Restore(snap)
	e.Scope.Push()
	defer e.Scope.Pop()

	var paramIR []string
	for _, p := range tmpl.Params {
		concreteType := substituteTypeParam(p.TypeName, subst)
		ir, err := e.MapType(concreteType)
		if err != nil {
			return e.fail(typeResolutionFailed(tmpl.Loc(), concreteType, fmt.Sprintf("instantiated parameter %s", p.Name)))
		}
		paramIR = append(paramIR, ir+" %"+p.Name)
		e.Scope.BindParameter(p.Name, ir, concreteType)
	}

	retType := substituteTypeParam(tmpl.ReturnType, subst)
	retIR := "void"
	if retType != "" {
		var err error
		retIR, err = e.MapType(retType)
		if err != nil {
			return e.fail(typeResolutionFailed(tmpl.Loc(), retType, "instantiated return type"))
		}
	}

	prevFunc := e.currentFunc
	e.currentFunc = &functionInfo{name: mangledName, returnType: retType, isVoid: retType == ""}
	defer func() { e.currentFunc = prevFunc }()

	e.emitf("define %s @%s(%s) {", retIR, mangledName, strings.Join(paramIR, ", "))
	e.emitLabel("entry")
	terminated, err := e.LowerStmt(tmpl.Body)
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

func substituteTypeParam(typeName string, subst map[string]string) string {
	if concrete, ok := subst[typeName]; ok {
		return concrete
	}
	for param, concrete := range subst {
		typeName = strings.ReplaceAll(typeName, "<"+param+">", "<"+concrete+">")
		typeName = strings.ReplaceAll(typeName, "<"+param+",", "<"+concrete+",")
		typeName = strings.ReplaceAll(typeName, ","+param+">", ","+concrete+">")
	}
	return typeName
}
