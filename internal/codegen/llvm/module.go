package llvm

import (
	"fmt"

	"github.com/razorforge-lang/irgen/internal/ast"
)

// EmitModule is the top-level emit_module driver: it walks declarations,
// emitting records/entities as IR struct types and lowering each concrete
// function body in declaration order, then drains the pending-definitions
// queue (lambdas, generic instantiations) after the main stream.
func (e *Emitter) EmitModule(mod *ast.Module) (string, error) {
	e.emitModuleHeader(mod.Name)
	e.emitMathRuntimeDeclarations()

	// Register every aggregate's field layout before lowering any function
	// body, so forward references (a function using a record declared
	// later in the file) resolve.
	for _, decl := range mod.Decls {
		switch d := decl.(type) {
		case *ast.RecordDecl:
			if len(d.TypeParams) > 0 {
				e.Scope.GenericRecords[d.Name] = d
				continue
			}
			e.registerRecordFields(d.Name, d.Fields)
			e.recordTypes[d.Name] = true
		case *ast.EntityDecl:
			if len(d.TypeParams) > 0 {
				e.Scope.GenericEntities[d.Name] = d
				continue
			}
			e.registerRecordFields(d.Name, d.Fields)
			e.entityTypes[d.Name] = true
		}
	}

	// Emit struct type definitions for every concrete (non-generic) record
	// and entity.
	for _, decl := range mod.Decls {
		switch d := decl.(type) {
		case *ast.RecordDecl:
			if len(d.TypeParams) == 0 {
				if err := e.emitAggregateType(d.Name, d.Fields); err != nil {
					return "", err
				}
				if len(d.Fields) == 1 {
					underIR, err := e.MapType(d.Fields[0].TypeName)
					if err == nil {
						e.Types.RegisterWrapped(d.Name, d.Fields[0].TypeName)
						_ = underIR
					}
				}
			}
		case *ast.EntityDecl:
			if len(d.TypeParams) == 0 {
				if err := e.emitAggregateType(d.Name, d.Fields); err != nil {
					return "", err
				}
			}
		}
	}
	e.emit("")

	// Register generic function templates so calls encountered anywhere in
	// the module can be instantiated, regardless of declaration order.
	for _, decl := range mod.Decls {
		if fn, ok := decl.(*ast.FunctionDecl); ok && len(fn.TypeParams) > 0 {
			e.Scope.GenericFunctions[fn.Name] = fn
		}
	}

	for _, decl := range mod.Decls {
		switch d := decl.(type) {
		case *ast.FunctionDecl:
			if len(d.TypeParams) > 0 {
				continue // instantiated on demand at call sites
			}
			if err := e.emitFunction(d); err != nil {
				return "", err
			}
		case *ast.EntityDecl:
			for _, m := range d.Methods {
				if err := e.emitFunction(m); err != nil {
					return "", err
				}
			}
		}
	}

	return e.String(), nil
}

func (e *Emitter) registerRecordFields(name string, fields []ast.FieldDecl) {
	infos := make([]FieldInfo, len(fields))
	for i, f := range fields {
		infos[i] = FieldInfo{Name: f.Name, SourceType: f.TypeName}
	}
	e.Scope.RegisterRecordFields(name, infos)
}

func (e *Emitter) emitAggregateType(name string, fields []ast.FieldDecl) error {
	irFields := make([]string, len(fields))
	for i, f := range fields {
		ir, err := e.MapType(f.TypeName)
		if err != nil {
			return e.fail(typeResolutionFailed(ast.Location{}, f.TypeName, fmt.Sprintf("field %s.%s", name, f.Name)))
		}
		irFields[i] = ir
	}
	if len(irFields) == 0 {
		e.emitf("%%%s = type { i8 }", name)
		return nil
	}
	e.emitf("%%%s = type { %s }", name, joinStrings(irFields, ", "))
	return nil
}

func (e *Emitter) emitModuleHeader(name string) {
	if name == "" {
		name = "module"
	}
	e.emitf("; ModuleID = %q", name)
	e.emitf("source_filename = %q", name)
	e.emitf("target triple = %q", e.Types.Platform.Triple)
	e.emit("")
	e.emit("declare void @llvm.trap()")
	e.emit("declare i8* @malloc(i64)")
	e.emit("declare void @free(i8*)")
	e.emit("")
}

func joinStrings(items []string, sep string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}
