package llvm

import (
	"github.com/razorforge-lang/irgen/internal/ast"
	"github.com/razorforge-lang/irgen/internal/diag"
)

// These adapt diag's constructors to ast.Location so call sites across this
// package don't repeat the toLoc conversion.

func typeResolutionFailed(loc ast.Location, typeName, context string) *diag.Diagnostic {
	return diag.TypeResolutionFailed(toLoc(loc), typeName, context)
}

func notImplemented(loc ast.Location, what string) *diag.Diagnostic {
	return diag.NotImplemented(toLoc(loc), what)
}

func invalidOperation(loc ast.Location, message string) *diag.Diagnostic {
	return diag.InvalidOperation(toLoc(loc), message)
}

func warningAt(loc ast.Location, message string) *diag.Diagnostic {
	return diag.Warning(toLoc(loc), message)
}
