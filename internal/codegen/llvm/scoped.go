package llvm

import (
	"fmt"

	"github.com/razorforge-lang/irgen/internal/ast"
)

// lowerScopedAccess lowers the four scoped-resource statement forms.
// viewing/hijacking are pure compile-time aliases: the handle names the same
// operand as its source for the body's duration, with no runtime
// footprint. inspecting/seizing wrap the body in a lock/unlock pair (a
// runtime rwlock read lock for inspecting, a runtime mutex for seizing),
// unlocked on every exit edge out of the body: the ordinary fallthrough,
// and any return/break/continue nested inside it. Both calls take the
// source operand; the handle is bound to the lock call's result.
func (e *Emitter) lowerScopedAccess(n *ast.ScopedAccess) (bool, error) {
	sourceOperand, sourceIR, err := e.LowerExpr(n.Source)
	if err != nil {
		return false, err
	}
	sourceType := e.resolvedTypeName(n.Source, ast.LangRF, "", "")

	switch n.Kind {
	case ast.Viewing, ast.Hijacking:
		return e.lowerCompileTimeAlias(n, sourceOperand, sourceIR, sourceType)
	case ast.Inspecting:
		return e.lowerLockedAccess(n, sourceOperand, sourceIR, sourceType, "razorforge_rwlock_read_lock", "razorforge_rwlock_read_unlock")
	case ast.Seizing:
		return e.lowerLockedAccess(n, sourceOperand, sourceIR, sourceType, "razorforge_mutex_lock", "razorforge_mutex_unlock")
	default:
		return false, e.fail(notImplemented(n.Loc(), "scoped access kind"))
	}
}

func (e *Emitter) lowerCompileTimeAlias(n *ast.ScopedAccess, sourceOperand, sourceIR, sourceType string) (bool, error) {
	e.Scope.Push()
	e.Scope.BindAlias(n.Handle, sourceOperand, sourceIR, sourceType)
	terminated, err := e.LowerStmt(n.Body)
	e.Scope.Pop()
	return terminated, err
}

func (e *Emitter) lowerLockedAccess(n *ast.ScopedAccess, sourceOperand, sourceIR, sourceType, acquireFn, releaseFn string) (bool, error) {
	e.declareExternOnce(acquireFn, fmt.Sprintf("declare ptr @%s(ptr)", acquireFn))
	e.declareExternOnce(releaseFn, fmt.Sprintf("declare void @%s(ptr)", releaseFn))

	handle := e.nextTemp()
	e.emitf("  %s = call ptr @%s(ptr %s)", handle, acquireFn, sourceOperand)
	e.setTempType(handle, "ptr")

	e.pushLock(sourceOperand, releaseFn)
	e.Scope.Push()
	e.Scope.BindAlias(n.Handle, handle, "ptr", sourceType)

	terminated, err := e.LowerStmt(n.Body)

	e.Scope.Pop()
	e.popLock()

	if err != nil {
		return false, err
	}
	if !terminated {
		e.emitf("  call void @%s(ptr %s)", releaseFn, sourceOperand)
	}
	return terminated, nil
}
