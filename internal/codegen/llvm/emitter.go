// Package llvm lowers a typed RF/SF AST into textual LLVM IR. It dissolves
// what would otherwise be a partial-class layout (one generator split
// across many files for maintainability) into a single Emitter aggregate:
// the output buffer, counters, symbol table, temp-type map, pending queue
// and caches all live here; the lowering routines in the sibling files are
// its methods.
package llvm

import (
	"fmt"
	"strings"

	"github.com/razorforge-lang/irgen/internal/ast"
	"github.com/razorforge-lang/irgen/internal/diag"
	"github.com/razorforge-lang/irgen/internal/platform"
	"github.com/razorforge-lang/irgen/internal/typemap"
)

// Emitter owns every piece of module-wide state: the output buffer, the
// monotonic temp/label counters, the symbol table stack, the pending
// definitions queue (lambdas and generic instantiations), and the
// record/entity and generic-instantiation caches.
type Emitter struct {
	builder strings.Builder

	Types *typemap.Mapper

	tempCounter  int
	labelCounter int
	lastLabel    string // current_label(): the most recently emitted label

	// lastTail* carries the value produced by the most recently lowered
	// statement when that statement ends in an expression used for its
	// value rather than its side effect: a Block's Tail, or an If whose
	// branches both yielded one (lowered through the phi path). Every
	// LowerStmt call clears it first, so a caller that needs the value
	// (a function or lambda body falling through, an enclosing If's phi)
	// must read it immediately after the call that might have set it.
	lastTailOperand string
	lastTailType    string
	lastTailValid   bool

	tempTypes map[string]string // %t<N> or named local -> ir type, module-wide

	Scope *SymbolTable

	declaredExterns map[string]bool // lazily-declared extern symbol names

	recordTypes map[string]bool // value-type aggregates, IR type "%Name"
	entityTypes map[string]bool // reference-type aggregates, IR type "%Name*"

	// pending holds fully-formed function bodies (lambdas, generic
	// instantiations) queued for emission after the main stream. Flushed
	// in FIFO order exactly once at module end.
	pending []string

	// emittingPending routes emit() into a side buffer instead of the main
	// builder while a pending definition's body is being lowered; see
	// BeginPendingDefinition.
	emittingPending bool
	pendingBuf      strings.Builder

	lambdaCounter int

	loopStack []loopLabels
	lockStack []lockGuard

	Errors []*diag.Diagnostic

	currentFunc *functionInfo
}

type loopLabels struct {
	breakLabel    string
	continueLabel string
}

// lockGuard records a runtime lock acquired by an inspecting/seizing scoped
// access, so every exit edge out of the body (return, break, continue, or
// ordinary fallthrough) can release it, not just the fallthrough path.
type lockGuard struct {
	handlePtr     string // the locked source operand, passed to the release call
	releaseFn     string // runtime symbol to call to release it
	loopDepthAtPush int  // len(loopStack) when this lock was acquired
}

type functionInfo struct {
	name       string
	returnType string // source type name; "" when isVoid or when only returnIR is known
	returnIR   string // IR return type when no source type name is available (lambdas)
	isVoid     bool   // true when the function has no declared return value at all
	selfParam  string // name of the self parameter, "" if none
}

// NewEmitter builds an Emitter targeting the given platform.
func NewEmitter(p platform.Descriptor) *Emitter {
	return &Emitter{
		Types:           typemap.New(p),
		tempTypes:       make(map[string]string),
		Scope:           NewSymbolTable(),
		declaredExterns: make(map[string]bool),
		recordTypes:     make(map[string]bool),
		entityTypes:     make(map[string]bool),
	}
}

// MapType canonicalizes a source type name to an IR type, first checking
// whether it names a declared record or entity aggregate before falling
// back to the primitive/pointer table in Types.
func (e *Emitter) MapType(sourceType string) (string, error) {
	name := strings.TrimPrefix(sourceType, "%")
	if e.recordTypes[name] {
		return "%" + name, nil
	}
	if e.entityTypes[name] {
		return "%" + name + "*", nil
	}
	return e.Types.Map(sourceType)
}

// isRecordWrapped reports whether sourceType names a declared record with
// exactly one field: a record-wrapped primitive per §9's normalization
// rule.
func (e *Emitter) isRecordWrapped(sourceType string) (fieldSourceType string, ok bool) {
	name := strings.TrimPrefix(sourceType, "%")
	fields, found := e.Scope.RecordFields[name]
	if !found || len(fields) != 1 {
		return "", false
	}
	return fields[0].SourceType, true
}

// unwrapOperand extracts the primitive field out of a record-wrapped
// operand so arithmetic/comparison lowering always works on the raw
// primitive, centralizing the rule instead of duplicating it per operator.
func (e *Emitter) unwrapOperand(operand, sourceType string) (newOperand, newSourceType string, wasWrapped bool, err error) {
	under, ok := e.isRecordWrapped(sourceType)
	if !ok {
		return operand, sourceType, false, nil
	}
	recordIR, err := e.MapType(sourceType)
	if err != nil {
		return "", "", false, err
	}
	fieldIR, err := e.MapType(under)
	if err != nil {
		return "", "", false, err
	}
	t := e.nextTemp()
	e.emitf("  %s = extractvalue %s %s, 0", t, recordIR, operand)
	e.setTempType(t, fieldIR)
	return t, under, true, nil
}

// rewrapOperand re-wraps a primitive value into its record form, the
// second half of the normalization rule in unwrapOperand.
func (e *Emitter) rewrapOperand(operand, fieldIR, recordSourceType string) (string, error) {
	recordIR, err := e.MapType(recordSourceType)
	if err != nil {
		return "", err
	}
	t := e.nextTemp()
	e.emitf("  %s = insertvalue %s undef, %s %s, 0", t, recordIR, fieldIR, operand)
	e.setTempType(t, recordIR)
	return t, nil
}

// emit appends a line to the active output buffer (main stream, or the
// pending-definition side buffer while one is being built).
func (e *Emitter) emit(line string) {
	if e.emittingPending {
		e.pendingBuf.WriteString(line)
		e.pendingBuf.WriteString("\n")
		return
	}
	e.builder.WriteString(line)
	e.builder.WriteString("\n")
}

// emitf is emit with fmt.Sprintf formatting.
func (e *Emitter) emitf(format string, args ...any) {
	e.emit(fmt.Sprintf(format, args...))
}

// nextTemp returns the next SSA value name, %t0, %t1, ….
func (e *Emitter) nextTemp() string {
	t := fmt.Sprintf("%%t%d", e.tempCounter)
	e.tempCounter++
	return t
}

// nextLabel returns the next block label name, L0, L1, …, and records it
// as the current label.
func (e *Emitter) nextLabel() string {
	l := fmt.Sprintf("L%d", e.labelCounter)
	e.labelCounter++
	e.lastLabel = l
	return l
}

// emitLabel writes a label definition and records it as current.
func (e *Emitter) emitLabel(label string) {
	e.emit(label + ":")
	e.lastLabel = label
}

// currentLabel returns the most recently emitted or allocated label.
// lowerIf reads it right after lowering each arm to name that arm's end
// block in the phi; nextLabel also moves it, so it names the block being
// written only when read after code that ended by emitting a label.
func (e *Emitter) currentLabel() string {
	return e.lastLabel
}

// setTempType records the IR type of a temp or named local so later
// lookups (LowerExpr on an Identifier, phi construction) can find it.
func (e *Emitter) setTempType(name, irType string) {
	e.tempTypes[name] = irType
}

// tempType looks up a previously recorded temp type. Every temp consumed
// as an operand must have been registered first; a miss is a
// TypeResolutionFailed diagnostic at the call site, never a silent default.
func (e *Emitter) tempType(name string) (string, bool) {
	t, ok := e.tempTypes[name]
	return t, ok
}

// fail records a fatal diagnostic. Callers return the error immediately;
// the lowerer does not attempt sibling expressions after a failure.
func (e *Emitter) fail(d *diag.Diagnostic) error {
	e.Errors = append(e.Errors, d)
	return d
}

// warn records a non-fatal diagnostic without aborting lowering.
func (e *Emitter) warn(d *diag.Diagnostic) {
	e.Errors = append(e.Errors, d)
}

func toLoc(l ast.Location) diag.Location {
	return diag.Location{File: l.File, Line: l.Line, Column: l.Column, Position: l.Position}
}

// declareExternOnce emits an extern declaration line exactly once per
// symbol name, no matter how many times it is requested.
func (e *Emitter) declareExternOnce(symbol, declaration string) {
	if e.declaredExterns[symbol] {
		return
	}
	e.declaredExterns[symbol] = true
	e.emitGlobalDecl(declaration)
}

// emitGlobalDecl writes a line directly to the main builder regardless of
// whether a pending definition is currently being built. Used for extern
// declarations discovered mid-lowering, which belong at module scope.
func (e *Emitter) emitGlobalDecl(line string) {
	e.builder.WriteString(line)
	e.builder.WriteString("\n")
}

// BeginPendingDefinition starts routing emit() into a fresh side buffer so
// that a lambda or generic instantiation's body does not land in the
// caller's instruction stream. Returns a finish function that must be
// called exactly once (typically deferred) to restore normal routing and
// enqueue the captured text.
//
// This realizes the "record length, emit, extract delta, truncate, append"
// transfer described for lambda lowering, implemented with a side buffer
// instead of a truncate-in-place on the shared builder so the transfer is
// safe even if an error unwinds out of the body immediately.
func (e *Emitter) BeginPendingDefinition() func() {
	prevEmittingPending := e.emittingPending
	prevBuf := e.pendingBuf

	e.emittingPending = true
	e.pendingBuf = strings.Builder{}

	return func() {
		captured := e.pendingBuf.String()
		e.emittingPending = prevEmittingPending
		e.pendingBuf = prevBuf
		e.pending = append(e.pending, captured)
	}
}

// nextLambdaName allocates the next internal lambda function name.
func (e *Emitter) nextLambdaName() string {
	n := fmt.Sprintf("__lambda_%d", e.lambdaCounter)
	e.lambdaCounter++
	return n
}

// pushLoop records the exit/continue labels of an enclosing loop.
func (e *Emitter) pushLoop(breakLabel, continueLabel string) {
	e.loopStack = append(e.loopStack, loopLabels{breakLabel, continueLabel})
}

func (e *Emitter) popLoop() {
	e.loopStack = e.loopStack[:len(e.loopStack)-1]
}

func (e *Emitter) currentLoop() (loopLabels, bool) {
	if len(e.loopStack) == 0 {
		return loopLabels{}, false
	}
	return e.loopStack[len(e.loopStack)-1], true
}

// pushLock registers an acquired runtime lock that must be released on every
// exit edge out of its enclosing scoped-access body.
func (e *Emitter) pushLock(handlePtr, releaseFn string) {
	e.lockStack = append(e.lockStack, lockGuard{handlePtr, releaseFn, len(e.loopStack)})
}

func (e *Emitter) popLock() {
	e.lockStack = e.lockStack[:len(e.lockStack)-1]
}

// emitAllLockReleases releases every currently held lock, innermost first.
// Used before a return, which exits the whole function and so every
// enclosing scoped-access body along with it.
func (e *Emitter) emitAllLockReleases() {
	for i := len(e.lockStack) - 1; i >= 0; i-- {
		g := e.lockStack[i]
		e.emitf("  call void @%s(ptr %s)", g.releaseFn, g.handlePtr)
	}
}

// emitLoopExitLockReleases releases only the locks acquired at or inside the
// current innermost loop, leaving locks acquired by a scoped-access body that
// encloses the loop (rather than sitting inside it) untouched. Used before a
// break or continue, which only exits the loop, not any enclosing scope.
func (e *Emitter) emitLoopExitLockReleases() {
	currentDepth := len(e.loopStack)
	for i := len(e.lockStack) - 1; i >= 0; i-- {
		g := e.lockStack[i]
		if g.loopDepthAtPush < currentDepth {
			continue
		}
		e.emitf("  call void @%s(ptr %s)", g.releaseFn, g.handlePtr)
	}
}

// String returns the fully assembled module text: main stream followed by
// every pending definition in FIFO order.
func (e *Emitter) String() string {
	var out strings.Builder
	out.WriteString(e.builder.String())
	for _, p := range e.pending {
		out.WriteString(p)
	}
	return out.String()
}
