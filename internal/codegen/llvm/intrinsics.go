package llvm

import (
	"fmt"
	"strings"

	"github.com/razorforge-lang/irgen/internal/ast"
)

// lowerIntrinsicCall dispatches a `@intrinsic.*` pseudo-operation to its IR
// realization. The dispatch is grouped by family (arithmetic including the
// binary bitwise ops, comparison, math, atomic, bit-manipulation,
// sizeof/alignof) rather than one case per exact name, since most families
// share an operand lowering shape and differ only in the chosen opcode or
// declared runtime symbol. The conversion-opcode intrinsics (trunc, zext,
// sext, ...) and the unary not/neg have no case here and are reported as
// not implemented.
func (e *Emitter) lowerIntrinsicCall(call *ast.IntrinsicCall) (string, string, error) {
	switch {
	case call.Name == "sizeof":
		return e.lowerSizeof(call)
	case call.Name == "alignof":
		return e.lowerAlignof(call)
	case strings.HasPrefix(call.Name, "atomic."):
		return e.lowerAtomicIntrinsic(call)
	case isTrappingArith(call.Name):
		return e.lowerOverflowArith(call)
	case isOverflowValueArith(call.Name):
		return e.lowerOverflowValueArith(call)
	case isWrappingArith(call.Name):
		return e.lowerWrappingArith(call)
	case isSaturatingArith(call.Name):
		return e.lowerSaturatingArith(call)
	case strings.HasPrefix(call.Name, "icmp.") || strings.HasPrefix(call.Name, "fcmp."):
		return e.lowerCompareIntrinsic(call)
	case isBitManipulation(call.Name):
		return e.lowerBitManipulation(call)
	case isMathIntrinsic(call.Name):
		return e.lowerMathIntrinsic(call)
	case isPlainArith(call.Name):
		return e.lowerPlainArithIntrinsic(call)
	default:
		return "", "", e.fail(notImplemented(call.Loc(), fmt.Sprintf("intrinsic %q", call.Name)))
	}
}

func (e *Emitter) lowerOperands(args []ast.Expr) (operands, irTypes []string, err error) {
	for _, a := range args {
		op, ir, err := e.LowerExpr(a)
		if err != nil {
			return nil, nil, err
		}
		operands = append(operands, op)
		irTypes = append(irTypes, ir)
	}
	return operands, irTypes, nil
}

func (e *Emitter) lowerSizeof(call *ast.IntrinsicCall) (string, string, error) {
	if len(call.TypeArgs) != 1 {
		return "", "", e.fail(invalidOperation(call.Loc(), "sizeof takes exactly one type argument"))
	}
	n, err := e.Types.SizeBytes(call.TypeArgs[0])
	if err != nil {
		return "", "", e.fail(typeResolutionFailed(call.Loc(), call.TypeArgs[0], "sizeof"))
	}
	return fmt.Sprintf("%d", n), "i64", nil
}

func (e *Emitter) lowerAlignof(call *ast.IntrinsicCall) (string, string, error) {
	if len(call.TypeArgs) != 1 {
		return "", "", e.fail(invalidOperation(call.Loc(), "alignof takes exactly one type argument"))
	}
	n, err := e.Types.Alignment(call.TypeArgs[0])
	if err != nil {
		return "", "", e.fail(typeResolutionFailed(call.Loc(), call.TypeArgs[0], "alignof"))
	}
	return fmt.Sprintf("%d", n), "i64", nil
}

// trapOverflowOps maps the bare arithmetic intrinsic name to the
// llvm.*.with.overflow mnemonic it traps through. Per the overflow-behavior
// contract, a bare name ("add", "uadd", ...) traps on overflow; ".overflow"
// and ".wrapping" suffixes pick the two non-trapping variants below.
var trapOverflowOps = map[string]string{
	"add": "sadd", "sub": "ssub", "mul": "smul",
	"uadd": "uadd", "usub": "usub", "umul": "umul",
}

func isTrappingArith(name string) bool {
	_, ok := trapOverflowOps[name]
	return ok
}

// lowerOverflowArith emits the llvm.{s|u}{add|sub|mul}.with.overflow family
// for a bare arithmetic name and traps via llvm.trap/unreachable when the
// overflow flag comes back set.
func (e *Emitter) lowerOverflowArith(call *ast.IntrinsicCall) (string, string, error) {
	mnemonic := trapOverflowOps[call.Name]
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	if len(operands) != 2 {
		return "", "", e.fail(invalidOperation(call.Loc(), fmt.Sprintf("%s takes exactly two operands", call.Name)))
	}
	irType := irTypes[0]
	packed, _ := e.emitOverflowCall(mnemonic, irType, operands)

	result := e.nextTemp()
	e.emitf("  %s = extractvalue {%s, i1} %s, 0", result, irType, packed)
	overflowed := e.nextTemp()
	e.emitf("  %s = extractvalue {%s, i1} %s, 1", overflowed, irType, packed)

	trapLabel, contLabel := e.nextLabel(), e.nextLabel()
	e.emitf("  br i1 %s, label %%%s, label %%%s", overflowed, trapLabel, contLabel)
	e.emitLabel(trapLabel)
	e.emit("  call void @llvm.trap()")
	e.emit("  unreachable")
	e.emitLabel(contLabel)

	e.setTempType(result, irType)
	return result, irType, nil
}

// overflowValueOps maps a ".overflow"-suffixed intrinsic name to its
// underlying mnemonic. These are overflow-checked but never trap: the flag
// is computed and dropped, since the source language has no multi-value
// return ABI to surface it through (tuple support is deferred).
var overflowValueOps = map[string]string{
	"add.overflow": "sadd", "sub.overflow": "ssub", "mul.overflow": "smul",
	"uadd.overflow": "uadd", "usub.overflow": "usub", "umul.overflow": "umul",
}

func isOverflowValueArith(name string) bool {
	_, ok := overflowValueOps[name]
	return ok
}

// lowerOverflowValueArith emits the same llvm.*.with.overflow call as
// lowerOverflowArith but returns the extracted value only, with no branch
// and no trap: the overflow flag is computed and discarded.
func (e *Emitter) lowerOverflowValueArith(call *ast.IntrinsicCall) (string, string, error) {
	mnemonic := overflowValueOps[call.Name]
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	if len(operands) != 2 {
		return "", "", e.fail(invalidOperation(call.Loc(), fmt.Sprintf("%s takes exactly two operands", call.Name)))
	}
	irType := irTypes[0]
	packed, _ := e.emitOverflowCall(mnemonic, irType, operands)

	result := e.nextTemp()
	e.emitf("  %s = extractvalue {%s, i1} %s, 0", result, irType, packed)
	e.setTempType(result, irType)
	return result, irType, nil
}

// emitOverflowCall declares (once) and calls llvm.<mnemonic>.with.overflow.<irType>,
// returning the packed {result, i1} temp.
func (e *Emitter) emitOverflowCall(mnemonic, irType string, operands []string) (packed, intrinsicName string) {
	intrinsicName = fmt.Sprintf("llvm.%s.with.overflow.%s", mnemonic, irType)
	e.declareExternOnce(intrinsicName, fmt.Sprintf("declare {%s, i1} @%s(%s, %s)", irType, intrinsicName, irType, irType))
	packed = e.nextTemp()
	e.emitf("  %s = call {%s, i1} @%s(%s %s, %s %s)", packed, irType, intrinsicName, irType, operands[0], irType, operands[1])
	return packed, intrinsicName
}

// wrappingBase maps a ".wrapping"-suffixed intrinsic name to the plain LLVM
// opcode it lowers to directly: the non-trapping, non-checked arithmetic op.
var wrappingBase = map[string]string{
	"add.wrapping": "add", "sub.wrapping": "sub", "mul.wrapping": "mul",
	"uadd.wrapping": "add", "usub.wrapping": "sub", "umul.wrapping": "mul",
}

func isWrappingArith(name string) bool {
	_, ok := wrappingBase[name]
	return ok
}

// lowerWrappingArith emits the plain, non-trapping LLVM arithmetic op for a
// ".wrapping"-suffixed intrinsic name: two's-complement wraparound with no
// overflow check at all.
func (e *Emitter) lowerWrappingArith(call *ast.IntrinsicCall) (string, string, error) {
	opcode := wrappingBase[call.Name]
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	if len(operands) != 2 {
		return "", "", e.fail(invalidOperation(call.Loc(), fmt.Sprintf("%s takes exactly two operands", call.Name)))
	}
	irType := irTypes[0]
	t := e.nextTemp()
	e.emitf("  %s = %s %s %s, %s", t, opcode, irType, operands[0], operands[1])
	e.setTempType(t, irType)
	return t, irType, nil
}

var saturatingOps = map[string]string{
	"add.saturating": "sadd", "sub.saturating": "ssub",
	"uadd.saturating": "uadd", "usub.saturating": "usub",
}

func isSaturatingArith(name string) bool {
	if _, ok := saturatingOps[name]; ok {
		return true
	}
	return name == "mul.saturating" || name == "umul.saturating"
}

// lowerSaturatingArith emits llvm.sadd.sat/llvm.uadd.sat/etc for add and
// sub. Multiplication has no native saturating LLVM intrinsic, so
// mul.saturating/umul.saturating are lowered via the overflow-checking
// intrinsic and clamped to the type's min/max on overflow rather than
// trapping.
func (e *Emitter) lowerSaturatingArith(call *ast.IntrinsicCall) (string, string, error) {
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	if len(operands) != 2 {
		return "", "", e.fail(invalidOperation(call.Loc(), fmt.Sprintf("%s takes exactly two operands", call.Name)))
	}
	irType := irTypes[0]

	if mnemonic, ok := saturatingOps[call.Name]; ok {
		intrinsicName := fmt.Sprintf("llvm.%s.sat.%s", mnemonic, irType)
		e.declareExternOnce(intrinsicName, fmt.Sprintf("declare %s @%s(%s, %s)", irType, intrinsicName, irType, irType))
		t := e.nextTemp()
		e.emitf("  %s = call %s @%s(%s %s, %s %s)", t, irType, intrinsicName, irType, operands[0], irType, operands[1])
		e.setTempType(t, irType)
		return t, irType, nil
	}

	return e.lowerSaturatingMul(call, operands, irType)
}

func (e *Emitter) lowerSaturatingMul(call *ast.IntrinsicCall, operands []string, irType string) (string, string, error) {
	unsigned := call.Name == "umul.saturating"
	mnemonic := "smul"
	if unsigned {
		mnemonic = "umul"
	}
	intrinsicName := fmt.Sprintf("llvm.%s.with.overflow.%s", mnemonic, irType)
	e.declareExternOnce(intrinsicName, fmt.Sprintf("declare {%s, i1} @%s(%s, %s)", irType, intrinsicName, irType, irType))

	packed := e.nextTemp()
	e.emitf("  %s = call {%s, i1} @%s(%s %s, %s %s)", packed, irType, intrinsicName, irType, operands[0], irType, operands[1])
	result := e.nextTemp()
	e.emitf("  %s = extractvalue {%s, i1} %s, 0", result, irType, packed)
	overflowed := e.nextTemp()
	e.emitf("  %s = extractvalue {%s, i1} %s, 1", overflowed, irType, packed)

	width := e.Types.WidthBits(irType)
	maxLit, minLit := maxMinLiterals(width, unsigned)

	clampLabel, contLabel, mergeLabel := e.nextLabel(), e.nextLabel(), e.nextLabel()
	e.emitf("  br i1 %s, label %%%s, label %%%s", overflowed, clampLabel, contLabel)

	e.emitLabel(clampLabel)
	var clamped string
	if unsigned {
		clamped = maxLit
	} else {
		// The true product is negative exactly when the operand signs differ.
		signXor := e.nextTemp()
		e.emitf("  %s = xor %s %s, %s", signXor, irType, operands[0], operands[1])
		e.setTempType(signXor, irType)
		signBit := e.nextTemp()
		e.emitf("  %s = icmp slt %s %s, 0", signBit, irType, signXor)
		clampedTemp := e.nextTemp()
		e.emitf("  %s = select i1 %s, %s %s, %s %s", clampedTemp, signBit, irType, minLit, irType, maxLit)
		clamped = clampedTemp
		e.setTempType(clamped, irType)
	}
	e.emitf("  br label %%%s", mergeLabel)

	e.emitLabel(contLabel)
	e.emitf("  br label %%%s", mergeLabel)

	e.emitLabel(mergeLabel)
	t := e.nextTemp()
	e.emitf("  %s = phi %s [ %s, %%%s ], [ %s, %%%s ]", t, irType, clamped, clampLabel, result, contLabel)
	e.setTempType(t, irType)
	return t, irType, nil
}

func maxMinLiterals(width int, unsigned bool) (max, min string) {
	if unsigned {
		switch width {
		case 8:
			return "255", "0"
		case 16:
			return "65535", "0"
		case 32:
			return "4294967295", "0"
		case 128:
			return "340282366920938463463374607431768211455", "0"
		default:
			return "18446744073709551615", "0"
		}
	}
	switch width {
	case 8:
		return "127", "-128"
	case 16:
		return "32767", "-32768"
	case 32:
		return "2147483647", "-2147483648"
	case 128:
		return "170141183460469231731687303715884105727", "-170141183460469231731687303715884105728"
	default:
		return "9223372036854775807", "-9223372036854775808"
	}
}

func isPlainArith(name string) bool {
	switch name {
	case "div", "udiv", "sdiv", "rem", "urem", "srem", "fadd", "fsub", "fmul", "fdiv", "frem",
		"and", "or", "xor", "shl", "lshr", "ashr":
		return true
	}
	return false
}

func (e *Emitter) lowerPlainArithIntrinsic(call *ast.IntrinsicCall) (string, string, error) {
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	if len(operands) != 2 {
		return "", "", e.fail(invalidOperation(call.Loc(), fmt.Sprintf("%s takes exactly two operands", call.Name)))
	}
	irType := irTypes[0]
	t := e.nextTemp()
	e.emitf("  %s = %s %s %s, %s", t, call.Name, irType, operands[0], operands[1])
	e.setTempType(t, irType)
	return t, irType, nil
}

func (e *Emitter) lowerCompareIntrinsic(call *ast.IntrinsicCall) (string, string, error) {
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	if len(operands) != 2 {
		return "", "", e.fail(invalidOperation(call.Loc(), fmt.Sprintf("%s takes exactly two operands", call.Name)))
	}
	parts := strings.SplitN(call.Name, ".", 2)
	mnemonic, pred := parts[0], parts[1]
	t := e.nextTemp()
	e.emitf("  %s = %s %s %s %s, %s", t, mnemonic, pred, irTypes[0], operands[0], operands[1])
	e.setTempType(t, "i1")
	return t, "i1", nil
}

var bitManipulationIntrinsics = map[string]string{
	"ctpop": "ctpop", "bswap": "bswap", "bitreverse": "bitreverse",
	"ctlz": "ctlz", "cttz": "cttz",
}

func isBitManipulation(name string) bool {
	_, ok := bitManipulationIntrinsics[name]
	return ok
}

func (e *Emitter) lowerBitManipulation(call *ast.IntrinsicCall) (string, string, error) {
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	if len(operands) != 1 {
		return "", "", e.fail(invalidOperation(call.Loc(), fmt.Sprintf("%s takes exactly one operand", call.Name)))
	}
	irType := irTypes[0]
	name := bitManipulationIntrinsics[call.Name]
	intrinsicName := fmt.Sprintf("llvm.%s.%s", name, irType)

	switch call.Name {
	case "ctlz", "cttz":
		e.declareExternOnce(intrinsicName, fmt.Sprintf("declare %s @%s(%s, i1)", irType, intrinsicName, irType))
		t := e.nextTemp()
		e.emitf("  %s = call %s @%s(%s %s, i1 false)", t, irType, intrinsicName, irType, operands[0])
		e.setTempType(t, irType)
		return t, irType, nil
	default:
		e.declareExternOnce(intrinsicName, fmt.Sprintf("declare %s @%s(%s)", irType, intrinsicName, irType))
		t := e.nextTemp()
		e.emitf("  %s = call %s @%s(%s %s)", t, irType, intrinsicName, irType, operands[0])
		e.setTempType(t, irType)
		return t, irType, nil
	}
}

var mathIntrinsics = map[string]bool{
	"sqrt": true, "sin": true, "cos": true, "exp": true, "log": true,
	"pow": true, "floor": true, "ceil": true, "round": true, "fabs": true,
	"minnum": true, "maxnum": true, "log10": true, "copysign": true,
	"trunc_float": true, "abs": true,
}

func isMathIntrinsic(name string) bool {
	return mathIntrinsics[name]
}

func (e *Emitter) lowerMathIntrinsic(call *ast.IntrinsicCall) (string, string, error) {
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	if len(operands) == 0 {
		return "", "", e.fail(invalidOperation(call.Loc(), fmt.Sprintf("%s takes at least one operand", call.Name)))
	}
	irType := irTypes[0]

	if width, op, ok := mathRuntimeFamily(irType, call.Name); ok {
		if entry, found := lookupMathRuntimeOp(width, op); found {
			t := e.nextTemp()
			argList := make([]string, len(operands))
			for i, o := range operands {
				argList[i] = irTypes[i] + " " + o
			}
			e.emitf("  %s = call %s @%s(%s)", t, entry.ret, entry.symbol, strings.Join(argList, ", "))
			e.setTempType(t, entry.ret)
			return t, entry.ret, nil
		}
	}

	llvmName := call.Name
	if llvmName == "trunc_float" {
		llvmName = "trunc"
	}
	intrinsicName := fmt.Sprintf("llvm.%s.%s", llvmName, irType)
	declArgs := make([]string, len(irTypes))
	for i := range irTypes {
		declArgs[i] = irTypes[i]
	}
	argList := make([]string, len(operands))
	for i, o := range operands {
		argList[i] = irTypes[i] + " " + o
	}
	if call.Name == "abs" {
		// llvm.abs takes an is_int_min_poison flag; INT_MIN stays defined.
		declArgs = append(declArgs, "i1")
		argList = append(argList, "i1 false")
	}
	e.declareExternOnce(intrinsicName, fmt.Sprintf("declare %s @%s(%s)", irType, intrinsicName, strings.Join(declArgs, ", ")))

	t := e.nextTemp()
	e.emitf("  %s = call %s @%s(%s)", t, irType, intrinsicName, strings.Join(argList, ", "))
	e.setTempType(t, irType)
	return t, irType, nil
}

// mathRuntimeFamily maps an IR type back to a libdfp width name by IR type
// alone: every i32 operand is treated as d32 and every i64 operand as d64,
// whatever its source type. Other IR types (including the ptr handles of
// bigint/decimal and the [2 x i64] of d128) are not mapped, so math
// intrinsics over them go to the llvm.* intrinsic path. A mapped operation
// with no runtime table entry also falls back to that path.
func mathRuntimeFamily(irType, op string) (width, runtimeOp string, ok bool) {
	switch irType {
	case "i32":
		return "d32", opToRuntimeName(op), true
	case "i64":
		return "d64", opToRuntimeName(op), true
	}
	return "", "", false
}

func opToRuntimeName(op string) string {
	switch op {
	case "add", "sub", "mul", "div":
		return op
	default:
		return op
	}
}

func (e *Emitter) lowerAtomicIntrinsic(call *ast.IntrinsicCall) (string, string, error) {
	operands, irTypes, err := e.lowerOperands(call.Args)
	if err != nil {
		return "", "", err
	}
	switch call.Name {
	case "atomic.load":
		t := e.nextTemp()
		e.emitf("  %s = load atomic %s, %s* %s seq_cst, align 8", t, irTypes[0], irTypes[0], operands[0])
		e.setTempType(t, irTypes[0])
		return t, irTypes[0], nil
	case "atomic.store":
		e.emitf("  store atomic %s %s, %s* %s seq_cst, align 8", irTypes[1], operands[1], irTypes[0], operands[0])
		return "", "", nil
	case "atomic.cmpxchg":
		if len(operands) != 3 {
			return "", "", e.fail(invalidOperation(call.Loc(), "atomic.cmpxchg takes (ptr, expected, desired)"))
		}
		valType := irTypes[1]
		packed := e.nextTemp()
		e.emitf("  %s = cmpxchg %s* %s, %s %s, %s %s seq_cst seq_cst", packed, valType, operands[0], valType, operands[1], valType, operands[2])
		result := e.nextTemp()
		e.emitf("  %s = extractvalue { %s, i1 } %s, 0", result, valType, packed)
		e.setTempType(result, valType)
		return result, valType, nil
	case "atomic.add", "atomic.sub", "atomic.and", "atomic.or", "atomic.xor", "atomic.xchg":
		op := strings.TrimPrefix(call.Name, "atomic.")
		if op == "xchg" {
			op = "xchg"
		}
		valType := irTypes[1]
		t := e.nextTemp()
		e.emitf("  %s = atomicrmw %s %s* %s, %s %s seq_cst", t, op, valType, operands[0], valType, operands[1])
		e.setTempType(t, valType)
		return t, valType, nil
	default:
		return "", "", e.fail(notImplemented(call.Loc(), fmt.Sprintf("atomic intrinsic %q", call.Name)))
	}
}

// lowerMemoryOperation handles the direct memory-access primitives:
// load/store/volatile_load/volatile_store/bitcast/invalidate.
func (e *Emitter) lowerMemoryOperation(m *ast.MemoryOperation) (string, string, error) {
	switch m.Op {
	case "load", "volatile_load":
		ptrOperand, ptrIR, err := e.LowerExpr(m.Args[0])
		if err != nil {
			return "", "", err
		}
		pointee := strings.TrimSuffix(ptrIR, "*")
		if len(m.TypeArgs) == 1 {
			if ir, err := e.MapType(m.TypeArgs[0]); err == nil {
				pointee = ir
			}
		}
		t := e.nextTemp()
		volatile := ""
		if m.Op == "volatile_load" {
			volatile = "volatile "
		}
		e.emitf("  %s = load %s%s, %s* %s", t, volatile, pointee, pointee, ptrOperand)
		e.setTempType(t, pointee)
		return t, pointee, nil

	case "store", "volatile_store":
		if len(m.Args) != 2 {
			return "", "", e.fail(invalidOperation(m.Loc(), "store takes (ptr, value)"))
		}
		ptrOperand, _, err := e.LowerExpr(m.Args[0])
		if err != nil {
			return "", "", err
		}
		valOperand, valIR, err := e.LowerExpr(m.Args[1])
		if err != nil {
			return "", "", err
		}
		volatile := ""
		if m.Op == "volatile_store" {
			volatile = "volatile "
		}
		e.emitf("  store %s%s %s, %s* %s", volatile, valIR, valOperand, valIR, ptrOperand)
		return "", "", nil

	case "bitcast":
		operand, fromIR, err := e.LowerExpr(m.Args[0])
		if err != nil {
			return "", "", err
		}
		if len(m.TypeArgs) != 1 {
			return "", "", e.fail(invalidOperation(m.Loc(), "bitcast takes exactly one type argument"))
		}
		toIR, err := e.MapType(m.TypeArgs[0])
		if err != nil {
			return "", "", e.fail(typeResolutionFailed(m.Loc(), m.TypeArgs[0], "bitcast target"))
		}
		// Value-level reinterpretation: spill the value to a stack slot and
		// reload the same bytes as the target type.
		slot := e.nextTemp()
		e.emitf("  %s = alloca %s", slot, fromIR)
		e.setTempType(slot, fromIR+"*")
		e.emitf("  store %s %s, %s* %s", fromIR, operand, fromIR, slot)
		t := e.nextTemp()
		e.emitf("  %s = load %s, %s* %s", t, toIR, toIR, slot)
		e.setTempType(t, toIR)
		return t, toIR, nil

	case "invalidate":
		// Releases the handle's storage through the C runtime's free, which
		// the module header declares.
		operand, _, err := e.LowerExpr(m.Args[0])
		if err != nil {
			return "", "", err
		}
		e.emitf("  call void @free(i8* %s)", operand)
		return "", "", nil

	default:
		return "", "", e.fail(notImplemented(m.Loc(), fmt.Sprintf("memory operation %q", m.Op)))
	}
}
