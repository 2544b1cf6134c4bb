package llvm

import (
	"fmt"
	"sort"
)

// mathRuntimeOp describes one operation the arbitrary-precision and
// decimal-float runtimes provide, keyed by (width, op) so the dispatch
// table stays a single flat structure instead of per-type switch
// statements scattered across the lowerer.
type mathRuntimeOp struct {
	width  string // "d32", "d64", "d128", "bigint", "decimal"
	op     string // "add", "sub", "mul", "div", "cmp", "from_string", "to_string"
	symbol string
	params []string
	ret    string
}

// mathRuntimeTable is built once and consulted both when declaring externs
// up front and when the intrinsic emitter looks up a call target for a
// math-runtime-backed operation.
var mathRuntimeTable = buildMathRuntimeTable()

func buildMathRuntimeTable() map[[2]string]mathRuntimeOp {
	t := make(map[[2]string]mathRuntimeOp)

	add := func(width, op, symbol string, params []string, ret string) {
		t[[2]string{width, op}] = mathRuntimeOp{width, op, symbol, params, ret}
	}

	// libdfp: IEEE-754 decimal floating point, one symbol family per width.
	decimalIR := map[string]string{"d32": "i32", "d64": "i64", "d128": "[2 x i64]"}
	for _, w := range []string{"d32", "d64", "d128"} {
		irw := decimalIR[w]
		add(w, "add", fmt.Sprintf("%s_add", w), []string{irw, irw}, irw)
		add(w, "sub", fmt.Sprintf("%s_sub", w), []string{irw, irw}, irw)
		add(w, "mul", fmt.Sprintf("%s_mul", w), []string{irw, irw}, irw)
		add(w, "div", fmt.Sprintf("%s_div", w), []string{irw, irw}, irw)
		add(w, "cmp", fmt.Sprintf("%s_cmp", w), []string{irw, irw}, "i32")
		add(w, "from_string", fmt.Sprintf("%s_from_string", w), []string{"ptr"}, irw)
		add(w, "to_string", fmt.Sprintf("%s_to_string", w), []string{irw}, "ptr")
	}

	// libbf: arbitrary-precision binary integers, opaque context handles.
	add("bigint", "add", "bf_add", []string{"ptr", "ptr", "ptr"}, "void")
	add("bigint", "sub", "bf_sub", []string{"ptr", "ptr", "ptr"}, "void")
	add("bigint", "mul", "bf_mul", []string{"ptr", "ptr", "ptr"}, "void")
	add("bigint", "div", "bf_div", []string{"ptr", "ptr", "ptr"}, "void")
	add("bigint", "cmp", "bf_cmp", []string{"ptr", "ptr"}, "i32")
	add("bigint", "from_string", "bf_set_str", []string{"ptr", "ptr"}, "void")
	add("bigint", "to_string", "bf_ftoa", []string{"ptr", "ptr"}, "ptr")

	// mafm: arbitrary-precision decimal, opaque context handles.
	add("decimal", "add", "mafm_add", []string{"ptr", "ptr", "ptr"}, "void")
	add("decimal", "sub", "mafm_sub", []string{"ptr", "ptr", "ptr"}, "void")
	add("decimal", "mul", "mafm_mul", []string{"ptr", "ptr", "ptr"}, "void")
	add("decimal", "div", "mafm_div", []string{"ptr", "ptr", "ptr"}, "void")
	add("decimal", "cmp", "mafm_cmp", []string{"ptr", "ptr"}, "i32")
	add("decimal", "from_string", "mafm_set_str", []string{"ptr", "ptr"}, "void")
	add("decimal", "to_string", "mafm_get_str", []string{"ptr"}, "ptr")

	return t
}

// lookupMathRuntimeOp finds the runtime entry point backing width/op, if
// any. A miss means the caller is not a math-runtime-backed type.
func lookupMathRuntimeOp(width, op string) (mathRuntimeOp, bool) {
	v, ok := mathRuntimeTable[[2]string{width, op}]
	return v, ok
}

// emitMathRuntimeDeclarations declares the full libdfp/libbf/mafm surface
// up front so a call site anywhere in the module can reference any of
// these symbols without a separate discovery pass.
func (e *Emitter) emitMathRuntimeDeclarations() {
	keys := make([][2]string, 0, len(mathRuntimeTable))
	for k := range mathRuntimeTable {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		entry := mathRuntimeTable[k]
		e.declareExternOnce(entry.symbol, fmt.Sprintf("declare %s @%s(%s)", entry.ret, entry.symbol, joinStrings(entry.params, ", ")))
	}

	e.declareExternOnce("bf_context_init", "declare void @bf_context_init(ptr, ptr)")
	e.declareExternOnce("bf_init", "declare void @bf_init(ptr, ptr)")
	e.declareExternOnce("bf_delete", "declare void @bf_delete(ptr)")
	e.declareExternOnce("bf_alloc_number", "declare i8* @bf_alloc_number()")
	e.declareExternOnce("bf_free_number", "declare void @bf_free_number(ptr)")
	e.declareExternOnce("bf_set_si", "declare void @bf_set_si(ptr, i64)")
	e.declareExternOnce("bf_set_ui", "declare void @bf_set_ui(ptr, i64)")

	e.declareExternOnce("mafm_context_init", "declare void @mafm_context_init(ptr)")
	e.declareExternOnce("mafm_init", "declare void @mafm_init(ptr)")
	e.declareExternOnce("mafm_clear", "declare void @mafm_clear(ptr)")
	e.declareExternOnce("mafm_alloc_number", "declare i8* @mafm_alloc_number()")
	e.declareExternOnce("mafm_set_si", "declare void @mafm_set_si(ptr, i64)")
	e.declareExternOnce("mafm_set_d", "declare void @mafm_set_d(ptr, double)")
	e.declareExternOnce("mafm_get_si", "declare i64 @mafm_get_si(ptr)")
	e.declareExternOnce("mafm_get_d", "declare double @mafm_get_d(ptr)")

	e.emit("")
}
