// Package typemap canonicalizes source-level type names into LLVM IR type
// strings and their signedness/float classification.
package typemap

import (
	"fmt"
	"strings"

	"github.com/razorforge-lang/irgen/internal/platform"
)

// ConversionOp is one of the LLVM scalar conversion opcodes.
type ConversionOp string

const (
	OpTrunc   ConversionOp = "trunc"
	OpZExt    ConversionOp = "zext"
	OpSExt    ConversionOp = "sext"
	OpFPTrunc ConversionOp = "fptrunc"
	OpFPExt   ConversionOp = "fpext"
	OpFPToUI  ConversionOp = "fptoui"
	OpFPToSI  ConversionOp = "fptosi"
	OpUIToFP  ConversionOp = "uitofp"
	OpSIToFP  ConversionOp = "sitofp"
	OpIntToPtr ConversionOp = "inttoptr"
	OpPtrToInt ConversionOp = "ptrtoint"
	OpBitcast ConversionOp = "bitcast"
)

var integerWidths = map[string]int{
	"s8": 8, "s16": 16, "s32": 32, "s64": 64, "s128": 128,
	"u8": 8, "u16": 16, "u32": 32, "u64": 64, "u128": 128,
}

var floatWidths = map[string]int{
	"f16": 16, "f32": 32, "f64": 64, "f128": 128,
}

var floatIRNames = map[string]string{
	"f16": "half", "f32": "float", "f64": "double", "f128": "fp128",
}

var decimalIRTypes = map[string]string{
	"d32": "i32", "d64": "i64", "d128": "{i64,i64}",
}

var decimalWidths = map[string]int{
	"d32": 32, "d64": 64, "d128": 128,
}

// pointerSizedNames are the source types whose width tracks the platform's
// pointer size: the signed/unsigned machine-word integer and the two
// address types.
var pointerSizedNames = map[string]bool{
	"isys": true, "usys": true, "saddr": true, "uaddr": true,
}

// Mapper canonicalizes source types for a single platform target. A
// TypeMapper also tracks record-wrapped primitives (single-field nominal
// structs) registered by the symbol table so width/conversion queries can
// fold them back to their underlying primitive.
type Mapper struct {
	Platform platform.Descriptor

	// wrapped maps a record type name to the source type name of its sole
	// field, e.g. "Meters" -> "f64".
	wrapped map[string]string
}

// New builds a Mapper for the given platform.
func New(p platform.Descriptor) *Mapper {
	return &Mapper{Platform: p, wrapped: make(map[string]string)}
}

// RegisterWrapped records that record type name is a single-field wrapper
// around underlying, so later width/classification queries on name see
// through to underlying.
func (m *Mapper) RegisterWrapped(name, underlying string) {
	m.wrapped[name] = underlying
}

func (m *Mapper) unwrap(sourceType string) string {
	name := strings.TrimPrefix(sourceType, "%")
	seen := map[string]bool{}
	for {
		under, ok := m.wrapped[name]
		if !ok || seen[name] {
			return name
		}
		seen[name] = true
		name = under
	}
}

// Map returns the IR type for a source type name. Unknown names are
// reported via the returned error; callers turn that into a fatal
// TypeResolutionFailed diagnostic.
func (m *Mapper) Map(sourceType string) (string, error) {
	name := m.unwrap(sourceType)

	if width, ok := integerWidths[name]; ok {
		return fmt.Sprintf("i%d", width), nil
	}
	if pointerSizedNames[name] {
		return m.Platform.PointerIRType(), nil
	}
	if ir, ok := floatIRNames[name]; ok {
		return ir, nil
	}
	if name == "bool" {
		return "i1", nil
	}
	if ir, ok := decimalIRTypes[name]; ok {
		return ir, nil
	}
	if name == "bigint" || name == "decimal" {
		return "ptr", nil
	}
	if name == "ptr" || name == "pointer" || strings.HasPrefix(name, "Text<") || name == "text" {
		return "ptr", nil
	}

	return "", fmt.Errorf("unknown source type %q", sourceType)
}

// Classify reports the signedness and float-ness of a source type.
func (m *Mapper) Classify(sourceType string) (isUnsigned, isFloat bool) {
	name := m.unwrap(sourceType)

	if _, ok := floatIRNames[name]; ok {
		return false, true
	}
	if _, ok := decimalIRTypes[name]; ok {
		return false, true
	}
	if strings.HasPrefix(name, "u") {
		return true, false
	}
	return false, false
}

// WidthBits returns the bit width of an IR type string as produced by Map.
func (m *Mapper) WidthBits(irType string) int {
	switch irType {
	case "i1":
		return 1
	case "half":
		return 16
	case "float":
		return 32
	case "double":
		return 64
	case "fp128":
		return 128
	case "ptr":
		return m.Platform.PointerBits
	}
	if strings.HasPrefix(irType, "i") {
		var n int
		if _, err := fmt.Sscanf(irType, "i%d", &n); err == nil {
			return n
		}
	}
	return m.Platform.PointerBits
}

// ConversionOp selects the LLVM opcode converting from one source type to
// another, based on each type's width and float/signed classification.
func (m *Mapper) ConversionOp(from, to string) (ConversionOp, error) {
	fromIR, err := m.Map(from)
	if err != nil {
		return "", err
	}
	toIR, err := m.Map(to)
	if err != nil {
		return "", err
	}

	fromUnsigned, fromFloat := m.Classify(from)
	_, toFloat := m.Classify(to)

	fromW, toW := m.WidthBits(fromIR), m.WidthBits(toIR)

	switch {
	case fromIR == "ptr" && toIR == "ptr":
		return OpBitcast, nil
	case fromIR == "ptr" && !toFloat:
		return OpPtrToInt, nil
	case toIR == "ptr" && !fromFloat:
		return OpIntToPtr, nil
	case fromFloat && toFloat:
		if fromW == toW {
			return OpBitcast, nil
		}
		if fromW > toW {
			return OpFPTrunc, nil
		}
		return OpFPExt, nil
	case fromFloat && !toFloat:
		if toUnsignedOf(to) {
			return OpFPToUI, nil
		}
		return OpFPToSI, nil
	case !fromFloat && toFloat:
		if fromUnsigned {
			return OpUIToFP, nil
		}
		return OpSIToFP, nil
	default: // integer to integer
		if fromW == toW {
			return OpBitcast, nil
		}
		if fromW > toW {
			return OpTrunc, nil
		}
		if fromUnsigned {
			return OpZExt, nil
		}
		return OpSExt, nil
	}
}

func toUnsignedOf(sourceType string) bool {
	name := strings.TrimPrefix(sourceType, "%")
	return strings.HasPrefix(name, "u")
}

// SizeBytes returns the storage size in bytes of a source type.
func (m *Mapper) SizeBytes(sourceType string) (int, error) {
	ir, err := m.Map(sourceType)
	if err != nil {
		return 0, err
	}
	if ir == "{i64,i64}" {
		return 16, nil
	}
	return (m.WidthBits(ir) + 7) / 8, nil
}

// Alignment returns the natural alignment in bytes of a source type; it
// matches SizeBytes for every scalar this mapper produces.
func (m *Mapper) Alignment(sourceType string) (int, error) {
	return m.SizeBytes(sourceType)
}
