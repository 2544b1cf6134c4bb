package typemap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razorforge-lang/irgen/internal/platform"
	"github.com/razorforge-lang/irgen/internal/typemap"
)

func newMapper() *typemap.Mapper {
	return typemap.New(platform.Default64)
}

func TestMapPrimitives(t *testing.T) {
	m := newMapper()

	cases := map[string]string{
		"s8": "i8", "s32": "i32", "s128": "i128",
		"u8": "i8", "u64": "i64",
		"f16": "half", "f32": "float", "f64": "double", "f128": "fp128",
		"bool": "i1",
		"d32":  "i32", "d64": "i64", "d128": "{i64,i64}",
		"bigint": "ptr", "decimal": "ptr",
	}
	for source, want := range cases {
		got, err := m.Map(source)
		require.NoError(t, err, source)
		assert.Equal(t, want, got, source)
	}
}

func TestMapPointerSizedTracksPlatform(t *testing.T) {
	m := typemap.New(platform.Descriptor{PointerBits: 32, Triple: "i686"})
	got, err := m.Map("uaddr")
	require.NoError(t, err)
	assert.Equal(t, "i32", got)
}

func TestMapUnknownIsError(t *testing.T) {
	m := newMapper()
	_, err := m.Map("s33")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	m := newMapper()

	unsigned, float := m.Classify("u32")
	assert.True(t, unsigned)
	assert.False(t, float)

	unsigned, float = m.Classify("f64")
	assert.False(t, unsigned)
	assert.True(t, float)

	unsigned, float = m.Classify("s32")
	assert.False(t, unsigned)
	assert.False(t, float)
}

func TestWidthBitsRoundTrip(t *testing.T) {
	m := newMapper()
	for source, width := range map[string]int{"s8": 8, "s16": 16, "s32": 32, "s64": 64, "s128": 128} {
		ir, err := m.Map(source)
		require.NoError(t, err)
		assert.Equal(t, width, m.WidthBits(ir), source)
	}
}

func TestConversionOpSameWidthIntIsBitcast(t *testing.T) {
	m := newMapper()
	op, err := m.ConversionOp("s32", "u32")
	require.NoError(t, err)
	assert.Equal(t, typemap.OpBitcast, op)
}

func TestConversionOpWidening(t *testing.T) {
	m := newMapper()

	op, err := m.ConversionOp("s8", "s32")
	require.NoError(t, err)
	assert.Equal(t, typemap.OpSExt, op)

	op, err = m.ConversionOp("u8", "u32")
	require.NoError(t, err)
	assert.Equal(t, typemap.OpZExt, op)
}

func TestConversionOpNarrowing(t *testing.T) {
	m := newMapper()
	op, err := m.ConversionOp("s64", "s32")
	require.NoError(t, err)
	assert.Equal(t, typemap.OpTrunc, op)
}

func TestConversionOpFloatNarrowing(t *testing.T) {
	m := newMapper()
	op, err := m.ConversionOp("f64", "f32")
	require.NoError(t, err)
	assert.Equal(t, typemap.OpFPTrunc, op)
}

func TestConversionOpFloatToInt(t *testing.T) {
	m := newMapper()

	op, err := m.ConversionOp("f64", "s32")
	require.NoError(t, err)
	assert.Equal(t, typemap.OpFPToSI, op)

	op, err = m.ConversionOp("f64", "u32")
	require.NoError(t, err)
	assert.Equal(t, typemap.OpFPToUI, op)
}

func TestRegisterWrappedFoldsToUnderlying(t *testing.T) {
	m := newMapper()
	m.RegisterWrapped("Meters", "f64")

	ir, err := m.Map("Meters")
	require.NoError(t, err)
	assert.Equal(t, "double", ir)

	_, float := m.Classify("Meters")
	assert.True(t, float)
}

func TestSizeAndAlignment(t *testing.T) {
	m := newMapper()

	size, err := m.SizeBytes("s64")
	require.NoError(t, err)
	assert.Equal(t, 8, size)

	size, err = m.SizeBytes("d128")
	require.NoError(t, err)
	assert.Equal(t, 16, size)

	align, err := m.Alignment("s64")
	require.NoError(t, err)
	assert.Equal(t, 8, align)
}
