package diag_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razorforge-lang/irgen/internal/diag"
)

func TestKindFatal(t *testing.T) {
	assert.True(t, diag.KindTypeResolutionFailed.Fatal())
	assert.True(t, diag.KindNotImplemented.Fatal())
	assert.True(t, diag.KindInvalidOperation.Fatal())
	assert.False(t, diag.KindWarning.Fatal())
}

func TestTypeResolutionFailed(t *testing.T) {
	loc := diag.Location{File: "a.rf", Line: 4, Column: 9}
	d := diag.TypeResolutionFailed(loc, "s33", "parameter type")

	require.Equal(t, diag.KindTypeResolutionFailed, d.Kind)
	assert.Equal(t, "s33", d.TypeName)
	assert.Equal(t, "parameter type", d.Context)
	assert.Contains(t, d.Error(), "s33")
	assert.Contains(t, d.Error(), "a.rf:4:9")
}

func TestWarningIsNotFatal(t *testing.T) {
	d := diag.Warning(diag.Location{}, "value discarded for void function")
	assert.False(t, d.Kind.Fatal())
	assert.True(t, strings.Contains(d.Message, "discarded"))
}
