package platform_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razorforge-lang/irgen/internal/platform"
)

func TestDefault64(t *testing.T) {
	assert.Equal(t, "i64", platform.Default64.PointerIRType())
}

func TestLoadOverridesPointerBits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platform.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pointer_bits: 32\ntriple: i686-pc-windows-msvc\n"), 0o644))

	d, err := platform.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "i32", d.PointerIRType())
	assert.Equal(t, "i686-pc-windows-msvc", d.Triple)
}

func TestLoadRejectsUnsupportedWidth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platform.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pointer_bits: 16\n"), 0o644))

	_, err := platform.Load(path)
	assert.Error(t, err)
}
