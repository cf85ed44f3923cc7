package paths_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modeldepot/core/internal/paths"
)

func TestResolveBaseToken(t *testing.T) {
	base := t.TempDir()

	got, err := paths.Resolve("{base}/checkpoints/model.bin", base)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "checkpoints", "model.bin"), got)
}

func TestResolveBareToken(t *testing.T) {
	base := t.TempDir()

	got, err := paths.Resolve("{base}", base)
	require.NoError(t, err)

	assert.Equal(t, base, got)
}

func TestResolveRelative(t *testing.T) {
	base := t.TempDir()

	got, err := paths.Resolve("weights/llama.gguf", base)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "weights", "llama.gguf"), got)
}

func TestResolveAbsolute(t *testing.T) {
	got, err := paths.Resolve("/srv/models/./a.bin", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/srv/models/a.bin", got)
}

func TestResolveHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := paths.Resolve("~/models/a.bin", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "models", "a.bin"), got)
}

func TestResolveRejectsTraversal(t *testing.T) {
	for _, dest := range []string{
		"../outside.bin",
		"{base}/../outside.bin",
		"a/../../outside.bin",
	} {
		_, err := paths.Resolve(dest, t.TempDir())
		assert.ErrorIs(t, err, paths.ErrPathTraversal, "dest %q", dest)
	}
}

func TestResolveEmpty(t *testing.T) {
	_, err := paths.Resolve("", t.TempDir())
	assert.Error(t, err)
}
