package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleRoot(t *testing.T) {
	root := ModuleRoot(t)
	_, err := os.Stat(filepath.Join(root, "go.mod"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "internal", "testutil", "paths.go"))
	assert.NoError(t, err)
}

func TestFindUp(t *testing.T) {
	base := t.TempDir()
	deep := filepath.Join(base, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "a", "marker"), nil, 0o644))

	dir, err := FindUp(deep, "marker")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "a"), dir)

	_, err = FindUp(deep, "no-such-marker-file")
	assert.Error(t, err)
}
