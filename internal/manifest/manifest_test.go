package manifest

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `
abc123:
  endpoint: https://sandbox.dfour.space
  snapshots:
    gemeinden:
      topic: Structure
      bfsNumber: 273
`
	require.NoError(t, afero.WriteFile(fs, "/ws/dfour.yaml", []byte(content), 0644))

	m, err := Load(fs, "/ws")
	require.NoError(t, err)

	assert.Equal(t, "https://sandbox.dfour.space", m.Endpoint("abc123"))
	assert.Equal(t, "", m.Endpoint("other"))

	e, ok := m.Entry("abc123", "gemeinden")
	require.True(t, ok)
	assert.Equal(t, Entry{Topic: "Structure", BfsNumber: 273}, e)

	_, ok = m.Entry("abc123", "missing")
	assert.False(t, ok)
	_, ok = m.Entry("other", "gemeinden")
	assert.False(t, ok)
}

func TestLoad_EmptySnapshotList(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "abc123:\n  endpoint: https://sandbox.dfour.space\n  snapshots: []\n"
	require.NoError(t, afero.WriteFile(fs, "/ws/dfour.yaml", []byte(content), 0644))

	m, err := Load(fs, "/ws")
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.dfour.space", m.Endpoint("abc123"))
	_, ok := m.Entry("abc123", "a")
	assert.False(t, ok)

	require.NoError(t, m.Set("abc123", "a", Entry{Topic: "T", BfsNumber: 1}))
	_, ok = m.Entry("abc123", "a")
	assert.True(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(fs, "/missing")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/bad/dfour.yaml", []byte("abc: [unclosed"), 0644))
	_, err = Load(fs, "/bad")
	assert.Error(t, err)
}

func TestSetPersistsImmediately(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/ws", 0755))

	m := New(fs, "/ws")
	assert.True(t, m.Ensure("abc123", "https://example.org"))
	assert.False(t, m.Ensure("abc123", "https://ignored.org"))

	exists, err := Exists(fs, "/ws")
	require.NoError(t, err)
	assert.False(t, exists, "Ensure must not save")

	require.NoError(t, m.Set("abc123", "a", Entry{Topic: "Structure", BfsNumber: 261}))

	reloaded, err := Load(fs, "/ws")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", reloaded.Endpoint("abc123"))
	e, ok := reloaded.Entry("abc123", "a")
	require.True(t, ok)
	assert.Equal(t, 261, e.BfsNumber)

	// No temp files left behind
	entries, err := afero.ReadDir(fs, "/ws")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())
}

func TestSaveIsDeterministic(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, "/ws")
	m.Ensure("ws", "https://example.org")
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, m.Set("ws", name, Entry{Topic: "T", BfsNumber: 1}))
	}
	first, err := afero.ReadFile(fs, m.Path())
	require.NoError(t, err)

	require.NoError(t, m.Save())
	second, err := afero.ReadFile(fs, m.Path())
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, "ws:\n    endpoint: https://example.org\n    snapshots:\n        a:\n            topic: T\n            bfsNumber: 1\n        b:\n            topic: T\n            bfsNumber: 1\n        c:\n            topic: T\n            bfsNumber: 1\n", string(first))
}

func TestLock(t *testing.T) {
	dir := t.TempDir()

	unlock, err := Lock(dir)
	require.NoError(t, err)

	_, err = Lock(dir)
	assert.Error(t, err, "second lock on the same folder must fail")

	require.NoError(t, unlock())

	unlock, err = Lock(dir)
	require.NoError(t, err)
	require.NoError(t, unlock())
	assert.FileExists(t, filepath.Join(dir, LockName))
}
