package fsutil

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem(t *testing.T) {
	t.Parallel()
	m := NewMemoryFileSystem()

	_, err := m.ReadFile("scenes/room.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, m.WriteFile("scenes/room.json", []byte("{}"), 0o644), fs.ErrNotExist)

	require.NoError(t, m.MkdirAll("scenes/extra", 0o755))
	assert.True(t, m.Exists("scenes"))
	require.NoError(t, m.WriteFile("scenes/./room.json", []byte("{}"), 0o644))
	require.NoError(t, m.WriteFile("top.json", []byte("[]"), 0o644))

	data, err := m.ReadFile("scenes/room.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	data[0] = 'x'
	again, _ := m.ReadFile("scenes/room.json")
	assert.Equal(t, "{}", string(again))

	assert.Equal(t, []string{"scenes/room.json", "top.json"}, m.Files())
}

func TestOSFileSystem(t *testing.T) {
	t.Parallel()
	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "plots")

	require.NoError(t, fsys.MkdirAll(dir, 0o755))
	name := filepath.Join(dir, "run.png")
	assert.False(t, fsys.Exists(name))
	require.NoError(t, fsys.WriteFile(name, []byte{1, 2}, 0o644))
	assert.True(t, fsys.Exists(name))

	data, err := fsys.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)
}
