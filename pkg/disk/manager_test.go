package disk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorWriteAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "replica")
	m := disk.NewMirror(dir)
	defer m.Close()

	require.NoError(t, m.WriteAt(types.Position{Serial: 1, Offset: 0}, []byte("abc")))
	require.NoError(t, m.WriteAt(types.Position{Serial: 1, Offset: 3}, []byte("def")))

	// Re-sending from an earlier offset overwrites in place.
	require.NoError(t, m.WriteAt(types.Position{Serial: 1, Offset: 3}, []byte("DEF")))

	data, err := os.ReadFile(filepath.Join(dir, "Client-000001.log"))
	require.NoError(t, err)
	assert.Equal(t, "abcDEF", string(data))

	serial, open := m.OpenSerial()
	assert.True(t, open)
	assert.Equal(t, types.Serial(1), serial)
}

func TestMirrorSwitchesSegment(t *testing.T) {
	dir := t.TempDir()
	m := disk.NewMirror(dir)
	defer m.Close()

	require.NoError(t, m.WriteAt(types.Position{Serial: 1, Offset: 0}, []byte("one")))
	require.NoError(t, m.WriteAt(types.Position{Serial: 2, Offset: 0}, []byte("two")))

	serial, _ := m.OpenSerial()
	assert.Equal(t, types.Serial(2), serial)
	assert.FileExists(t, m.Path(1))
	assert.FileExists(t, m.Path(2))
}

func TestMirrorRelease(t *testing.T) {
	dir := t.TempDir()
	m := disk.NewMirror(dir)

	require.NoError(t, m.WriteAt(types.Position{Serial: 5, Offset: 0}, []byte("x")))

	m.Release(5)
	_, open := m.OpenSerial()
	assert.True(t, open, "same serial keeps the handle")

	m.Release(6)
	_, open = m.OpenSerial()
	assert.False(t, open)
	assert.FileExists(t, m.Path(5), "release never deletes")
}
