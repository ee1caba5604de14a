package offset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/logship/pkg/offset"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionStoreFreshStart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	ps := offset.NewPositionStore(dir, offset.FileClient, offset.KindPosition)

	fresh, err := ps.Open()
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, types.Start, ps.Position())

	data, err := os.ReadFile(filepath.Join(dir, offset.FileClient))
	require.NoError(t, err)
	assert.JSONEq(t, `{"logSN":1,"logPos":0}`, string(data))
}

func TestPositionStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ps := offset.NewPositionStore(dir, offset.FileRelay, offset.KindPosition)
	_, err := ps.Open()
	require.NoError(t, err)

	want := types.Position{Serial: 12, Offset: 4096}
	require.NoError(t, ps.Save(want))

	reopened := offset.NewPositionStore(dir, offset.FileRelay, offset.KindPosition)
	fresh, err := reopened.Open()
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, want, reopened.Position())
}

func TestPositionStoreSerialOnly(t *testing.T) {
	dir := t.TempDir()
	ps := offset.NewPositionStore(dir, offset.FileServer, offset.KindSerial)
	_, err := ps.Open()
	require.NoError(t, err)

	require.NoError(t, ps.Save(types.Position{Serial: 3, Offset: 999}))

	data, err := os.ReadFile(filepath.Join(dir, offset.FileServer))
	require.NoError(t, err)
	assert.JSONEq(t, `{"logSerial":3}`, string(data))

	reopened := offset.NewPositionStore(dir, offset.FileServer, offset.KindSerial)
	_, err = reopened.Open()
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 3}, reopened.Position())
}

func TestPositionStoreCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"NotJSON", "{logSN: 1"},
		{"ZeroSerial", `{"logSN":0,"logPos":0}`},
		{"SerialTooLarge", `{"logSN":1000000,"logPos":0}`},
		{"NegativeOffset", `{"logSN":2,"logPos":-4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, offset.FileClient), []byte(tt.content), 0o644))

			ps := offset.NewPositionStore(dir, offset.FileClient, offset.KindPosition)
			fresh, err := ps.Open()
			assert.False(t, fresh)
			assert.ErrorIs(t, err, offset.ErrCorruptCursor)
		})
	}
}

func TestPositionStoreMissingFieldsDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, offset.FileClient), []byte(`{"logSN":9}`), 0o644))

	ps := offset.NewPositionStore(dir, offset.FileClient, offset.KindPosition)
	_, err := ps.Open()
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 9, Offset: 0}, ps.Position())
}

func TestNodeRegistry(t *testing.T) {
	dir := t.TempDir()
	nr := offset.NewNodeRegistry(dir)
	require.NoError(t, nr.Open())

	_, ok := nr.Lookup(2)
	assert.False(t, ok)

	nr.Record(2, types.Position{Serial: 4, Offset: 128})
	nr.Record(3, types.Position{Serial: 1, Offset: 0})
	require.NoError(t, nr.Flush())

	reopened := offset.NewNodeRegistry(dir)
	require.NoError(t, reopened.Open())

	pos, ok := reopened.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, types.Position{Serial: 4, Offset: 128}, pos)
}

func TestNodeRegistryCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, offset.FileNodes), []byte("[]"), 0o644))

	assert.ErrorIs(t, offset.NewNodeRegistry(dir).Open(), offset.ErrCorruptCursor)
}
