package disk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/record"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectSegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Server-000001.log")

	var data []byte
	data = append(data, record.Encode(10, 2, make([]byte, 10))...)
	data = append(data, record.Encode(11, 2, make([]byte, 20))...)
	data = append(data, record.Sentinel(12)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	sum, err := disk.InspectSegment(path)
	require.NoError(t, err)
	require.Len(t, sum.Records, 3)
	assert.True(t, sum.Finalized)
	assert.Equal(t, int64(len(data)), sum.Size)
	assert.Zero(t, sum.Trailing)
	assert.Equal(t, int64(22), sum.Records[1].Offset)
	assert.Equal(t, uint32(20), sum.Records[1].Length)
}

func TestInspectSegmentTrailing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Client-000003.log")
	data := append(record.Encode(1, 1, []byte("whole")), record.Encode(1, 1, []byte("cut"))[:7]...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	sum, err := disk.InspectSegment(path)
	require.NoError(t, err)
	assert.Len(t, sum.Records, 1)
	assert.False(t, sum.Finalized)
	assert.Equal(t, int64(7), sum.Trailing)
}

func TestParseSegmentName(t *testing.T) {
	tests := []struct {
		name   string
		want   types.Serial
		wantOK bool
	}{
		{"Server-000001.log", 1, true},
		{"/var/logs/Server-999999.log", 999999, true},
		{"Server-000000.log", 0, false},
		{"Server-1.log", 0, false},
		{"Client-000002.log", 0, false},
		{"Server-00000a.log", 0, false},
	}

	for _, tt := range tests {
		got, ok := disk.ParseSegmentName(tt.name, types.PrefixServer)
		assert.Equal(t, tt.wantOK, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
	assert.Equal(t, "Client-000042.log", disk.SegmentFileName(types.PrefixClient, 42))
}
