package disk_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/types"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCloser struct {
	dropped []types.Serial
}

func (r *recordingCloser) DropSerial(serial types.Serial) int {
	r.dropped = append(r.dropped, serial)
	return 1
}

func TestLogStoreCleanup(t *testing.T) {
	createSegment := func(t *testing.T, dir string, serial types.Serial, modTime time.Time) string {
		path := disk.SegmentPath(dir, types.PrefixServer, serial)
		require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))
		require.NoError(t, os.Chtimes(path, modTime, modTime))
		return path
	}

	old := time.Now().Add(-8 * 24 * time.Hour)

	tests := []struct {
		name           string
		retention      time.Duration
		setup          func(t *testing.T, dir string)
		expectedDelete []types.Serial
		expectedKeep   []types.Serial
	}{
		{
			name:      "AgedFinalizedSegmentsDeleted",
			retention: disk.DefaultRetention,
			setup: func(t *testing.T, dir string) {
				createSegment(t, dir, 3, old)
				createSegment(t, dir, 4, old)
				createSegment(t, dir, 5, time.Now())
			},
			expectedDelete: []types.Serial{3, 4},
			expectedKeep:   []types.Serial{5},
		},
		{
			name:      "ShortWindow",
			retention: time.Hour,
			setup: func(t *testing.T, dir string) {
				createSegment(t, dir, 7, time.Now().Add(-2*time.Hour))
				createSegment(t, dir, 8, time.Now().Add(-30*time.Minute))
			},
			expectedDelete: []types.Serial{7},
			expectedKeep:   []types.Serial{8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)
			s := openStore(t, dir, 1024)

			// The current segment is old too but must survive.
			cur := s.SegmentPath(s.CurrentSerial())
			require.NoError(t, os.Chtimes(cur, old, old))

			closer := &recordingCloser{}
			deleted := s.Cleanup(tt.retention, closer)

			assert.Len(t, deleted, len(tt.expectedDelete))
			assert.Equal(t, tt.expectedDelete, closer.dropped, "handles closed before delete")
			for _, serial := range tt.expectedDelete {
				assert.NoFileExists(t, disk.SegmentPath(dir, types.PrefixServer, serial))
			}
			for _, serial := range tt.expectedKeep {
				assert.FileExists(t, disk.SegmentPath(dir, types.PrefixServer, serial))
			}
			assert.FileExists(t, cur)
		})
	}
}

func TestCleanupIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, 1024)

	old := time.Now().Add(-30 * 24 * time.Hour)
	for _, name := range []string{"Client-000002.log", "Server-2.log", "Server-000003.log.bak"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(path, old, old))
	}

	assert.Empty(t, s.Cleanup(time.Hour, nil))
	for _, name := range []string{"Client-000002.log", "Server-2.log", "Server-000003.log.bak"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func cleanedCount(t *testing.T, result string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, metrics.SegmentsCleaned.WithLabelValues(result).Write(m))
	return m.GetCounter().GetValue()
}

func TestCleanupContinuesPastFailedDelete(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, 1024)
	old := time.Now().Add(-8 * 24 * time.Hour)

	for _, serial := range []types.Serial{3, 5} {
		path := disk.SegmentPath(dir, types.PrefixServer, serial)
		require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))
		require.NoError(t, os.Chtimes(path, old, old))
	}
	// A non-empty directory under a segment name cannot be removed.
	stuck := disk.SegmentPath(dir, types.PrefixServer, 4)
	require.NoError(t, os.MkdirAll(filepath.Join(stuck, "pinned"), 0o755))
	require.NoError(t, os.Chtimes(stuck, old, old))

	failedBefore := cleanedCount(t, "failed")
	deleted := s.Cleanup(disk.DefaultRetention, nil)

	assert.Equal(t, []string{
		disk.SegmentPath(dir, types.PrefixServer, 3),
		disk.SegmentPath(dir, types.PrefixServer, 5),
	}, deleted)
	assert.DirExists(t, stuck)
	assert.Equal(t, failedBefore+1, cleanedCount(t, "failed"))
}
