package disk_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/offset"
	"github.com/downfa11-org/logship/pkg/record"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, dir string, size int64) *disk.LogStore {
	t.Helper()
	s := disk.NewLogStore(dir, size)
	require.NoError(t, s.Open())
	t.Cleanup(func() { s.Close() })
	return s
}

func readSegment(t *testing.T, s *disk.LogStore, serial types.Serial) []byte {
	t.Helper()
	data, err := os.ReadFile(s.SegmentPath(serial))
	require.NoError(t, err)
	return data
}

func TestLogStoreAppend(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, 1024)

	pos, err := s.Append(2, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 1, Offset: 0}, pos)

	pos, err = s.Append(2, []byte("world!"))
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 1, Offset: 17}, pos)

	data := readSegment(t, s, 1)
	require.Len(t, data, 17+18)

	rec, n, err := record.Scan(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), rec.SourceID)
	assert.Equal(t, "hello", string(rec.Payload))

	rec, _, err = record.Scan(data[n:])
	require.NoError(t, err)
	assert.Equal(t, "world!", string(rec.Payload))
}

func TestLogStoreEmptyPayload(t *testing.T) {
	s := openStore(t, t.TempDir(), 1024)

	_, err := s.Append(1, nil)
	assert.ErrorIs(t, err, disk.ErrEmptyPayload)
	assert.Zero(t, s.CurrentSize())
}

func TestLogStoreRotation(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, 100)

	first := bytes.Repeat([]byte{'a'}, 90-record.HeaderSize)
	second := bytes.Repeat([]byte{'b'}, 50-record.HeaderSize)

	pos, err := s.Append(1, first)
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 1, Offset: 0}, pos)

	pos, err = s.Append(1, second)
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 2, Offset: 0}, pos, "second record lands at offset 0 of the new segment")
	assert.Equal(t, types.Serial(2), s.CurrentSerial())

	seg1 := readSegment(t, s, 1)
	require.Len(t, seg1, 90+record.HeaderSize)
	h, err := record.ParseHeader(seg1[90:])
	require.NoError(t, err)
	assert.True(t, h.IsSentinel(), "first segment ends with the sentinel")

	seg2 := readSegment(t, s, 2)
	rec, n, err := record.Scan(seg2)
	require.NoError(t, err)
	assert.Equal(t, second, rec.Payload)
	assert.Equal(t, len(seg2), n)

	cursor := offset.NewPositionStore(dir, offset.FileServer, offset.KindSerial)
	_, err = cursor.Open()
	require.NoError(t, err)
	assert.Equal(t, types.Serial(2), cursor.Position().Serial, "new serial persisted")
}

func TestLogStoreRotationNeverSplitsRecords(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, 256)

	var payloads [][]byte
	for i := 0; i < 40; i++ {
		p := bytes.Repeat([]byte{byte('a' + i%26)}, 10+(i*7)%60)
		payloads = append(payloads, p)
		_, err := s.Append(uint32(i), p)
		require.NoError(t, err)
	}

	var got [][]byte
	for serial := types.Serial(1); serial <= s.CurrentSerial(); serial++ {
		data := readSegment(t, s, serial)
		sentinels := 0
		for len(data) > 0 {
			rec, n, err := record.Scan(data)
			require.NoError(t, err, "segment %d", serial)
			if rec.IsSentinel() {
				sentinels++
				assert.Equal(t, n, len(data), "sentinel is the last record")
			} else {
				got = append(got, rec.Payload)
			}
			data = data[n:]
		}
		if serial < s.CurrentSerial() {
			assert.Equal(t, 1, sentinels, "finalized segment %d", serial)
			assert.LessOrEqual(t, len(readSegment(t, s, serial))-record.HeaderSize, 256)
		} else {
			assert.Zero(t, sentinels, "current segment")
		}
	}
	assert.Equal(t, payloads, got)
}

func TestLogStoreSerialWraps(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, offset.FileServer), []byte(`{"logSerial":999999}`), 0o644))

	s := openStore(t, dir, 50)
	assert.Equal(t, types.MaxSerial, s.CurrentSerial())

	_, err := s.Append(1, bytes.Repeat([]byte{'x'}, 30))
	require.NoError(t, err)
	pos, err := s.Append(1, bytes.Repeat([]byte{'y'}, 30))
	require.NoError(t, err)

	assert.Equal(t, types.Position{Serial: 1, Offset: 0}, pos)
	assert.FileExists(t, filepath.Join(dir, "Server-999999.log"))
	assert.FileExists(t, filepath.Join(dir, "Server-000001.log"))
}

func TestLogStoreReopenResumes(t *testing.T) {
	dir := t.TempDir()
	s := disk.NewLogStore(dir, 1024)
	require.NoError(t, s.Open())
	_, err := s.Append(1, []byte("before"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = openStore(t, dir, 1024)
	assert.Equal(t, int64(18), s.CurrentSize())

	pos, err := s.Append(1, []byte("after"))
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 1, Offset: 18}, pos)
}

func TestLogStoreRecoversTornRecord(t *testing.T) {
	dir := t.TempDir()
	whole := record.Encode(1, 1, []byte("complete"))
	torn := record.Encode(1, 1, []byte("torn-record"))[:15]
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Server-000001.log"), append(whole, torn...), 0o644))

	s := openStore(t, dir, 1024)
	assert.Equal(t, int64(len(whole)), s.CurrentSize())
	assert.Len(t, readSegment(t, s, 1), len(whole))
}

func TestLogStoreRecoversInterruptedRotation(t *testing.T) {
	dir := t.TempDir()
	data := append(record.Encode(1, 1, []byte("done")), record.Sentinel(1)...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Server-000001.log"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, offset.FileServer), []byte(`{"logSerial":1}`), 0o644))

	s := openStore(t, dir, 1024)
	assert.Equal(t, types.Serial(2), s.CurrentSerial())
	assert.Zero(t, s.CurrentSize())
	assert.Equal(t, data, readSegment(t, s, 1), "finalized segment untouched")
}

func TestLogStoreRotatesOversizedSegmentOnOpen(t *testing.T) {
	dir := t.TempDir()
	data := record.Encode(1, 1, bytes.Repeat([]byte{'z'}, 200))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Server-000001.log"), data, 0o644))

	s := openStore(t, dir, 100)
	assert.Equal(t, types.Serial(2), s.CurrentSerial())

	seg1 := readSegment(t, s, 1)
	h, err := record.ParseHeader(seg1[len(data):])
	require.NoError(t, err)
	assert.True(t, h.IsSentinel())
}

func TestLogStoreCorruptCursor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, offset.FileServer), []byte("garbage"), 0o644))

	err := disk.NewLogStore(dir, 1024).Open()
	assert.ErrorIs(t, err, offset.ErrCorruptCursor)
}

func TestLogStoreEnsureRotation(t *testing.T) {
	s := openStore(t, t.TempDir(), 64)

	require.NoError(t, s.EnsureRotation())
	assert.Equal(t, types.Serial(1), s.CurrentSerial(), "no rotation below the limit")

	_, err := s.Append(1, bytes.Repeat([]byte{'q'}, 80))
	require.NoError(t, err)
	require.NoError(t, s.EnsureRotation())
	assert.Equal(t, types.Serial(2), s.CurrentSerial())
}

func TestLogStoreRefusesAppendsUntilSerialPersisted(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, 100)

	_, err := s.Append(1, bytes.Repeat([]byte{'a'}, 70))
	require.NoError(t, err)

	// A non-empty directory in place of the cursor makes every save fail.
	cursor := filepath.Join(dir, offset.FileServer)
	require.NoError(t, os.RemoveAll(cursor))
	require.NoError(t, os.MkdirAll(filepath.Join(cursor, "blocker"), 0o755))

	_, err = s.Append(1, bytes.Repeat([]byte{'b'}, 70))
	require.Error(t, err, "rotation cannot persist the new serial")

	_, err = s.Append(1, []byte("refused"))
	require.Error(t, err)
	assert.Zero(t, s.CurrentSize(), "nothing written to the unpersisted segment")

	require.NoError(t, os.RemoveAll(cursor))
	pos, err := s.Append(1, []byte("accepted"))
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 2, Offset: 0}, pos)

	saved, err := os.ReadFile(cursor)
	require.NoError(t, err)
	assert.JSONEq(t, `{"logSerial":2}`, string(saved))
}

func TestLogStoreRecoveryKeepsNextSegmentRecords(t *testing.T) {
	dir := t.TempDir()
	seg1 := append(record.Encode(1, 1, []byte("done")), record.Sentinel(1)...)
	seg2 := record.Encode(1, 1, []byte("acknowledged"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Server-000001.log"), seg1, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Server-000002.log"), seg2, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, offset.FileServer), []byte(`{"logSerial":1}`), 0o644))

	s := openStore(t, dir, 1024)
	assert.Equal(t, types.Serial(2), s.CurrentSerial())
	assert.Equal(t, int64(len(seg2)), s.CurrentSize())
	assert.Equal(t, seg2, readSegment(t, s, 2))

	pos, err := s.Append(1, []byte("next"))
	require.NoError(t, err)
	assert.Equal(t, types.Position{Serial: 2, Offset: int64(len(seg2))}, pos)
}
