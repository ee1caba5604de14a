package disk

import (
	"fmt"

	"github.com/downfa11-org/logship/pkg/record"
	"golang.org/x/exp/mmap"
)

type RecordInfo struct {
	Offset int64
	record.Header
}

// SegmentSummary describes the record layout of one segment file.
type SegmentSummary struct {
	Records   []RecordInfo
	Finalized bool
	Size      int64
	// Trailing counts bytes after the last whole record.
	Trailing int64
}

// InspectSegment maps a segment read-only and walks its record headers
// without copying payloads.
func InspectSegment(path string) (SegmentSummary, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return SegmentSummary{}, fmt.Errorf("mmap open failed: %w", err)
	}
	defer reader.Close()

	size := int64(reader.Len())
	sum := SegmentSummary{Size: size}

	var hb [record.HeaderSize]byte
	pos := int64(0)
	for pos+record.HeaderSize <= size {
		if _, err := reader.ReadAt(hb[:], pos); err != nil {
			return sum, fmt.Errorf("read header at %d: %w", pos, err)
		}
		h, _ := record.ParseHeader(hb[:])
		if pos+h.Size() > size {
			break
		}
		sum.Records = append(sum.Records, RecordInfo{Offset: pos, Header: h})
		pos += h.Size()
		if h.IsSentinel() {
			sum.Finalized = true
			break
		}
	}
	sum.Trailing = size - pos
	return sum, nil
}
