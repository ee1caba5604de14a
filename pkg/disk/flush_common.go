package disk

import (
	"fmt"

	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/record"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// writeRecord appends one encoded record with a single write and syncs it.
// A failed write is rolled back so no partial record stays on disk.
func (s *LogStore) writeRecord(rec []byte) error {
	n, err := s.file.Write(rec)
	if err != nil || n != len(rec) {
		if terr := s.file.Truncate(s.size); terr != nil {
			util.Error("rollback of partial record failed: %v", terr)
		}
		if err == nil {
			err = fmt.Errorf("short write: %d of %d bytes", n, len(rec))
		}
		return fmt.Errorf("write record to %s: %w", s.file.Name(), err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.file.Name(), err)
	}
	s.size += int64(n)
	return nil
}

// rotateLocked finalizes the current segment with a sentinel, opens the next
// serial and persists it before any further append is accepted.
func (s *LogStore) rotateLocked() error {
	old := s.serial
	if err := s.writeRecord(record.Sentinel(s.timestamp())); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		util.Error("close failed during segment rotation: %v", err)
	}
	s.file = nil

	s.serial = old.Next()
	s.size = 0
	if err := s.openSegment(true); err != nil {
		return err
	}
	if err := s.persistSerialLocked(); err != nil {
		return err
	}

	metrics.SegmentRotations.Inc()
	metrics.CurrentSerial.Set(float64(s.serial))
	util.Info("rotated segment %06d -> %06d", old, s.serial)
	return nil
}

// persistSerialLocked saves the current serial. Until a save succeeds the
// store stays unpersisted and Append refuses new records.
func (s *LogStore) persistSerialLocked() error {
	if err := s.cursor.Save(types.Position{Serial: s.serial}); err != nil {
		s.unpersisted = true
		return fmt.Errorf("persist serial %06d: %w", s.serial, err)
	}
	s.unpersisted = false
	return nil
}
