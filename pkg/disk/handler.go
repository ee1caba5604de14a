package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/offset"
	"github.com/downfa11-org/logship/pkg/record"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// DefaultSegmentSize is the rotation threshold when none is configured.
const DefaultSegmentSize = 200 * 1024 * 1024

// ErrEmptyPayload is returned by Append for a zero-length payload; nothing is written.
var ErrEmptyPayload = errors.New("empty payload")

// LogStore is the primary's append and rotation engine over Server-*.log segments.
type LogStore struct {
	Dir         string
	Prefix      string
	SegmentSize int64

	mu          sync.Mutex // serial, size, file, unpersisted
	serial      types.Serial
	size        int64
	file        *os.File
	unpersisted bool // serial rotated to but not yet saved

	cursor *offset.PositionStore
	now    func() time.Time
}

func NewLogStore(dir string, segmentSize int64) *LogStore {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	return &LogStore{
		Dir:         dir,
		Prefix:      types.PrefixServer,
		SegmentSize: segmentSize,
		cursor:      offset.NewPositionStore(dir, offset.FileServer, offset.KindSerial),
		now:         time.Now,
	}
}

// Open restores the persisted serial and opens that segment for appends.
// A torn trailing record left by a crash is truncated away, and a segment
// already closed by a sentinel is moved past.
func (s *LogStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", s.Dir, err)
	}

	fresh, err := s.cursor.Open()
	if err != nil {
		return err
	}
	s.serial = s.cursor.Position().Serial
	if fresh {
		util.Info("log store starting fresh at serial %06d", s.serial)
	}

	if err := s.openSegment(false); err != nil {
		return err
	}
	if err := s.recoverLocked(); err != nil {
		return err
	}
	if s.size >= s.SegmentSize {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	metrics.CurrentSerial.Set(float64(s.serial))
	util.Info("log store open: %s (%d bytes)", s.SegmentPath(s.serial), s.size)
	return nil
}

// recoverLocked walks the record headers of the current segment.
func (s *LogStore) recoverLocked() error {
	var (
		pos    int64
		hb     [record.HeaderSize]byte
		closed bool
	)
	info, err := s.file.Stat()
	if err != nil {
		return err
	}
	end := info.Size()

	for pos < end {
		n, err := s.file.ReadAt(hb[:], pos)
		if n < record.HeaderSize {
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("scan %s: %w", s.file.Name(), err)
			}
			break
		}
		h, _ := record.ParseHeader(hb[:])
		if h.IsSentinel() {
			closed = true
			pos += record.HeaderSize
			break
		}
		if pos+h.Size() > end {
			break
		}
		pos += h.Size()
	}

	if pos < end && !closed {
		util.Warn("truncating %d torn bytes at %s offset %d", end-pos, s.file.Name(), pos)
		if err := s.file.Truncate(pos); err != nil {
			return fmt.Errorf("truncate torn record: %w", err)
		}
		if err := s.file.Sync(); err != nil {
			return err
		}
	}
	s.size = pos

	if closed {
		// Crash between the sentinel write and the serial save.
		next := s.serial.Next()
		util.Warn("segment %06d already finalized, resuming at %06d", s.serial, next)
		if err := s.file.Close(); err != nil {
			util.Error("close finalized segment: %v", err)
		}
		s.file = nil
		if err := s.cursor.Save(types.Position{Serial: next}); err != nil {
			return err
		}
		s.serial = next
		s.size = 0
		// The next segment may already hold records appended after a rotation
		// whose serial save was lost; recover it instead of truncating.
		if err := s.openSegment(false); err != nil {
			return err
		}
		return s.recoverLocked()
	}
	return nil
}

// Append writes one record to the current segment, rotating first when the
// record would push the segment past SegmentSize. It returns the position
// the record was written at.
func (s *LogStore) Append(sourceID uint32, payload []byte) (types.Position, error) {
	if len(payload) == 0 {
		return types.Position{}, ErrEmptyPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return types.Position{}, fmt.Errorf("log store %s is not open", s.Dir)
	}
	if s.unpersisted {
		if err := s.persistSerialLocked(); err != nil {
			return types.Position{}, err
		}
	}

	rec := record.Encode(s.timestamp(), sourceID, payload)
	if s.size > 0 && s.size+int64(len(rec)) > s.SegmentSize {
		if err := s.rotateLocked(); err != nil {
			return types.Position{}, fmt.Errorf("rotate segment: %w", err)
		}
	}

	at := types.Position{Serial: s.serial, Offset: s.size}
	if err := s.writeRecord(rec); err != nil {
		return types.Position{}, err
	}
	metrics.ObserveAppend(len(rec))
	return at, nil
}

// EnsureRotation rotates when the current segment has reached SegmentSize.
func (s *LogStore) EnsureRotation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if s.unpersisted {
		if err := s.persistSerialLocked(); err != nil {
			return err
		}
	}
	if s.size < s.SegmentSize {
		return nil
	}
	return s.rotateLocked()
}

func (s *LogStore) CurrentSerial() types.Serial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serial
}

func (s *LogStore) CurrentSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *LogStore) SegmentPath(serial types.Serial) string {
	return SegmentPath(s.Dir, s.Prefix, serial)
}

func (s *LogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Sync()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

func (s *LogStore) timestamp() uint32 {
	return uint32(s.now().Unix())
}
