//go:build linux
// +build linux

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// openSegment opens the current serial for appends. A segment entered by
// rotation starts empty, even if a file from a previous serial cycle remains.
func (s *LogStore) openSegment(truncate bool) error {
	flags := os.O_CREATE | os.O_RDWR | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(s.SegmentPath(s.serial), flags, 0o644)
	if err != nil {
		return err
	}
	s.file = f

	// Linux: sequential access hint
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	return nil
}

// OpenForRead opens a segment read-only with a sequential access hint.
func OpenForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	return f, nil
}
