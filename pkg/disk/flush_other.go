//go:build !linux
// +build !linux

package disk

import "os"

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
	return nil
}

func OpenForRead(path string) (*os.File, error) {
	return os.Open(path)
}
