package disk

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// DefaultRetention keeps finalized segments for seven days.
const DefaultRetention = 7 * 24 * time.Hour

// HandleCloser releases every open read handle on a segment before it is removed.
type HandleCloser interface {
	DropSerial(serial types.Serial) int
}

// Cleanup deletes finalized segments whose modification time is older than
// retention. The current segment is never touched. Open handles are closed
// through closer first; a failed delete is logged and the pass continues.
func (s *LogStore) Cleanup(retention time.Duration, closer HandleCloser) []string {
	if retention <= 0 {
		retention = DefaultRetention
	}

	files, err := filepath.Glob(filepath.Join(s.Dir, s.Prefix+"-*"+segmentExt))
	if err != nil {
		util.Error("retention: glob failed: %v", err)
		return nil
	}
	sort.Strings(files)

	current := s.CurrentSerial()
	now := s.now()

	var deleted []string
	for _, path := range files {
		serial, ok := ParseSegmentName(path, s.Prefix)
		if !ok || serial == current {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= retention {
			continue
		}

		if closer != nil {
			if n := closer.DropSerial(serial); n > 0 {
				util.Debug("retention: closed %d open handles on %s", n, path)
			}
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			util.Warn("retention: failed to delete %s: %v", path, err)
			metrics.SegmentsCleaned.WithLabelValues("failed").Inc()
			continue
		}
		metrics.SegmentsCleaned.WithLabelValues("deleted").Inc()
		util.Info("retention: deleted %s", path)
		deleted = append(deleted, path)
	}
	return deleted
}
