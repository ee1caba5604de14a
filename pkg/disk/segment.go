package disk

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/downfa11-org/logship/pkg/types"
)

const segmentExt = ".log"

// SegmentFileName returns <prefix>-<6-digit serial>.log.
func SegmentFileName(prefix string, serial types.Serial) string {
	return fmt.Sprintf("%s-%06d%s", prefix, serial, segmentExt)
}

func SegmentPath(dir, prefix string, serial types.Serial) string {
	return filepath.Join(dir, SegmentFileName(prefix, serial))
}

// ParseSegmentName extracts the serial from a segment file name carrying prefix.
func ParseSegmentName(name, prefix string) (types.Serial, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, prefix+"-") || !strings.HasSuffix(base, segmentExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, prefix+"-"), segmentExt)
	if len(digits) != 6 {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	serial := types.Serial(n)
	if !serial.Valid() {
		return 0, false
	}
	return serial, true
}
