package disk

import (
	"fmt"
	"os"
	"sync"

	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// Mirror writes replicated bytes into local Client-*.log segments. It keeps
// at most one segment open and never deletes files.
type Mirror struct {
	Dir    string
	Prefix string

	mu     sync.Mutex
	serial types.Serial
	file   *os.File
}

func NewMirror(dir string) *Mirror {
	return &Mirror{
		Dir:    dir,
		Prefix: types.PrefixClient,
	}
}

// WriteAt writes data verbatim at pos and syncs it before returning, so the
// caller may persist its cursor afterwards.
func (m *Mirror) WriteAt(pos types.Position, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil && m.serial != pos.Serial {
		m.closeLocked()
	}
	if m.file == nil {
		if err := os.MkdirAll(m.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", m.Dir, err)
		}
		f, err := os.OpenFile(m.Path(pos.Serial), os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return err
		}
		m.file = f
		m.serial = pos.Serial
	}

	if _, err := m.file.WriteAt(data, pos.Offset); err != nil {
		return fmt.Errorf("write mirror %s at %d: %w", m.file.Name(), pos.Offset, err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("sync mirror %s: %w", m.file.Name(), err)
	}
	return nil
}

// Release closes the open segment unless it is serial.
func (m *Mirror) Release(serial types.Serial) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil && m.serial != serial {
		util.Debug("mirror: closing stale segment %06d", m.serial)
		m.closeLocked()
	}
}

// OpenSerial reports which segment is open, if any.
func (m *Mirror) OpenSerial() (types.Serial, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serial, m.file != nil
}

func (m *Mirror) Path(serial types.Serial) string {
	return SegmentPath(m.Dir, m.Prefix, serial)
}

func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

func (m *Mirror) closeLocked() {
	if err := m.file.Close(); err != nil {
		util.Error("mirror: close %s: %v", m.file.Name(), err)
	}
	m.file = nil
}
