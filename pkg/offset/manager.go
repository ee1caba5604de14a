package offset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// Cursor document names under the log directory.
const (
	FileServer = "info.server"
	FileClient = "info.client"
	FileRelay  = "info.relay"
	FileNodes  = "info.nodes"
)

// ErrCorruptCursor is returned by Open when a cursor document exists but
// cannot be used. It is never silently replaced with defaults.
var ErrCorruptCursor = errors.New("corrupt cursor file")

// Kind selects which fields a cursor document carries.
type Kind int

const (
	// KindSerial persists only the serial (primary).
	KindSerial Kind = iota
	// KindPosition persists serial and offset (replica, relay).
	KindPosition
)

type cursorDoc struct {
	LogSerial *uint32 `json:"logSerial,omitempty"`
	LogSN     *uint32 `json:"logSN,omitempty"`
	LogPos    *int64  `json:"logPos,omitempty"`
}

// PositionStore is the durable cursor of one role.
type PositionStore struct {
	mu   sync.Mutex
	path string
	kind Kind

	pos      types.Position
	pending  bool
	lastSave int64 // unix seconds of the last write

	now func() time.Time
}

func NewPositionStore(dir, name string, kind Kind) *PositionStore {
	return &PositionStore{
		path: filepath.Join(dir, name),
		kind: kind,
		pos:  types.Start,
		now:  time.Now,
	}
}

func (ps *PositionStore) Path() string {
	return ps.path
}

// Open loads the cursor. A missing document is a fresh start: defaults are
// written back and fresh is true. An unreadable or malformed document is an
// error wrapping ErrCorruptCursor.
func (ps *PositionStore) Open() (fresh bool, err error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	data, err := os.ReadFile(ps.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		ps.pos = types.Start
		util.Debug("cursor %s absent, starting at %s", ps.path, ps.pos)
		return true, ps.writeLocked(ps.pos)
	case err != nil:
		return false, fmt.Errorf("%w: %s: %v", ErrCorruptCursor, ps.path, err)
	}

	var doc cursorDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorruptCursor, ps.path, err)
	}

	pos := types.Start
	switch ps.kind {
	case KindSerial:
		if doc.LogSerial != nil {
			pos.Serial = types.Serial(*doc.LogSerial)
		}
	case KindPosition:
		if doc.LogSN != nil {
			pos.Serial = types.Serial(*doc.LogSN)
		}
		if doc.LogPos != nil {
			pos.Offset = *doc.LogPos
		}
	}
	if !pos.Valid() {
		return false, fmt.Errorf("%w: %s: invalid position %s", ErrCorruptCursor, ps.path, pos)
	}

	ps.pos = pos
	ps.lastSave = ps.now().Unix()
	return false, nil
}

func (ps *PositionStore) Position() types.Position {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.pos
}

// Save persists pos immediately.
func (ps *PositionStore) Save(pos types.Position) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.writeLocked(pos)
}

// SaveThrottled records pos and persists it at most once per wall-clock
// second. Positions skipped by the throttle are written by the next save or
// by Flush.
func (ps *PositionStore) SaveThrottled(pos types.Position) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.now().Unix() == ps.lastSave {
		ps.pos = pos
		ps.pending = true
		return nil
	}
	return ps.writeLocked(pos)
}

// Flush writes a position held back by SaveThrottled.
func (ps *PositionStore) Flush() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.pending {
		return nil
	}
	return ps.writeLocked(ps.pos)
}

func (ps *PositionStore) writeLocked(pos types.Position) error {
	serial := uint32(pos.Serial)
	var doc cursorDoc
	switch ps.kind {
	case KindSerial:
		doc.LogSerial = &serial
	default:
		offset := pos.Offset
		doc.LogSN = &serial
		doc.LogPos = &offset
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(ps.path, data); err != nil {
		return fmt.Errorf("save cursor %s: %w", ps.path, err)
	}

	ps.pos = pos
	ps.pending = false
	ps.lastSave = ps.now().Unix()
	return nil
}
