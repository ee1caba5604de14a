// Package relay tails the replica's mirrored segments and hands every record
// to a handler, keeping its own cursor apart from the replication cursor.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/offset"
	"github.com/downfa11-org/logship/pkg/record"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// Handler receives each record once, in file order.
type Handler func(rec record.Record)

type Tailer struct {
	Dir    string
	Prefix string

	handler Handler
	cursor  *offset.PositionStore

	mu     sync.Mutex
	pos    types.Position
	file   *os.File
	serial types.Serial
}

func New(dir string, handler Handler) *Tailer {
	return &Tailer{
		Dir:     dir,
		Prefix:  types.PrefixClient,
		handler: handler,
		cursor:  offset.NewPositionStore(dir, offset.FileRelay, offset.KindPosition),
	}
}

// Open loads the relay cursor.
func (t *Tailer) Open() error {
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", t.Dir, err)
	}
	fresh, err := t.cursor.Open()
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.pos = t.cursor.Position()
	t.mu.Unlock()

	if fresh {
		util.Info("relay starting fresh at %s", t.pos)
	} else {
		util.Info("relay resuming at %s", t.pos)
	}
	return nil
}

func (t *Tailer) Position() types.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// Tick consumes whatever whole records the current segment holds past the
// cursor and returns how many were dispatched. At a sentinel the segment is
// deleted and the cursor moves to the next serial; the next segment is left
// for the following tick.
func (t *Tailer) Tick() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := disk.SegmentPath(t.Dir, t.Prefix, t.pos.Serial)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	size := info.Size()
	if size <= t.pos.Offset {
		return 0, nil
	}

	f, err := t.handleLocked(path)
	if err != nil {
		return 0, err
	}

	remaining := size - t.pos.Offset
	r := bufio.NewReaderSize(io.NewSectionReader(f, t.pos.Offset, remaining), 64*1024)
	dispatched := 0
	for {
		rec, err := record.ReadLimited(r, remaining)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, record.ErrIncomplete) {
				return dispatched, nil
			}
			return dispatched, err
		}

		if rec.IsSentinel() {
			return dispatched, t.finishSegmentLocked(path)
		}

		remaining -= rec.Size()
		t.pos = t.pos.Advance(rec.Size())
		if err := t.cursor.SaveThrottled(t.pos); err != nil {
			return dispatched, err
		}
		t.handler(rec)
		dispatched++
		metrics.RelayRecords.Inc()
	}
}

// finishSegmentLocked makes the next position durable before the consumed
// segment is removed.
func (t *Tailer) finishSegmentLocked(path string) error {
	t.closeLocked()

	next := t.pos.Rotate()
	if err := t.cursor.Save(next); err != nil {
		return err
	}
	t.pos = next

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		util.Warn("relay: failed to delete consumed segment %s: %v", path, err)
	} else {
		metrics.RelaySegmentsConsumed.Inc()
		util.Info("relay: consumed %s, moving to %s", path, next)
	}
	return nil
}

func (t *Tailer) handleLocked(path string) (*os.File, error) {
	if t.file != nil && t.serial == t.pos.Serial {
		return t.file, nil
	}
	t.closeLocked()

	f, err := disk.OpenForRead(path)
	if err != nil {
		return nil, err
	}
	t.file = f
	t.serial = t.pos.Serial
	return f, nil
}

func (t *Tailer) closeLocked() {
	if t.file == nil {
		return
	}
	if err := t.file.Close(); err != nil {
		util.Debug("relay: close %s: %v", t.file.Name(), err)
	}
	t.file = nil
}

// Run polls every interval until ctx is done.
func (t *Tailer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer t.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := t.Tick(); err != nil {
				util.Error("relay: tick at %s failed: %v", t.Position(), err)
			}
		}
	}
}

// Close persists a throttled cursor and releases the segment handle.
func (t *Tailer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closeLocked()
	return t.cursor.Flush()
}
