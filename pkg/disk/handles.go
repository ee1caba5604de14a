package disk

import (
	"os"
	"sync"

	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

type handleKey struct {
	owner  string
	serial types.Serial
}

// HandleCache holds read handles on segments, one per (owner, serial).
// Owners are replication sessions; retention closes handles across owners.
type HandleCache struct {
	dir    string
	prefix string

	mu      sync.Mutex
	handles map[handleKey]*os.File
}

func NewHandleCache(dir, prefix string) *HandleCache {
	return &HandleCache{
		dir:     dir,
		prefix:  prefix,
		handles: make(map[handleKey]*os.File),
	}
}

// Get returns the owner's handle on serial, opening it read-only on first use.
func (c *HandleCache) Get(owner string, serial types.Serial) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := handleKey{owner: owner, serial: serial}
	if f, ok := c.handles[key]; ok {
		return f, nil
	}
	f, err := OpenForRead(SegmentPath(c.dir, c.prefix, serial))
	if err != nil {
		return nil, err
	}
	c.handles[key] = f
	return f, nil
}

// Drop closes the owner's handle on serial, if any.
func (c *HandleCache) Drop(owner string, serial types.Serial) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := handleKey{owner: owner, serial: serial}
	if f, ok := c.handles[key]; ok {
		closeHandle(f)
		delete(c.handles, key)
	}
}

// DropSerial closes every owner's handle on serial and reports how many were closed.
func (c *HandleCache) DropSerial(serial types.Serial) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, f := range c.handles {
		if key.serial == serial {
			closeHandle(f)
			delete(c.handles, key)
			n++
		}
	}
	return n
}

// DropOwner closes all handles held by owner.
func (c *HandleCache) DropOwner(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, f := range c.handles {
		if key.owner == owner {
			closeHandle(f)
			delete(c.handles, key)
		}
	}
}

func (c *HandleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *HandleCache) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, f := range c.handles {
		closeHandle(f)
		delete(c.handles, key)
	}
}

func closeHandle(f *os.File) {
	if err := f.Close(); err != nil {
		util.Debug("close %s: %v", f.Name(), err)
	}
}
