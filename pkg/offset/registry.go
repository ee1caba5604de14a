package offset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/downfa11-org/logship/pkg/types"
)

// NodeRegistry remembers the last position each replica pulled from, keyed
// by node id. The primary uses it to override the position a server-side
// replica claims at auth time.
type NodeRegistry struct {
	mu    sync.RWMutex
	path  string
	nodes map[uint32]types.Position
	dirty bool
}

func NewNodeRegistry(dir string) *NodeRegistry {
	return &NodeRegistry{
		path:  filepath.Join(dir, FileNodes),
		nodes: make(map[uint32]types.Position),
	}
}

// Open loads the registry. A missing file is an empty registry.
func (nr *NodeRegistry) Open() error {
	nr.mu.Lock()
	defer nr.mu.Unlock()

	data, err := os.ReadFile(nr.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptCursor, nr.path, err)
	}

	nodes := make(map[uint32]types.Position)
	if err := json.Unmarshal(data, &nodes); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptCursor, nr.path, err)
	}
	for id, pos := range nodes {
		if !pos.Valid() {
			delete(nodes, id)
		}
	}
	nr.nodes = nodes
	return nil
}

func (nr *NodeRegistry) Lookup(nodeID uint32) (types.Position, bool) {
	nr.mu.RLock()
	defer nr.mu.RUnlock()

	pos, ok := nr.nodes[nodeID]
	return pos, ok
}

// Record updates the node's position in memory. Flush persists it.
func (nr *NodeRegistry) Record(nodeID uint32, pos types.Position) {
	nr.mu.Lock()
	defer nr.mu.Unlock()

	if cur, ok := nr.nodes[nodeID]; ok && cur == pos {
		return
	}
	nr.nodes[nodeID] = pos
	nr.dirty = true
}

func (nr *NodeRegistry) Flush() error {
	nr.mu.Lock()
	defer nr.mu.Unlock()

	if !nr.dirty {
		return nil
	}
	data, err := json.Marshal(nr.nodes)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(nr.path, data); err != nil {
		return fmt.Errorf("save node registry: %w", err)
	}
	nr.dirty = false
	return nil
}
