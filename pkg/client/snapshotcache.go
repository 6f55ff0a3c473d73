package client

import (
	"sync"

	"github.com/opd-ai/replicate/pkg/replication"
)

// SnapshotCache retains recent full snapshots keyed by frame so an
// incoming Delta's snapshot_frame can be resolved into a base to apply
// against. Eviction is FIFO, grounded on the teacher's
// LagCompensator.StoreSnapshot ring-buffer idiom, reused here for the
// forward-looking cache instead of backward rewind.
type SnapshotCache struct {
	mu    sync.Mutex
	order []uint32
	byKey map[uint32]replication.WorldSnapshot
	size  int
}

// NewSnapshotCache returns a cache holding at most size entries. A
// size below 2 is raised to 2, the minimum spec.md §4.8 requires to
// cover the maximum expected delta lookback.
func NewSnapshotCache(size int) *SnapshotCache {
	if size < 2 {
		size = 2
	}
	return &SnapshotCache{byKey: make(map[uint32]replication.WorldSnapshot), size: size}
}

// Put stores snap under its Frame, evicting the oldest entry if the
// cache is full.
func (c *SnapshotCache) Put(snap replication.WorldSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byKey[snap.Frame]; !exists {
		if len(c.order) >= c.size {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.byKey, oldest)
		}
		c.order = append(c.order, snap.Frame)
	}
	c.byKey[snap.Frame] = snap
}

// Get looks up the snapshot stored for frame.
func (c *SnapshotCache) Get(frame uint32) (replication.WorldSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.byKey[frame]
	return snap, ok
}

// Len reports how many snapshots are currently cached.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
