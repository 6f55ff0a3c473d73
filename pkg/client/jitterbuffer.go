package client

import (
	"container/heap"
	"sync"

	"github.com/opd-ai/replicate/pkg/replication"
)

// frameHeap is a min-heap of WorldSnapshots ordered by Frame, backing
// JitterBuffer's sorted-by-frame drain.
type frameHeap []replication.WorldSnapshot

func (h frameHeap) Len() int            { return len(h) }
func (h frameHeap) Less(i, j int) bool  { return h[i].Frame < h[j].Frame }
func (h frameHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frameHeap) Push(x interface{}) { *h = append(*h, x.(replication.WorldSnapshot)) }
func (h *frameHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// JitterBuffer absorbs reordering and small gaps by holding reconstructed
// snapshots sorted by frame and only draining once at least
// minFill entries have accumulated, per spec.md §4.8.
type JitterBuffer struct {
	mu      sync.Mutex
	heap    frameHeap
	minFill int
}

// NewJitterBuffer returns a JitterBuffer that drains once it holds at
// least minFill entries. minFill < 1 is treated as 1.
func NewJitterBuffer(minFill int) *JitterBuffer {
	if minFill < 1 {
		minFill = 1
	}
	jb := &JitterBuffer{minFill: minFill}
	heap.Init(&jb.heap)
	return jb
}

// Push inserts snap, keeping the buffer sorted by frame ascending.
func (jb *JitterBuffer) Push(snap replication.WorldSnapshot) {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	heap.Push(&jb.heap, snap)
}

// Len reports how many snapshots are currently buffered.
func (jb *JitterBuffer) Len() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.heap.Len()
}

// Pop removes and returns the oldest-frame snapshot, but only once the
// buffer holds at least minFill entries; otherwise it returns false
// and leaves the buffer untouched. This is the K-frame display
// latency tradeoff spec.md §4.8 describes.
func (jb *JitterBuffer) Pop() (replication.WorldSnapshot, bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	if jb.heap.Len() < jb.minFill {
		return replication.WorldSnapshot{}, false
	}
	return heap.Pop(&jb.heap).(replication.WorldSnapshot), true
}
