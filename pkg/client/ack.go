package client

import "sync"

// AckState is the client's record of what it has last received,
// reported back to the server as NetworkClientState.Ack. Both fields
// advance monotonically: a datagram arriving with an older frame than
// already recorded never moves the ack backward.
type AckState struct {
	mu                sync.Mutex
	lastFrame         uint32
	lastSnapshotFrame uint32
}

// OnSnapshot updates both LastFrame and LastSnapshotFrame to frame,
// per spec.md §4.8's Snapshot handling.
func (a *AckState) OnSnapshot(frame uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if frame > a.lastFrame {
		a.lastFrame = frame
	}
	if frame > a.lastSnapshotFrame {
		a.lastSnapshotFrame = frame
	}
}

// OnDelta updates LastFrame to frame, per spec.md §4.8's Delta
// handling. LastSnapshotFrame is unaffected.
func (a *AckState) OnDelta(frame uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if frame > a.lastFrame {
		a.lastFrame = frame
	}
}

// LastFrame returns the most recently acknowledged frame of any kind.
func (a *AckState) LastFrame() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastFrame
}

// LastSnapshotFrame returns the most recently acknowledged snapshot
// frame.
func (a *AckState) LastSnapshotFrame() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSnapshotFrame
}
