package client

import "testing"

func TestOnSnapshotUpdatesBothFields(t *testing.T) {
	var a AckState
	a.OnSnapshot(5)
	if a.LastFrame() != 5 || a.LastSnapshotFrame() != 5 {
		t.Errorf("LastFrame=%d LastSnapshotFrame=%d, want both 5", a.LastFrame(), a.LastSnapshotFrame())
	}
}

func TestOnDeltaUpdatesOnlyLastFrame(t *testing.T) {
	var a AckState
	a.OnSnapshot(5)
	a.OnDelta(6)
	if a.LastFrame() != 6 {
		t.Errorf("LastFrame() = %d, want 6", a.LastFrame())
	}
	if a.LastSnapshotFrame() != 5 {
		t.Errorf("LastSnapshotFrame() = %d, want unchanged 5", a.LastSnapshotFrame())
	}
}

func TestAckNeverMovesBackward(t *testing.T) {
	var a AckState
	a.OnSnapshot(10)
	a.OnDelta(3)
	if a.LastFrame() != 10 {
		t.Errorf("LastFrame() = %d, want 10 (must not regress on an older frame)", a.LastFrame())
	}
}
