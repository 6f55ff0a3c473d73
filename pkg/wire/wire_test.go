package wire

import (
	"testing"

	"github.com/opd-ai/replicate/pkg/bitmask"
	"github.com/opd-ai/replicate/pkg/components"
	"github.com/opd-ai/replicate/pkg/netid"
	"github.com/opd-ai/replicate/pkg/replication"
)

func TestServerMessageSnapshotRoundTrip(t *testing.T) {
	snap := replication.WorldSnapshot{
		Frame:      7,
		EntitiesID: []netid.ID{1, 2},
		Positions:  bitmask.New[components.Position](2),
	}
	snap.Positions.Mask[0] = true
	snap.Positions.Values = append(snap.Positions.Values, components.Position{X: 1, Y: 2})

	data, err := EncodeServerMessage(ServerMessage{Snapshot: &snap})
	if err != nil {
		t.Fatalf("EncodeServerMessage() error: %v", err)
	}
	got, err := DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("DecodeServerMessage() error: %v", err)
	}
	if got.Kind() != KindSnapshot {
		t.Fatalf("Kind() = %v, want KindSnapshot", got.Kind())
	}
	if got.Snapshot.Frame != 7 || len(got.Snapshot.EntitiesID) != 2 {
		t.Errorf("decoded snapshot = %+v, want Frame 7 with 2 entities", got.Snapshot)
	}
}

func TestServerMessageDeltaRoundTrip(t *testing.T) {
	d := replication.WorldDelta{Frame: 10, SnapshotFrame: 5, EntitiesID: []netid.ID{3}}

	data, err := EncodeServerMessage(ServerMessage{Delta: &d})
	if err != nil {
		t.Fatalf("EncodeServerMessage() error: %v", err)
	}
	got, err := DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("DecodeServerMessage() error: %v", err)
	}
	if got.Kind() != KindDelta {
		t.Fatalf("Kind() = %v, want KindDelta", got.Kind())
	}
	if got.Delta.Frame != 10 || got.Delta.SnapshotFrame != 5 {
		t.Errorf("decoded delta = %+v, want Frame 10, SnapshotFrame 5", got.Delta)
	}
}

func TestDecodeServerMessageRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeServerMessage([]byte{0xff, 0x00, 0x13, 0x37}); err == nil {
		t.Fatal("expected error decoding a malformed payload")
	}
}

func TestCompressIfLargerLeavesSmallPayloadUntouched(t *testing.T) {
	payload := []byte{1, 2, 3}
	got, err := CompressIfLarger(payload, 1024)
	if err != nil {
		t.Fatalf("CompressIfLarger() error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("CompressIfLarger() = %v, want payload unchanged below threshold", got)
	}
}

func TestEncodeServerMessageCompressedRoundTrip(t *testing.T) {
	snap := replication.WorldSnapshot{
		Frame:      3,
		EntitiesID: make([]netid.ID, 256),
		Positions:  bitmask.New[components.Position](256),
	}
	for i := range snap.EntitiesID {
		snap.EntitiesID[i] = netid.ID(i)
		snap.Positions.Mask[i] = true
		snap.Positions.Values = append(snap.Positions.Values, components.Position{X: int32(i), Y: int32(i)})
	}

	data, err := EncodeServerMessageCompressed(ServerMessage{Snapshot: &snap}, 32)
	if err != nil {
		t.Fatalf("EncodeServerMessageCompressed() error: %v", err)
	}
	if len(data) < len(compressedMagic) || string(data[:len(compressedMagic)]) != string(compressedMagic) {
		t.Fatal("expected a repetitive, large payload to compress past the threshold")
	}

	got, err := DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("DecodeServerMessage() error: %v", err)
	}
	if got.Snapshot.Frame != 3 || len(got.Snapshot.EntitiesID) != 256 {
		t.Errorf("decoded snapshot = %+v, want Frame 3 with 256 entities", got.Snapshot)
	}
}

func TestClientStateRoundTrip(t *testing.T) {
	state := NetworkClientState{Ack: 42, State: []byte{1, 2, 3}}

	data, err := EncodeClientState(state)
	if err != nil {
		t.Fatalf("EncodeClientState() error: %v", err)
	}
	got, err := DecodeClientState(data)
	if err != nil {
		t.Fatalf("DecodeClientState() error: %v", err)
	}
	if got.Ack != 42 || string(got.State) != "\x01\x02\x03" {
		t.Errorf("decoded state = %+v, want Ack 42, State [1 2 3]", got)
	}
}
